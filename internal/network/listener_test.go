package network

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lidar.poi/internal/monitoring"
	"github.com/banshee-data/lidar.poi/internal/wire"
)

type recordingIngester struct {
	mu      sync.Mutex
	packets []wire.Packet
}

func (r *recordingIngester) Ingest(p wire.Packet) {
	r.mu.Lock()
	r.packets = append(r.packets, p)
	r.mu.Unlock()
}

func (r *recordingIngester) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.packets)
}

func encodeReading(t *testing.T, typ wire.Type, seq uint32, angle, dist float32) []byte {
	t.Helper()
	p := wire.NewPacket(typ, wire.StationLidar1, 0)
	p.Seq = seq
	p.Angle = angle
	p.Distance = dist
	b, err := wire.Encode(p)
	require.NoError(t, err)
	return b
}

func TestNewListener_RequiresIngester(t *testing.T) {
	_, err := NewListener(ListenerConfig{})
	assert.Error(t, err)
}

func TestListener_HandlePacket(t *testing.T) {
	ing := &recordingIngester{}
	resets := 0
	l, err := NewListener(ListenerConfig{Ingester: ing, OnSenderReset: func() { resets++ }})
	require.NoError(t, err)

	require.NoError(t, l.HandlePacket(encodeReading(t, wire.TypeData, 10, 45, 900)))
	require.NoError(t, l.HandlePacket(encodeReading(t, wire.TypeDebug, 11, 0, 0)))
	require.NoError(t, l.HandlePacket(encodeReading(t, wire.TypeData, 14, 46, 910)))

	err = l.HandlePacket([]byte{1, 2, 3})
	assert.ErrorIs(t, err, wire.ErrShortPacket)

	require.Equal(t, 2, ing.Len(), "only data packets reach the ingester")
	assert.Equal(t, float32(45), ing.packets[0].Angle)

	lost, _ := l.Sequence().Lost()
	assert.EqualValues(t, 2, lost)

	require.NoError(t, l.HandlePacket(encodeReading(t, wire.TypeData, 1, 47, 920)))
	assert.Equal(t, 1, resets)
	lost, _ = l.Sequence().Lost()
	assert.Zero(t, lost)

	s := l.Stats().GetAndReset()
	assert.EqualValues(t, 5, s.Packets)
	assert.EqualValues(t, 1, s.DecodeErrors)
	assert.EqualValues(t, 3, s.Readings)
}

func TestListener_FeedsScanLogger(t *testing.T) {
	scan := monitoring.NewScanLogger(monitoring.LevelStats, nil, nil)
	l, err := NewListener(ListenerConfig{Ingester: &recordingIngester{}, ScanLogger: scan})
	require.NoError(t, err)

	for i, start := range []bool{true, false, false, true} {
		p := wire.NewPacket(wire.TypeData, wire.StationLidar1, 0)
		p.Seq = uint32(i)
		p.Distance = 1000
		p.StartBit = start
		l.Route(p)
	}
	assert.Equal(t, 3, scan.LastRotation().N)
}

func TestListener_Start(t *testing.T) {
	sock := NewMockUDPSocket(
		MockDatagram{Data: encodeReading(t, wire.TypeData, 1, 10, 500)},
		MockDatagram{Data: []byte("garbage")},
		MockDatagram{Data: encodeReading(t, wire.TypeData, 2, 11, 510)},
	)
	sock.FailNextRead(errors.New("transient"))
	factory := &MockUDPSocketFactory{Socket: sock}
	ing := &recordingIngester{}

	l, err := NewListener(ListenerConfig{
		Address:  "127.0.0.1:4211",
		RcvBuf:   1 << 16,
		Factory:  factory,
		Ingester: ing,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Start(ctx) }()

	require.Eventually(t, func() bool { return ing.Len() == 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
	assert.True(t, sock.Closed())
	assert.Equal(t, 1<<16, sock.ReadBuffer())
	assert.Equal(t, []string{"udp 127.0.0.1:4211"}, factory.Calls())
}

func TestListener_StartListenError(t *testing.T) {
	l, err := NewListener(ListenerConfig{
		Factory:  &MockUDPSocketFactory{Err: errors.New("address in use")},
		Ingester: &recordingIngester{},
	})
	require.NoError(t, err)
	err = l.Start(context.Background())
	assert.ErrorContains(t, err, "address in use")
}

func TestListener_StopsOnClosedSocket(t *testing.T) {
	sock := NewMockUDPSocket()
	l, err := NewListener(ListenerConfig{Factory: &MockUDPSocketFactory{Socket: sock}, Ingester: &recordingIngester{}})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- l.Start(context.Background()) }()
	require.Eventually(t, func() bool { return l.Close() == nil && sock.Closed() }, time.Second, 5*time.Millisecond)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, net.ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
}
