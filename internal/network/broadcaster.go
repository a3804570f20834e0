package network

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/banshee-data/lidar.poi/internal/timeutil"
	"github.com/banshee-data/lidar.poi/internal/tracker"
	"github.com/banshee-data/lidar.poi/internal/wire"
)

// Dropper counts datagrams that could not be sent.
type Dropper interface {
	AddDropped()
}

// Broadcaster sends POI reports as wire packets to a UDP destination,
// typically the subnet broadcast address. Sends are queued and never block
// the caller; when the queue is full the packet is dropped and counted.
type Broadcaster struct {
	conn    io.WriteCloser
	queue   chan []byte
	stats   Dropper
	millis  timeutil.MillisClock
	fromIP  uint32
	address string

	mu  sync.Mutex
	seq uint32

	closeOnce sync.Once
	done      chan struct{}
}

// NewBroadcaster dials addr ("host:port"). stats may be nil.
func NewBroadcaster(addr string, queueLen int, stats Dropper, millis timeutil.MillisClock) (*Broadcaster, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve broadcast address: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to create broadcast connection: %w", err)
	}
	var fromIP uint32
	if la, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		fromIP = wire.IPv4ToUint32(la.IP)
	}
	b := NewBroadcasterConn(conn, queueLen, stats, millis)
	b.fromIP = fromIP
	b.address = addr
	return b, nil
}

// NewBroadcasterConn wraps an existing connection.
func NewBroadcasterConn(conn io.WriteCloser, queueLen int, stats Dropper, millis timeutil.MillisClock) *Broadcaster {
	if queueLen < 1 {
		queueLen = 64
	}
	if millis == nil {
		millis = timeutil.NewUptimeClock(nil)
	}
	return &Broadcaster{
		conn:   conn,
		queue:  make(chan []byte, queueLen),
		stats:  stats,
		millis: millis,
		done:   make(chan struct{}),
	}
}

// Start runs the send loop until ctx is cancelled or Close is called.
// Write errors are summarised every logInterval.
func (b *Broadcaster) Start(ctx context.Context, logInterval time.Duration) {
	if logInterval <= 0 {
		logInterval = time.Minute
	}
	go func() {
		failed := 0
		var lastErr error
		ticker := time.NewTicker(logInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-b.done:
				return
			case pkt := <-b.queue:
				if _, err := b.conn.Write(pkt); err != nil {
					failed++
					lastErr = err
				}
			case <-ticker.C:
				if failed > 0 {
					log.Printf("[Broadcaster] %d POI packets failed to send (latest: %v)", failed, lastErr)
					failed, lastErr = 0, nil
				}
			}
		}
	}()
	if b.address != "" {
		log.Printf("[Broadcaster] sending POI packets to %s", b.address)
	}
}

// Report implements tracker.Reporter.
func (b *Broadcaster) Report(_ context.Context, r tracker.Report) error {
	b.mu.Lock()
	b.seq++
	seq := b.seq
	b.mu.Unlock()

	pkt, err := wire.Encode(wire.POIPacket(r.POI, seq, uint32(b.millis.Millis()), b.fromIP))
	if err != nil {
		return err
	}
	b.Enqueue(pkt)
	return nil
}

// Enqueue queues an encoded packet without blocking.
func (b *Broadcaster) Enqueue(pkt []byte) {
	select {
	case b.queue <- pkt:
	default:
		if b.stats != nil {
			b.stats.AddDropped()
		}
	}
}

// Close stops the send loop and closes the connection.
func (b *Broadcaster) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.done)
		err = b.conn.Close()
	})
	return err
}
