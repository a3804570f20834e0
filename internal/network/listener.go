package network

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/banshee-data/lidar.poi/internal/monitoring"
	"github.com/banshee-data/lidar.poi/internal/timeutil"
	"github.com/banshee-data/lidar.poi/internal/wire"
)

// Ingester consumes decoded sensor readings.
type Ingester interface {
	Ingest(p wire.Packet)
}

// IngesterFunc adapts a function to Ingester.
type IngesterFunc func(p wire.Packet)

func (f IngesterFunc) Ingest(p wire.Packet) { f(p) }

// ListenerConfig configures a Listener. Only Address and Ingester are
// required.
type ListenerConfig struct {
	Address       string // host:port, e.g. ":4211"
	RcvBuf        int
	StatsInterval time.Duration
	Factory       UDPSocketFactory
	Clock         timeutil.Clock
	Stats         *PacketStats
	Sequence      *SequenceTracker
	ScanLogger    *monitoring.ScanLogger
	Ingester      Ingester

	// OnSenderReset is called when the sender's sequence numbers restart.
	OnSenderReset func()
}

// Listener receives sensor datagrams and hands data readings on.
type Listener struct {
	cfg ListenerConfig

	mu   sync.Mutex
	sock UDPSocket
}

// NewListener fills unset optional fields with defaults.
func NewListener(cfg ListenerConfig) (*Listener, error) {
	if cfg.Ingester == nil {
		return nil, errors.New("listener requires an ingester")
	}
	if cfg.Address == "" {
		cfg.Address = fmt.Sprintf(":%d", wire.DefaultPort)
	}
	if cfg.Factory == nil {
		cfg.Factory = RealUDPSocketFactory{}
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Stats == nil {
		cfg.Stats = NewPacketStats(cfg.Clock)
	}
	if cfg.Sequence == nil {
		cfg.Sequence = &SequenceTracker{}
	}
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = time.Minute
	}
	return &Listener{cfg: cfg}, nil
}

// Stats returns the listener's traffic counters.
func (l *Listener) Stats() *PacketStats { return l.cfg.Stats }

// Sequence returns the listener's lost-packet tracker.
func (l *Listener) Sequence() *SequenceTracker { return l.cfg.Sequence }

// Start binds the socket and reads until ctx is cancelled. Reads use a
// short deadline so cancellation is noticed promptly.
func (l *Listener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	sock, err := l.cfg.Factory.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	l.mu.Lock()
	l.sock = sock
	l.mu.Unlock()
	defer sock.Close()

	if l.cfg.RcvBuf > 0 {
		if err := sock.SetReadBuffer(l.cfg.RcvBuf); err != nil {
			log.Printf("[Listener] failed to set receive buffer to %d: %v", l.cfg.RcvBuf, err)
		}
	}
	log.Printf("[Listener] listening on %s", l.cfg.Address)

	go l.logStats(ctx)

	buf := make([]byte, 512)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_ = sock.SetReadDeadline(l.cfg.Clock.Now().Add(100 * time.Millisecond))
		n, from, err := sock.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			log.Printf("[Listener] read error: %v", err)
			continue
		}
		if err := l.HandlePacket(buf[:n]); err != nil {
			monitoring.Logf("[Listener] dropping datagram from %v: %v", from, err)
		}
	}
}

func (l *Listener) logStats(ctx context.Context) {
	ticker := l.cfg.Clock.NewTicker(l.cfg.StatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			l.cfg.Stats.LogStats()
		}
	}
}

// HandlePacket decodes one datagram and routes it. Undecodable datagrams
// are counted and returned as errors; they never stop the listener.
func (l *Listener) HandlePacket(b []byte) error {
	l.cfg.Stats.AddPacket(len(b))
	p, err := wire.Decode(b)
	if err != nil {
		l.cfg.Stats.AddDecodeError()
		return err
	}
	l.Route(p)
	return nil
}

// Route passes an already decoded packet through sequence tracking, scan
// logging and, for data packets, the ingester.
func (l *Listener) Route(p wire.Packet) {
	if l.cfg.Sequence.Observe(p.Seq) {
		log.Printf("[Listener] sender restarted at sequence %d", p.Seq)
		if l.cfg.OnSenderReset != nil {
			l.cfg.OnSenderReset()
		}
	}
	if l.cfg.ScanLogger != nil {
		l.cfg.ScanLogger.Observe(monitoring.ScanSample{
			Seq:          p.Seq,
			OnTimeMillis: p.OnTimeMillis,
			Type:         uint32(p.Type),
			Angle:        float64(p.Angle),
			Distance:     float64(p.Distance),
			StartBit:     p.StartBit,
			Quality:      p.Quality,
		})
	}
	if p.Type != wire.TypeData {
		return
	}
	l.cfg.Stats.AddReading()
	l.cfg.Ingester.Ingest(p)
}

// Close closes the socket if Start has opened one.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sock == nil {
		return nil
	}
	return l.sock.Close()
}
