package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/banshee-data/lidar.poi/internal/monitoring"
	"github.com/banshee-data/lidar.poi/internal/poi"
	"github.com/banshee-data/lidar.poi/internal/tracker"
)

const publishTimeout = 2 * time.Second

// Options configures a Publisher.
type Options struct {
	Prefix        string        // topics are <Prefix>/poi and <Prefix>/stats
	QoS           byte          // 0, 1 or 2
	Retain        bool          // broker keeps the latest message per topic
	StatsInterval time.Duration // minimum gap between stats messages; 0 disables them
}

// POIMessage is the JSON body published on <prefix>/poi.
type POIMessage struct {
	Found     bool         `json:"found"`
	Angle     float64      `json:"angle"`
	Distance  float64      `json:"distance_mm"`
	TimesSeen uint32       `json:"times_seen"`
	Decision  poi.Decision `json:"decision"`
	Timestamp int64        `json:"timestamp_ms"`
}

// RotationMessage summarises the latest full sensor rotation.
type RotationMessage struct {
	Readings   int     `json:"readings"`
	MinDist    float64 `json:"min_distance_mm"`
	MaxDist    float64 `json:"max_distance_mm"`
	MeanDist   float64 `json:"mean_distance_mm"`
	StdDevDist float64 `json:"stddev_distance_mm"`
	Hz         float64 `json:"hz"`
}

// StatsMessage is the JSON body published on <prefix>/stats.
type StatsMessage struct {
	Packets     int64            `json:"packets"`
	LossPercent float64          `json:"loss_percent"`
	Decision    poi.Decision     `json:"decision"`
	Rotation    *RotationMessage `json:"rotation,omitempty"`
	Timestamp   int64            `json:"timestamp_ms"`
}

// Publisher is a tracker.Reporter that publishes POI changes and periodic
// statistics. With a nil client every call is a no-op.
type Publisher struct {
	client mqtt.Client
	opts   Options

	mu        sync.Mutex
	rotation  func() monitoring.RotationSummary
	pending   bool // POI not yet delivered
	lastStats time.Time
	published int64
	skipped   int64
}

// NewPublisher returns a publisher writing through client.
func NewPublisher(client mqtt.Client, opts Options) *Publisher {
	if opts.Prefix == "" {
		opts.Prefix = "lidar"
	}
	if opts.QoS > 2 {
		opts.QoS = 0
	}
	return &Publisher{client: client, opts: opts, pending: true}
}

// SetRotationSource adds the latest rotation summary to stats messages.
func (p *Publisher) SetRotationSource(f func() monitoring.RotationSummary) {
	p.mu.Lock()
	p.rotation = f
	p.mu.Unlock()
}

// Topic returns the full topic for suffix.
func (p *Publisher) Topic(suffix string) string {
	return p.opts.Prefix + "/" + suffix
}

// Counts returns how many messages were published and how many reports
// were skipped because the client was disconnected.
func (p *Publisher) Counts() (published, skipped int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published, p.skipped
}

// Report implements tracker.Reporter. The POI is published once at start and
// after every change, retried on later reports until a publish succeeds;
// stats at most once per StatsInterval.
func (p *Publisher) Report(_ context.Context, r tracker.Report) error {
	if p.client == nil {
		return nil
	}

	p.mu.Lock()
	if r.Changed {
		p.pending = true
	}
	if !p.client.IsConnected() {
		p.skipped++
		p.mu.Unlock()
		return nil
	}
	sendPOI := p.pending
	sendStats := p.opts.StatsInterval > 0 && r.At.Sub(p.lastStats) >= p.opts.StatsInterval
	rotation := p.rotation
	p.mu.Unlock()

	if sendPOI {
		msg := POIMessage{
			Found:     r.Found,
			Angle:     r.POI.Angle,
			Distance:  r.POI.Distance,
			TimesSeen: r.POI.TimesSeen,
			Decision:  r.Decision,
			Timestamp: r.At.UnixMilli(),
		}
		if err := p.publish(p.Topic("poi"), msg); err != nil {
			return err
		}
		p.mu.Lock()
		p.pending = false
		p.mu.Unlock()
	}

	if sendStats {
		msg := StatsMessage{
			Packets:     r.Packets,
			LossPercent: r.LossPercent,
			Decision:    r.Decision,
			Timestamp:   r.At.UnixMilli(),
		}
		if rotation != nil {
			if rs := rotation(); rs.N > 0 {
				msg.Rotation = &RotationMessage{
					Readings:   rs.N,
					MinDist:    rs.MinDist,
					MaxDist:    rs.MaxDist,
					MeanDist:   rs.MeanDist,
					StdDevDist: rs.StdDevDist,
					Hz:         rs.Hz(),
				}
			}
		}
		if err := p.publish(p.Topic("stats"), msg); err != nil {
			return err
		}
		p.mu.Lock()
		p.lastStats = r.At
		p.mu.Unlock()
	}
	return nil
}

func (p *Publisher) publish(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", topic, err)
	}
	token := p.client.Publish(topic, p.opts.QoS, p.opts.Retain, payload)
	if token.WaitTimeout(publishTimeout) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	p.mu.Lock()
	p.published++
	p.mu.Unlock()
	return nil
}

// Disconnect closes the broker connection, if any.
func (p *Publisher) Disconnect() {
	if p.client != nil && p.client.IsConnected() {
		logf("disconnecting")
		p.client.Disconnect(250)
	}
}
