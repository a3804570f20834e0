// Package publish sends point-of-interest reports and rotation statistics
// to an MQTT broker.
package publish

import (
	"context"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/banshee-data/lidar.poi/internal/monitoring"
)

var logf = monitoring.Prefixed("MQTT")

// ClientConfig holds broker connection settings.
type ClientConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// ConfigFromEnv fills the settings not given on the command line from
// MQTT_BROKER, MQTT_CLIENT_ID, MQTT_USERNAME and MQTT_PASSWORD.
func ConfigFromEnv(broker string) ClientConfig {
	cfg := ClientConfig{
		Broker:   broker,
		ClientID: os.Getenv("MQTT_CLIENT_ID"),
		Username: os.Getenv("MQTT_USERNAME"),
		Password: os.Getenv("MQTT_PASSWORD"),
	}
	if cfg.Broker == "" {
		cfg.Broker = os.Getenv("MQTT_BROKER")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "lidar-poi"
	}
	return cfg
}

// Enabled reports whether a broker is configured.
func (c ClientConfig) Enabled() bool { return c.Broker != "" }

// NewClient builds a paho client for cfg. It does not connect.
func NewClient(cfg ClientConfig) (mqtt.Client, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("no MQTT broker configured")
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logf("connection lost (%v), auto-reconnect will retry", err)
	})
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logf("connected to %s", cfg.Broker)
	})
	return mqtt.NewClient(opts), nil
}

// Backoff bounds for ConnectWithRetry.
var (
	connectRetryInitial = 1 * time.Second
	connectRetryMax     = 60 * time.Second
	connectTimeout      = 10 * time.Second
)

// ConnectWithRetry connects client, doubling the delay between attempts up
// to a minute, until it succeeds or ctx is done.
func ConnectWithRetry(ctx context.Context, client mqtt.Client) error {
	delay := connectRetryInitial
	for {
		token := client.Connect()
		if token.WaitTimeout(connectTimeout) {
			if token.Error() == nil {
				return nil
			}
			logf("connection failed: %v", token.Error())
		} else {
			logf("connection timeout")
		}

		logf("retrying in %v", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, connectRetryMax)
	}
}
