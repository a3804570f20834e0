package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lidar.poi/internal/poi"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestEmptyTuningConfig_Defaults(t *testing.T) {
	cfg := EmptyTuningConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, poi.DefaultParams(), cfg.ToParams())
	assert.Equal(t, 10*time.Millisecond, cfg.GetSweepInterval())
	assert.Equal(t, 15, cfg.GetSweepBinsPerTick())
	assert.Equal(t, 100*time.Millisecond, cfg.GetReportInterval())
	assert.Equal(t, time.Minute, cfg.GetStatsInterval())
	assert.Equal(t, "stats", cfg.GetLogLevel())
	assert.Equal(t, "lidar", cfg.GetMQTTTopic())
	assert.True(t, cfg.GetMQTTRetain())
	assert.Equal(t, 64, cfg.GetBroadcastQueue())
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	assert.Equal(t, poi.DefaultParams(), cfg.ToParams(), "defaults file and poi defaults must agree")
	assert.Equal(t, EmptyTuningConfig().GetSweepBinsPerTick(), cfg.GetSweepBinsPerTick())
	assert.Equal(t, EmptyTuningConfig().GetReportInterval(), cfg.GetReportInterval())
}

func TestLoadTuningConfig_JSON(t *testing.T) {
	path := writeConfig(t, "tuning.json", `{
  "divisions_per_degree": 2,
  "forget_window": "5s",
  "max_poi_dist_mm": 8000,
  "sweep_bins_per_tick": 30,
  "log_level": "lidar"
}`)

	cfg, err := LoadTuningConfig(path)
	require.NoError(t, err)

	p := cfg.ToParams()
	assert.Equal(t, 2.0, p.DivisionsPerDegree)
	assert.Equal(t, 5*time.Second, p.ForgetWindow)
	assert.Equal(t, 8000.0, p.MaxPOIDistance)
	assert.Equal(t, poi.DefaultMovedFactor, p.MovedFactor, "unset fields keep defaults")
	assert.Equal(t, 30, cfg.GetSweepBinsPerTick())
	assert.Equal(t, "lidar", cfg.GetLogLevel())
}

func TestLoadTuningConfig_YAML(t *testing.T) {
	path := writeConfig(t, "tuning.yaml", `
moved_factor: 0.1
transient_window: 500ms
radial_near_mm: 150
mqtt_topic: garage/lidar
mqtt_qos: 1
mqtt_retain: false
`)

	cfg, err := LoadTuningConfig(path)
	require.NoError(t, err)

	p := cfg.ToParams()
	assert.Equal(t, 0.1, p.MovedFactor)
	assert.Equal(t, 500*time.Millisecond, p.TransientWindow)
	assert.Equal(t, 150.0, p.RadialNear)
	assert.Equal(t, "garage/lidar", cfg.GetMQTTTopic())
	assert.Equal(t, byte(1), cfg.GetMQTTQoS())
	assert.False(t, cfg.GetMQTTRetain())
}

func TestLoadTuningConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
	}{
		{"bad extension", "tuning.txt", `{}`},
		{"bad json", "tuning.json", `{"moved_factor":`},
		{"bad yaml", "tuning.yml", "moved_factor: [1"},
		{"bad duration", "tuning.json", `{"forget_window": "soon"}`},
		{"negative duration", "tuning.json", `{"sweep_interval": "-1s"}`},
		{"zero bins per tick", "tuning.json", `{"sweep_bins_per_tick": 0}`},
		{"qos out of range", "tuning.json", `{"mqtt_qos": 3}`},
		{"unknown log level", "tuning.json", `{"log_level": "loud"}`},
		{"max poi out of range", "tuning.json", `{"max_poi_dist_mm": 20000}`},
		{"fractional bins", "tuning.json", `{"divisions_per_degree": 0.3333}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadTuningConfig(writeConfig(t, tt.file, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadTuningConfig_Missing(t *testing.T) {
	_, err := LoadTuningConfig(filepath.Join(t.TempDir(), "absent.json"))
	assert.ErrorContains(t, err, "failed to stat config file")
}

func TestLoadTuningConfig_TooLarge(t *testing.T) {
	big := make([]byte, 1024*1024+1)
	for i := range big {
		big[i] = ' '
	}
	_, err := LoadTuningConfig(writeConfig(t, "big.json", string(big)))
	assert.ErrorContains(t, err, "too large")
}
