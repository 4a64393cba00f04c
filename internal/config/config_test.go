package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/railtwin/traincontrol/internal/platform/optimization"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
	assert.Equal(t, optimization.DefaultTuning(), cfg.Tuning())
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
listenAddr: ":9090"
defaultRegion: Mumbai Division
tickRate: 250ms
snapshotSchedule: "*/1 * * * *"
tuningProfile: low
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "Mumbai Division", cfg.DefaultRegion)
	assert.Equal(t, 250*time.Millisecond, cfg.TickRate)
	assert.Equal(t, 5*time.Second, cfg.KPIInterval)
	assert.Equal(t, "traincontrol.db", cfg.DatabasePath)
	assert.Equal(t, optimization.LowResourceTuning(), cfg.Tuning())
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "listenAddr: \":9090\"\n")
	t.Setenv("TRAINCONTROL_LISTEN_ADDR", ":7070")
	t.Setenv("TRAINCONTROL_DB_PATH", "")
	t.Setenv("TRAINCONTROL_TICK_RATE", "2s")
	t.Setenv("TRAINCONTROL_REGION", "Mumbai Division")
	t.Setenv("TRAINCONTROL_TUNING", "stress")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.ListenAddr)
	assert.Equal(t, "", cfg.DatabasePath)
	assert.Equal(t, 2*time.Second, cfg.TickRate)
	assert.Equal(t, "Mumbai Division", cfg.DefaultRegion)
	assert.Equal(t, "stress", cfg.TuningProfile)
}

func TestMalformedEnvDurationIgnored(t *testing.T) {
	t.Setenv("TRAINCONTROL_TICK_RATE", "fast")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.TickRate)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"zero tick rate", "tickRate: 0s\n"},
		{"negative kpi interval", "kpiInterval: -1s\n"},
		{"bad cron expression", "snapshotSchedule: \"every now and then\"\n"},
		{"unknown profile", "tuningProfile: turbo\n"},
		{"empty listen addr", "listenAddr: \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "tickRate: [\n"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidConfig)
}
