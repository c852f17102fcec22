package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.validate())
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL.Std())
	assert.Equal(t, 12, cfg.League.Teams)
	assert.Equal(t, 260.0, cfg.League.BudgetPerTeam)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Cache.TTL, cfg.Cache.TTL)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
port: "9090"
log_level: debug
upstream:
  base_url: https://draft.example.com
  timeout: 10s
cache:
  ttl: 90s
lock:
  ttl: 45s
  poll_interval: 250ms
  max_polls: 8
league:
  teams: 10
  budget_per_team: 300
  roster_slots:
    SS: 1
    OF: 3
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "https://draft.example.com", cfg.Upstream.BaseURL)
	assert.Equal(t, 90*time.Second, cfg.Cache.TTL.Std())
	assert.Equal(t, 45*time.Second, cfg.Lock.TTL.Std())
	assert.Equal(t, 250*time.Millisecond, cfg.Lock.PollInterval.Std())
	assert.Equal(t, 8, cfg.Lock.MaxPolls)
	assert.Equal(t, 10, cfg.League.Teams)
	assert.Equal(t, 300.0, cfg.League.BudgetPerTeam)
	assert.Equal(t, 3, cfg.League.RosterSlots["OF"])
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: \"9090\"\n"), 0o644))

	t.Setenv("PORT", "7070")
	t.Setenv("CACHE_TTL", "2m")
	t.Setenv("LEAGUE_TEAMS", "14")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Port)
	assert.Equal(t, 2*time.Minute, cfg.Cache.TTL.Std())
	assert.Equal(t, 14, cfg.League.Teams)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.League.Teams = 0
	assert.Error(t, cfg.validate())

	cfg = Default()
	cfg.Projections.Driver = "mysql"
	assert.Error(t, cfg.validate())

	cfg = Default()
	cfg.Auth.Mode = "none"
	assert.Error(t, cfg.validate())

	cfg = Default()
	cfg.Cache.TTL = 0
	assert.Error(t, cfg.validate())
}

func TestBadDurationInYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cache:\n  ttl: soon\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
