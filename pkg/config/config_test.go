package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 100, cfg.Cache.MaxSize)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL())
	assert.Equal(t, "fa", cfg.Feedback.Locale)
	assert.Equal(t, 2, cfg.Feedback.MaxReferences)
	assert.False(t, cfg.Scoring.StrictTimeManagement)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 250*time.Millisecond, cfg.Procedures.Debounce())
}

func TestLoadFile_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
cache:
  maxSize: 10
  ttlSec: 30
scoring:
  baseline: 50
  strictTimeManagement: true
feedback:
  locale: en
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Cache.MaxSize)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL())
	assert.Equal(t, 50, cfg.Scoring.Baseline)
	assert.True(t, cfg.Scoring.StrictTimeManagement)
	assert.Equal(t, "en", cfg.Feedback.Locale)
}

func TestLoadFile_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "zero cache size", body: "cache:\n  maxSize: 0\n"},
		{name: "baseline above range", body: "scoring:\n  baseline: 101\n"},
		{name: "unknown locale", body: "feedback:\n  locale: de\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o644))

			_, err := LoadFile(path)
			assert.Error(t, err)
		})
	}
}
