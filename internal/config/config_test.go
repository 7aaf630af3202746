package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "resonance.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "127.0.0.1:37778", cfg.ListenAddr())
}

func TestLoadEnvOnlyMatchesDefault(t *testing.T) {
	t.Setenv(PathEnv, "")
	cfg, err := Load("")
	require.NoError(t, err)
	def := Default()
	assert.Equal(t, def.Server, cfg.Server)
	assert.Equal(t, def.Analysis, cfg.Analysis)
	assert.Equal(t, def.Proposals, cfg.Proposals)
	assert.Equal(t, def.Resonance, cfg.Resonance)
}

func TestLoadYAML(t *testing.T) {
	path := writeYAML(t, `
server:
  port: 9090
llm:
  provider: ollama
  timeout: 5s
analysis:
  reanalyze_threshold: 3
proposals:
  cache_ttl: 2m
resonance:
  threshold: 0.5
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, 5*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 3, cfg.Analysis.ReanalyzeThreshold)
	assert.Equal(t, 2*time.Minute, cfg.Proposals.CacheTTL)
	assert.InDelta(t, 0.5, cfg.Resonance.Threshold, 1e-9)
	// untouched sections keep their defaults
	assert.Equal(t, 20, cfg.Analysis.SubjectKeywords)
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	path := writeYAML(t, "server:\n  port: 9090\n")
	t.Setenv("RESONANCE_PORT", "9191")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
}

func TestLoadPathFromEnv(t *testing.T) {
	path := writeYAML(t, "log:\n  level: debug\n")
	t.Setenv(PathEnv, path)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "gpt" }},
		{"zero timeout", func(c *Config) { c.LLM.Timeout = 0 }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
		{"zero threshold", func(c *Config) { c.Analysis.ReanalyzeThreshold = 0 }},
		{"zero min count", func(c *Config) { c.Analysis.MinMessageCount = 0 }},
		{"zero cache", func(c *Config) { c.Proposals.CacheSize = 0 }},
		{"empty owner", func(c *Config) { c.Proposals.Owner = "" }},
		{"resonance threshold", func(c *Config) { c.Resonance.Threshold = 1.5 }},
		{"parallelism", func(c *Config) { c.Resonance.Parallelism = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected validation error")
			}
		})
	}
}
