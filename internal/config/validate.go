package config

import (
	"fmt"
	"slices"
)

var providers = []string{"none", "claude-cli", "anthropic", "ollama", "gemini"}

// Validate rejects out-of-range values. Load calls it automatically.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535 (got %d)", c.Server.Port)
	}
	if !slices.Contains(providers, c.LLM.Provider) {
		return fmt.Errorf("llm.provider must be one of %v (got %q)", providers, c.LLM.Provider)
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("llm.timeout must be > 0 (got %v)", c.LLM.Timeout)
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be console or json (got %q)", c.Log.Format)
	}
	if err := c.Analysis.validate(); err != nil {
		return fmt.Errorf("analysis: %w", err)
	}
	if c.Proposals.CacheSize <= 0 {
		return fmt.Errorf("proposals.cache_size must be > 0 (got %d)", c.Proposals.CacheSize)
	}
	if c.Proposals.CacheTTL <= 0 {
		return fmt.Errorf("proposals.cache_ttl must be > 0 (got %v)", c.Proposals.CacheTTL)
	}
	if c.Proposals.Owner == "" {
		return fmt.Errorf("proposals.owner must not be empty")
	}
	if c.Resonance.Threshold < 0 || c.Resonance.Threshold > 1 {
		return fmt.Errorf("resonance.threshold must be in [0,1] (got %v)", c.Resonance.Threshold)
	}
	if c.Resonance.MaxPatterns <= 0 || c.Resonance.QueryLimit <= 0 || c.Resonance.Parallelism <= 0 {
		return fmt.Errorf("resonance.max_patterns, query_limit and parallelism must be > 0")
	}
	return nil
}

func (a *AnalysisConfig) validate() error {
	if a.MaxKeywords <= 0 {
		return fmt.Errorf("max_keywords must be > 0 (got %d)", a.MaxKeywords)
	}
	if a.SubjectKeywords <= 0 {
		return fmt.Errorf("subject_keywords must be > 0 (got %d)", a.SubjectKeywords)
	}
	if a.MinMessageCount < 1 {
		return fmt.Errorf("min_message_count must be >= 1 (got %d)", a.MinMessageCount)
	}
	if a.ReanalyzeThreshold < 1 {
		return fmt.Errorf("reanalyze_threshold must be >= 1 (got %d)", a.ReanalyzeThreshold)
	}
	if a.ExtractCacheSize <= 0 {
		return fmt.Errorf("extract_cache_size must be > 0 (got %d)", a.ExtractCacheSize)
	}
	if a.RecentMessages <= 0 {
		return fmt.Errorf("recent_messages must be > 0 (got %d)", a.RecentMessages)
	}
	if a.SweepInterval < 0 {
		return fmt.Errorf("sweep_interval must be >= 0 (got %v)", a.SweepInterval)
	}
	return nil
}
