package config

import (
	"fmt"
	"time"
)

// Config holds all resonance configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	LLM       LLMConfig       `yaml:"llm"`
	Log       LogConfig       `yaml:"log"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Proposals ProposalsConfig `yaml:"proposals"`
	Resonance ResonanceConfig `yaml:"resonance"`
}

type ServerConfig struct {
	Bind            string        `yaml:"bind"             env:"RESONANCE_BIND"             env-default:"127.0.0.1"`
	Port            int           `yaml:"port"             env:"RESONANCE_PORT"             env-default:"37778"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"RESONANCE_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" env:"RESONANCE_DB_PATH"` // resolved at runtime via store.DefaultDBPath() when empty
}

type LLMConfig struct {
	Provider     string        `yaml:"provider"      env:"RESONANCE_LLM_PROVIDER" env-default:"none"` // "none", "claude-cli", "anthropic", "ollama", "gemini"
	Model        string        `yaml:"model"         env:"RESONANCE_LLM_MODEL"`
	OllamaURL    string        `yaml:"ollama_url"    env:"OLLAMA_URL"`
	AnthropicKey string        `yaml:"anthropic_key" env:"ANTHROPIC_API_KEY"`
	GeminiKey    string        `yaml:"gemini_key"    env:"GEMINI_API_KEY"`
	Timeout      time.Duration `yaml:"timeout"       env:"RESONANCE_LLM_TIMEOUT"  env-default:"30s"`
	Describe     bool          `yaml:"describe"      env:"RESONANCE_LLM_DESCRIBE" env-default:"false"` // ask the model for subject descriptions
}

type LogConfig struct {
	Level  string `yaml:"level"  env:"RESONANCE_LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"RESONANCE_LOG_FORMAT" env-default:"console"` // "console" or "json"
}

// AnalysisConfig tunes extraction and subject identification.
type AnalysisConfig struct {
	MaxKeywords        int           `yaml:"max_keywords"         env:"RESONANCE_MAX_KEYWORDS"         env-default:"15"`
	SubjectKeywords    int           `yaml:"subject_keywords"     env:"RESONANCE_SUBJECT_KEYWORDS"     env-default:"20"`
	MinMessageCount    int           `yaml:"min_message_count"    env:"RESONANCE_MIN_MESSAGE_COUNT"    env-default:"2"`
	ReanalyzeThreshold int           `yaml:"reanalyze_threshold"  env:"RESONANCE_REANALYZE_THRESHOLD"  env-default:"1"`
	ExtractCacheSize   int           `yaml:"extract_cache_size"   env:"RESONANCE_EXTRACT_CACHE_SIZE"   env-default:"100"`
	RecentMessages     int           `yaml:"recent_messages"      env:"RESONANCE_RECENT_MESSAGES"      env-default:"10"`
	SweepInterval      time.Duration `yaml:"sweep_interval"       env:"RESONANCE_SWEEP_INTERVAL"       env-default:"5m"`
}

type ProposalsConfig struct {
	CacheSize int           `yaml:"cache_size" env:"RESONANCE_PROPOSAL_CACHE_SIZE" env-default:"50"`
	CacheTTL  time.Duration `yaml:"cache_ttl"  env:"RESONANCE_PROPOSAL_CACHE_TTL"  env-default:"60s"`
	Owner     string        `yaml:"owner"      env:"RESONANCE_OWNER"               env-default:"default"`
}

type ResonanceConfig struct {
	Threshold   float64 `yaml:"threshold"    env:"RESONANCE_THRESHOLD"    env-default:"0.3"`
	MaxPatterns int     `yaml:"max_patterns" env:"RESONANCE_MAX_PATTERNS" env-default:"5"`
	QueryLimit  int     `yaml:"query_limit"  env:"RESONANCE_QUERY_LIMIT"  env-default:"10"`
	Parallelism int     `yaml:"parallelism"  env:"RESONANCE_PARALLELISM"  env-default:"4"`
}

// Default returns a Config with the same values the env-default tags carry.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind:            "127.0.0.1",
			Port:            37778,
			ShutdownTimeout: 10 * time.Second,
		},
		LLM: LLMConfig{
			Provider: "none",
			Timeout:  30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Analysis: AnalysisConfig{
			MaxKeywords:        15,
			SubjectKeywords:    20,
			MinMessageCount:    2,
			ReanalyzeThreshold: 1,
			ExtractCacheSize:   100,
			RecentMessages:     10,
			SweepInterval:      5 * time.Minute,
		},
		Proposals: ProposalsConfig{
			CacheSize: 50,
			CacheTTL:  60 * time.Second,
			Owner:     "default",
		},
		Resonance: ResonanceConfig{
			Threshold:   0.3,
			MaxPatterns: 5,
			QueryLimit:  10,
			Parallelism: 4,
		},
	}
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
