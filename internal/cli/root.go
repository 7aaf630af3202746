package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lazypower/resonance/internal/config"
	"github.com/lazypower/resonance/internal/engine"
	"github.com/lazypower/resonance/internal/llm"
	"github.com/lazypower/resonance/internal/logging"
	"github.com/lazypower/resonance/internal/store"
)

var (
	configPath string
	logLevel   string
	logFormat  string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "resonance",
	Short: "Conversational knowledge engine",
	Long: "Resonance extracts keywords and recurring subjects from conversations, keeps versioned " +
		"summaries, proposes related past subjects and records per-keyword access preferences.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			loaded.Log.Level = logLevel
		}
		if cmd.Flags().Changed("log-format") {
			loaded.Log.Format = logFormat
		}
		l, err := logging.New(loaded.Log.Level, loaded.Log.Format)
		if err != nil {
			return err
		}
		cfg, logger = loaded, l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logger.Sync()
		}
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (default $"+config.PathEnv+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "Log format: console or json")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(proposalsCmd)
	rootCmd.AddCommand(accessCmd)
	rootCmd.AddCommand(keywordsCmd)
	rootCmd.AddCommand(principalsCmd)
}

// openDB opens the configured database, defaulting to ~/.resonance/resonance.db.
func openDB() (*store.DB, error) {
	dbPath := cfg.Database.Path
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// openEngine opens the database and builds an engine over the configured
// provider. An unusable provider is logged and analysis runs on fallbacks.
func openEngine() (*engine.Engine, func(), error) {
	db, err := openDB()
	if err != nil {
		return nil, nil, err
	}
	client, err := llm.NewClient(cfg.LLM)
	if err != nil {
		logger.Warn("LLM not configured, using fallbacks", zap.Error(err))
		client = nil
	}
	eng := engine.New(db, client, *cfg, logger)
	return eng, func() {
		eng.Stop()
		db.Close()
	}, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
