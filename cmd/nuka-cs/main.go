package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nidhogg/nuka-cs/internal/config"
)

var (
	cfgPath  string
	logLevel string
)

// rootCmd is the top-level command.
var rootCmd = &cobra.Command{
	Use:   "nuka-cs",
	Short: "Customer-service analysis and memory engine",
	Long: "nuka-cs runs each customer message through sentiment, memory, tag and knowledge " +
		"analyzers, decides the conversation state and keeps per-user memory.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Config file (default: $CONFIG_PATH, else built-in defaults)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override server.log_level (debug, info, warn, error)")
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves the config path from the flag or CONFIG_PATH.
func loadConfig() (*config.Config, error) {
	path := cfgPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Server.LogLevel = logLevel
	}
	return cfg, nil
}

// newLogger builds a development logger for console output and a
// production logger for json.
func newLogger(cfg config.ServerConfig) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.LogLevel != "" {
		if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
			return nil, fmt.Errorf("parse log level %q: %w", cfg.LogLevel, err)
		}
	}

	var zc zap.Config
	if cfg.LogFormat == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// setup loads config and logger for a command.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := newLogger(cfg.Server)
	if err != nil {
		return nil, nil, err
	}
	for _, key := range cfg.UnknownEnv {
		logger.Warn("environment override matches no setting",
			zap.String("prefix", config.EnvPrefix), zap.String("key", key))
	}
	return cfg, logger, nil
}
