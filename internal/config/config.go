package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix marks environment variables that override file values.
const EnvPrefix = "NUKA_"

// Config is the top-level configuration structure.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Pipeline  PipelineConfig  `json:"pipeline"`
	Memory    MemoryConfig    `json:"memory"`
	Tagging   TaggingConfig   `json:"tagging"`
	Knowledge KnowledgeConfig `json:"knowledge"`
	Redis     RedisConfig     `json:"redis"`
	Database  DatabaseConfig  `json:"database"`
	Qdrant    QdrantConfig    `json:"qdrant"`
	Embedding EmbeddingConfig `json:"embedding"`

	// UnknownEnv lists NUKA_ variables that matched no setting, squashed
	// the way applyEnv matches them.
	UnknownEnv []string `json:"-"`
}

type ServerConfig struct {
	Port      int    `json:"port"`
	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"` // "console" or "json"
}

type PipelineConfig struct {
	PerAgentTimeoutMs int `json:"perAgentTimeoutMs"`
}

type MemoryConfig struct {
	ShortMemoryMax   int     `json:"shortMemoryMax"`
	LongMemoryMax    int     `json:"longMemoryMax"`
	ContextWindow    int     `json:"contextWindow"`
	MemoryDecayHours float64 `json:"memoryDecayHours"`
	DecaySchedule    string  `json:"decaySchedule"` // cron spec, empty disables
	RulesPath        string  `json:"rulesPath"`
}

type TaggingConfig struct {
	TagConfidenceThreshold float64 `json:"tagConfidenceThreshold"`
	RulesPath              string  `json:"rulesPath"`
}

type KnowledgeConfig struct {
	KnowledgeTopK       int      `json:"knowledgeTopK"`
	SimilarityThreshold float64  `json:"similarityThreshold"`
	Sources             []string `json:"sources"` // any of "chromem", "qdrant", "postgres"
	SeedPath            string   `json:"seedPath"`
}

type RedisConfig struct {
	URL    string `json:"url"`
	Stream string `json:"stream"`
	MaxLen int64  `json:"maxLen"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres"`
}

type PostgresConfig struct {
	DSN           string `json:"dsn"`
	MigrationsDir string `json:"migrations_dir"`
}

type QdrantConfig struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Collection string `json:"collection"`
}

type EmbeddingConfig struct {
	Provider  string `json:"provider"`
	Endpoint  string `json:"endpoint"`
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	Dimension int    `json:"dimension"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Port: 8090, LogLevel: "info", LogFormat: "console"},
		Pipeline: PipelineConfig{PerAgentTimeoutMs: 3000},
		Memory: MemoryConfig{
			ShortMemoryMax:   20,
			LongMemoryMax:    100,
			ContextWindow:    10,
			MemoryDecayHours: 24,
			DecaySchedule:    "@hourly",
		},
		Tagging:   TaggingConfig{TagConfidenceThreshold: 0.6},
		Knowledge: KnowledgeConfig{KnowledgeTopK: 5, SimilarityThreshold: 0.7},
		Redis:     RedisConfig{Stream: "nuka:cs:outcomes", MaxLen: 10000},
		Database:  DatabaseConfig{Postgres: PostgresConfig{MigrationsDir: "migrations"}},
		Qdrant:    QdrantConfig{Host: "localhost", Port: 6334, Collection: "nuka_cs_knowledge"},
		Embedding: EmbeddingConfig{Provider: "hash", Dimension: 384},
	}
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load builds the configuration from defaults, an optional JSON file and
// NUKA_ environment overrides, then validates it. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := json.Unmarshal([]byte(substituteEnv(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// substituteEnv replaces ${VAR} and ${VAR:default} with environment values.
func substituteEnv(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		if v := os.Getenv(parts[1]); v != "" {
			return v
		}
		return parts[2]
	})
}

// applyEnv overlays NUKA_SECTION_KEY variables. Names are matched with
// underscores removed, so NUKA_MEMORY_SHORTMEMORYMAX and
// NUKA_MEMORY_SHORT_MEMORY_MAX both set memory.shortMemoryMax. Values that
// do not parse are errors; names that match no setting are recorded in
// UnknownEnv.
func (c *Config) applyEnv() error {
	k := koanf.New(".")
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return squashKey(strings.TrimPrefix(s, EnvPrefix))
	}), nil)
	if err != nil {
		return fmt.Errorf("load env overrides: %w", err)
	}

	fields := c.envFields()
	var errs []error
	c.UnknownEnv = nil
	for _, key := range k.Keys() {
		set, ok := fields[key]
		if !ok {
			c.UnknownEnv = append(c.UnknownEnv, key)
			continue
		}
		if err := set(k.String(key)); err != nil {
			errs = append(errs, fmt.Errorf("env %s: %w", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid env overrides: %w", errors.Join(errs...))
	}
	return nil
}

// squashKey lower-cases a setting path and drops its separators.
func squashKey(s string) string {
	return strings.NewReplacer("_", "", ".", "").Replace(strings.ToLower(s))
}

func (c *Config) envFields() map[string]func(string) error {
	intVar := func(dst *int) func(string) error {
		return func(v string) error {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("not an integer: %q", v)
			}
			*dst = n
			return nil
		}
	}
	int64Var := func(dst *int64) func(string) error {
		return func(v string) error {
			n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return fmt.Errorf("not an integer: %q", v)
			}
			*dst = n
			return nil
		}
	}
	floatVar := func(dst *float64) func(string) error {
		return func(v string) error {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return fmt.Errorf("not a number: %q", v)
			}
			*dst = f
			return nil
		}
	}
	stringVar := func(dst *string) func(string) error {
		return func(v string) error {
			*dst = v
			return nil
		}
	}

	byPath := map[string]func(string) error{
		"server.port":                    intVar(&c.Server.Port),
		"server.loglevel":                stringVar(&c.Server.LogLevel),
		"server.logformat":               stringVar(&c.Server.LogFormat),
		"pipeline.peragenttimeoutms":     intVar(&c.Pipeline.PerAgentTimeoutMs),
		"memory.shortmemorymax":          intVar(&c.Memory.ShortMemoryMax),
		"memory.longmemorymax":           intVar(&c.Memory.LongMemoryMax),
		"memory.contextwindow":           intVar(&c.Memory.ContextWindow),
		"memory.memorydecayhours":        floatVar(&c.Memory.MemoryDecayHours),
		"memory.decayschedule":           stringVar(&c.Memory.DecaySchedule),
		"memory.rulespath":               stringVar(&c.Memory.RulesPath),
		"tagging.tagconfidencethreshold": floatVar(&c.Tagging.TagConfidenceThreshold),
		"tagging.rulespath":              stringVar(&c.Tagging.RulesPath),
		"knowledge.knowledgetopk":        intVar(&c.Knowledge.KnowledgeTopK),
		"knowledge.similaritythreshold":  floatVar(&c.Knowledge.SimilarityThreshold),
		"knowledge.seedpath":             stringVar(&c.Knowledge.SeedPath),
		"knowledge.sources": func(v string) error {
			c.Knowledge.Sources = splitList(v)
			return nil
		},
		"redis.url":                       stringVar(&c.Redis.URL),
		"redis.stream":                    stringVar(&c.Redis.Stream),
		"redis.maxlen":                    int64Var(&c.Redis.MaxLen),
		"database.postgres.dsn":           stringVar(&c.Database.Postgres.DSN),
		"database.postgres.migrationsdir": stringVar(&c.Database.Postgres.MigrationsDir),
		"qdrant.host":                     stringVar(&c.Qdrant.Host),
		"qdrant.port":                     intVar(&c.Qdrant.Port),
		"qdrant.collection":               stringVar(&c.Qdrant.Collection),
		"embedding.provider":              stringVar(&c.Embedding.Provider),
		"embedding.endpoint":              stringVar(&c.Embedding.Endpoint),
		"embedding.model":                 stringVar(&c.Embedding.Model),
		"embedding.apikey":                stringVar(&c.Embedding.APIKey),
		"embedding.dimension":             intVar(&c.Embedding.Dimension),
	}
	fields := make(map[string]func(string) error, len(byPath))
	for path, set := range byPath {
		fields[squashKey(path)] = set
	}
	return fields
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	positive := func(name string, v int) {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}
	unit := func(name string, v float64) {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s must be in [0,1], got %g", name, v))
		}
	}

	positive("server.port", c.Server.Port)
	positive("pipeline.perAgentTimeoutMs", c.Pipeline.PerAgentTimeoutMs)
	positive("memory.shortMemoryMax", c.Memory.ShortMemoryMax)
	positive("memory.longMemoryMax", c.Memory.LongMemoryMax)
	positive("memory.contextWindow", c.Memory.ContextWindow)
	if c.Memory.MemoryDecayHours <= 0 {
		errs = append(errs, fmt.Errorf("memory.memoryDecayHours must be positive, got %g", c.Memory.MemoryDecayHours))
	}
	unit("tagging.tagConfidenceThreshold", c.Tagging.TagConfidenceThreshold)
	positive("knowledge.knowledgeTopK", c.Knowledge.KnowledgeTopK)
	unit("knowledge.similarityThreshold", c.Knowledge.SimilarityThreshold)
	for _, s := range c.Knowledge.Sources {
		switch s {
		case "chromem", "qdrant", "postgres":
		default:
			errs = append(errs, fmt.Errorf("knowledge.sources: unknown source %q", s))
		}
	}
	switch c.Server.LogFormat {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("server.log_format must be console or json, got %q", c.Server.LogFormat))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
