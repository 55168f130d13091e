package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nuka-cs.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 3000, cfg.Pipeline.PerAgentTimeoutMs)
	assert.Equal(t, 20, cfg.Memory.ShortMemoryMax)
	assert.Equal(t, 100, cfg.Memory.LongMemoryMax)
	assert.Equal(t, 10, cfg.Memory.ContextWindow)
	assert.Equal(t, 24.0, cfg.Memory.MemoryDecayHours)
	assert.Equal(t, 0.6, cfg.Tagging.TagConfidenceThreshold)
	assert.Equal(t, 5, cfg.Knowledge.KnowledgeTopK)
	assert.Equal(t, 0.7, cfg.Knowledge.SimilarityThreshold)
}

func TestLoad_FileWithSubstitution(t *testing.T) {
	t.Setenv("TEST_REDIS_URL", "redis://cache:6379/2")
	path := writeConfig(t, `{
		"server": {"port": 9000, "log_level": "debug"},
		"memory": {"shortMemoryMax": 5},
		"knowledge": {"sources": ["chromem"]},
		"redis": {"url": "${TEST_REDIS_URL}"},
		"database": {"postgres": {"dsn": "${TEST_PG_DSN:postgres://localhost/nuka}"}}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, 5, cfg.Memory.ShortMemoryMax)
	assert.Equal(t, 100, cfg.Memory.LongMemoryMax, "unset keys keep defaults")
	assert.Equal(t, []string{"chromem"}, cfg.Knowledge.Sources)
	assert.Equal(t, "redis://cache:6379/2", cfg.Redis.URL)
	assert.Equal(t, "postgres://localhost/nuka", cfg.Database.Postgres.DSN)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `{"memory": {"shortMemoryMax": 5}}`)
	t.Setenv("NUKA_MEMORY_SHORTMEMORYMAX", "7")
	t.Setenv("NUKA_TAGGING_TAGCONFIDENCETHRESHOLD", "0.8")
	t.Setenv("NUKA_KNOWLEDGE_SOURCES", "chromem, postgres")
	t.Setenv("NUKA_DATABASE_POSTGRES_DSN", "postgres://db/cs")
	t.Setenv("NUKA_SERVER_LOGFORMAT", "json")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Memory.ShortMemoryMax)
	assert.Equal(t, 0.8, cfg.Tagging.TagConfidenceThreshold)
	assert.Equal(t, []string{"chromem", "postgres"}, cfg.Knowledge.Sources)
	assert.Equal(t, "postgres://db/cs", cfg.Database.Postgres.DSN)
	assert.Equal(t, "json", cfg.Server.LogFormat)
}

func TestLoad_EnvUnderscoredNames(t *testing.T) {
	t.Setenv("NUKA_MEMORY_SHORT_MEMORY_MAX", "9")
	t.Setenv("NUKA_KNOWLEDGE_SIMILARITY_THRESHOLD", "0.5")
	t.Setenv("NUKA_DATABASE_POSTGRES_MIGRATIONS_DIR", "db/migrations")
	t.Setenv("NUKA_REDIS_MAX_LEN", "42")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Memory.ShortMemoryMax)
	assert.Equal(t, 0.5, cfg.Knowledge.SimilarityThreshold)
	assert.Equal(t, "db/migrations", cfg.Database.Postgres.MigrationsDir)
	assert.Equal(t, int64(42), cfg.Redis.MaxLen)
	assert.Empty(t, cfg.UnknownEnv)
}

func TestLoad_EnvUnknownName(t *testing.T) {
	t.Setenv("NUKA_MEMORY_SHORT_MAX", "9")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Memory.ShortMemoryMax)
	assert.Contains(t, cfg.UnknownEnv, "memoryshortmax")
}

func TestLoad_EnvRejectsUnparsableValues(t *testing.T) {
	t.Setenv("NUKA_MEMORY_SHORTMEMORYMAX", "seven")
	t.Setenv("NUKA_TAGGING_TAG_CONFIDENCE_THRESHOLD", "high")

	_, err := Load("")
	require.Error(t, err)
	assert.ErrorContains(t, err, "invalid env overrides")
	assert.ErrorContains(t, err, `not an integer: "seven"`)
	assert.ErrorContains(t, err, `not a number: "high"`)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "read config")

	_, err = Load(writeConfig(t, `{"server": `))
	assert.ErrorContains(t, err, "parse config")
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Memory.ShortMemoryMax = 0
	cfg.Tagging.TagConfidenceThreshold = 1.5
	cfg.Knowledge.SimilarityThreshold = -0.1
	cfg.Knowledge.Sources = []string{"elastic"}
	cfg.Server.LogFormat = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"memory.shortMemoryMax",
		"tagging.tagConfidenceThreshold",
		"knowledge.similarityThreshold",
		`unknown source "elastic"`,
		"server.log_format",
	} {
		assert.ErrorContains(t, err, want)
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	cfg, err := Load("../../configs/nuka-cs.example.json")
	require.NoError(t, err)
	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, []string{"chromem"}, cfg.Knowledge.Sources)
	assert.Equal(t, "@hourly", cfg.Memory.DecaySchedule)
}
