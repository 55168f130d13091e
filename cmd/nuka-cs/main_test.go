package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nidhogg/nuka-cs/internal/analysis"
	"github.com/nidhogg/nuka-cs/internal/api"
	"github.com/nidhogg/nuka-cs/internal/config"
	"github.com/nidhogg/nuka-cs/internal/memory"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"console", "json", ""} {
		l, err := newLogger(config.ServerConfig{LogLevel: "debug", LogFormat: format})
		require.NoError(t, err, format)
		assert.True(t, l.Core().Enabled(zap.DebugLevel))
	}

	_, err := newLogger(config.ServerConfig{LogLevel: "loud"})
	assert.Error(t, err)
}

func TestLoadSeed(t *testing.T) {
	path := writeFile(t, "seed.json", `[{"id":"p1","text":"商品信息：蓝牙耳机，续航30小时"}]`)
	docs, err := loadSeed(path)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "p1", docs[0].ID)

	_, err = loadSeed(writeFile(t, "bad.json", `{`))
	assert.Error(t, err)
	_, err = loadSeed(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestBuildApp_ChromemAndRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Default()
	cfg.Knowledge.Sources = []string{"chromem", "postgres"}
	cfg.Knowledge.SeedPath = writeFile(t, "seed.json", `[
		{"id":"faq1","text":"常见问题：退货需要在七天内申请"},
		{"id":"p1","text":"商品信息：蓝牙耳机，续航30小时"}
	]`)
	cfg.Redis.URL = "redis://" + mr.Addr()

	a, err := buildApp(context.Background(), cfg, zap.NewNop(), true)
	require.NoError(t, err)
	defer a.Close()
	require.NotNil(t, a.publisher)

	out, err := a.assistant.Handle(context.Background(), analysis.Request{UserID: "u1", Message: "退货怎么申请"})
	require.NoError(t, err)
	require.Len(t, out.Signals, 4)
	assert.True(t, out.Signals[analysis.AgentKnowledge].Success)

	require.NoError(t, a.publisher.Publish(context.Background(), out))
	assert.Equal(t, []string{a.publisher.Stream()}, mr.Keys())
}

func TestBuildApp_NoSources(t *testing.T) {
	cfg := config.Default()
	cfg.Redis.URL = ""
	a, err := buildApp(context.Background(), cfg, zap.NewNop(), true)
	require.NoError(t, err)
	defer a.Close()
	assert.Nil(t, a.publisher)

	out, err := a.assistant.Handle(context.Background(), analysis.Request{UserID: "u1", Message: "你好"})
	require.NoError(t, err)
	p, ok := out.Signals[analysis.AgentKnowledge].Payload.(*analysis.KnowledgePayload)
	require.True(t, ok)
	assert.InDelta(t, 0.1, p.Confidence, 1e-9)
}

func TestBuildApp_BadRulesPath(t *testing.T) {
	cfg := config.Default()
	cfg.Tagging.RulesPath = filepath.Join(t.TempDir(), "missing.json")
	_, err := buildApp(context.Background(), cfg, zap.NewNop(), false)
	assert.Error(t, err)
}

func TestStartDecay(t *testing.T) {
	store := memory.NewStore(memory.DefaultConfig(), memory.DefaultRules(), zap.NewNop())

	c, err := startDecay("", store, 24, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, c)

	_, err = startDecay("every now and then", store, 24, zap.NewNop())
	assert.Error(t, err)

	c, err = startDecay("@hourly", store, 24, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Len(t, c.Entries(), 1)
	<-c.Stop().Done()
}

func TestChatClient(t *testing.T) {
	a, err := buildApp(context.Background(), config.Default(), zap.NewNop(), false)
	require.NoError(t, err)
	defer a.Close()
	ts := httptest.NewServer(api.NewHandler(a.assistant, a.fusion, 0, zap.NewNop()).Router())
	defer ts.Close()

	var out bytes.Buffer
	c := &chatClient{server: ts.URL, user: "u1", session: "s1", http: ts.Client(), out: &out}

	c.sendMessage("有优惠吗")
	assert.Contains(t, out.String(), "greeting → ")
	assert.Contains(t, out.String(), "price_sensitive")

	out.Reset()
	c.sendReply("我们正在做活动")
	assert.Contains(t, out.String(), "reply recorded")

	out.Reset()
	c.fetchAnalyzers()
	for _, name := range []string{"sentiment", "memory", "tag", "knowledge"} {
		assert.Contains(t, out.String(), name)
	}

	out.Reset()
	c.fetchContext()
	assert.True(t, strings.HasPrefix(out.String(), "[Memory Context]"))

	out.Reset()
	c.fetchSummary()
	var sum memory.Summary
	require.NoError(t, json.Unmarshal(out.Bytes(), &sum))
	assert.Equal(t, "u1", sum.UserID)
}

func TestRulesCheckCommand(t *testing.T) {
	path := writeFile(t, "tags.json", `{"rules":[{"name":"vip","keywords":["会员"],"patterns":["老.*会员"]}]}`)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"rules", "check", path, "--kind", "tags"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "ok: 1 tag rules (vip)")

	bad := writeFile(t, "bad.json", `{"rules":[{"name":"broken","patterns":["("]}]}`)
	rootCmd.SetArgs([]string{"rules", "check", bad, "--kind", "tags"})
	assert.Error(t, rootCmd.Execute())
}

func TestAnalyzeCommand(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"analyze", "--user", "u1", "--log-level", "error", "这个产品好贵，有优惠吗"})
	require.NoError(t, rootCmd.Execute())

	var outcome struct {
		State string `json:"state"`
		Rule  string `json:"rule"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &outcome))
	assert.NotEmpty(t, outcome.State)
}
