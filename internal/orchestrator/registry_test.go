package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nidhogg/nuka-cs/internal/analysis"
)

type stubAnalyzer struct {
	name    string
	analyze func(ctx context.Context, req analysis.Request) (any, error)
	valid   func(req analysis.Request) bool
	calls   atomic.Int32
	cfg     map[string]any
}

func newStub(name string, payload any) *stubAnalyzer {
	return &stubAnalyzer{name: name, analyze: func(context.Context, analysis.Request) (any, error) {
		return payload, nil
	}}
}

func (s *stubAnalyzer) Name() string { return s.name }

func (s *stubAnalyzer) Validate(req analysis.Request) bool {
	if s.valid != nil {
		return s.valid(req)
	}
	return true
}

func (s *stubAnalyzer) Analyze(ctx context.Context, req analysis.Request) (any, error) {
	s.calls.Add(1)
	return s.analyze(ctx, req)
}

func (s *stubAnalyzer) Configure(cfg map[string]any) error {
	if _, bad := cfg["reject"]; bad {
		return errors.New("rejected")
	}
	s.cfg = cfg
	return nil
}

func names(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

func TestRegistry_PriorityOrder(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	for _, n := range []string{"custom_b", analysis.AgentKnowledge, analysis.AgentTag, "custom_a", analysis.AgentMemory, analysis.AgentSentiment} {
		require.NoError(t, r.Register(n, newStub(n, nil)))
	}
	assert.Equal(t, []string{"sentiment", "memory", "tag", "knowledge", "custom_b", "custom_a"}, names(r.Active()))

	require.NoError(t, r.SetPriority("custom_a", 0))
	assert.Equal(t, []string{"custom_a", "sentiment", "memory", "tag", "knowledge", "custom_b"}, r.Names())

	require.NoError(t, r.SetActive(analysis.AgentMemory, false))
	assert.Equal(t, []string{"custom_a", "sentiment", "tag", "knowledge", "custom_b"}, names(r.Active()))
	assert.Len(t, r.Status(), 6)
}

func TestRegistry_Lifecycle(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	s := newStub("tag", nil)
	require.NoError(t, r.Register("tag", s))

	assert.ErrorIs(t, r.Register("tag", s), ErrAnalyzerExists)
	assert.ErrorIs(t, r.Unregister("missing"), ErrAnalyzerNotFound)
	assert.ErrorIs(t, r.SetActive("missing", true), ErrAnalyzerNotFound)
	assert.ErrorIs(t, r.SetPriority("missing", 1), ErrAnalyzerNotFound)
	assert.ErrorIs(t, r.UpdateConfig("missing", nil), ErrAnalyzerNotFound)
	assert.Error(t, r.Register("", s))

	require.NoError(t, r.UpdateConfig("tag", map[string]any{"threshold": 0.7}))
	require.NoError(t, r.UpdateConfig("tag", map[string]any{"rules": "x"}))
	assert.Equal(t, map[string]any{"rules": "x"}, s.cfg)

	st := r.Status()
	require.Len(t, st, 1)
	assert.Equal(t, map[string]any{"threshold": 0.7, "rules": "x"}, st[0].Config)
	assert.True(t, st[0].Active)
	assert.Equal(t, 3, st[0].Priority)

	assert.Error(t, r.UpdateConfig("tag", map[string]any{"reject": true}))
	assert.NotContains(t, r.Status()[0].Config, "reject")

	_, active, err := r.Get("tag")
	require.NoError(t, err)
	assert.True(t, active)

	require.NoError(t, r.Unregister("tag"))
	assert.Empty(t, r.Active())
}

func TestRegistry_StatusCountsCalls(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	ok := newStub("ok", "fine")
	bad := &stubAnalyzer{name: "bad", analyze: func(context.Context, analysis.Request) (any, error) {
		return nil, fmt.Errorf("lookup failed")
	}}
	require.NoError(t, r.Register("ok", ok))
	require.NoError(t, r.Register("bad", bad))

	o := New(r, 0, zap.NewNop())
	for range 2 {
		_, err := o.RunPipeline(context.Background(), analysis.Request{UserID: "u1", Message: "hi"})
		require.NoError(t, err)
	}

	byName := map[string]AnalyzerStatus{}
	for _, s := range r.Status() {
		byName[s.Name] = s
	}
	assert.EqualValues(t, 2, byName["ok"].Calls)
	assert.EqualValues(t, 0, byName["ok"].Failures)
	assert.EqualValues(t, 2, byName["bad"].Failures)
	assert.Equal(t, "lookup failed", byName["bad"].LastError)
}
