package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nidhogg/nuka-cs/internal/knowledge"
	"github.com/nidhogg/nuka-cs/internal/memory"
	"github.com/nidhogg/nuka-cs/internal/sentiment"
	"github.com/nidhogg/nuka-cs/internal/tagging"
)

func TestValidate(t *testing.T) {
	err := Validate(Request{})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, []string{"user_id", "message"}, ve.Fields)
	assert.Contains(t, ve.Error(), "user_id, message")
	assert.ErrorIs(t, err, ErrInvalidInput)

	err = Validate(Request{UserID: "u1"})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, []string{"message"}, ve.Fields)

	assert.NoError(t, Validate(Request{UserID: "u1", Message: "你好"}))
}

func TestRequestNormalizeAndClone(t *testing.T) {
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	r := Request{UserID: "u1", Message: "hi", ContextHints: map[string]any{"a": 1}}.Normalize(now)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, memory.DefaultSessionID, r.SessionID)
	assert.Equal(t, now, r.Timestamp)

	c := r.WithHint("b", 2)
	assert.NotContains(t, r.ContextHints, "b")
	assert.Equal(t, 2, c.ContextHints["b"])
}

func TestStringsHint(t *testing.T) {
	req := Request{ContextHints: map[string]any{
		"plain":  []string{"a", "b"},
		"json":   []any{"x", 1, "y"},
		"labels": []sentiment.Label{sentiment.Negative},
		"single": "solo",
	}}
	assert.Equal(t, []string{"a", "b"}, StringsHint(req, "plain"))
	assert.Equal(t, []string{"x", "y"}, StringsHint(req, "json"))
	assert.Equal(t, []string{"negative"}, StringsHint(req, "labels"))
	assert.Equal(t, []string{"solo"}, StringsHint(req, "single"))
	assert.Nil(t, StringsHint(req, "missing"))
}

func TestDecodeHint(t *testing.T) {
	req := Request{ContextHints: map[string]any{
		HintSessionData: map[string]any{"message_count": 12.0, "avg_response_time": 3.0},
		"typed":         tagging.SessionData{MessageCount: 3},
		"bad":           "not an object",
	}}

	sd, ok, err := DecodeHint[tagging.SessionData](req, HintSessionData)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 12, sd.MessageCount)

	sd, ok, err = DecodeHint[tagging.SessionData](req, "typed")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, sd.MessageCount)

	_, ok, err = DecodeHint[tagging.SessionData](req, "missing")
	assert.NoError(t, err)
	assert.False(t, ok)

	_, _, err = DecodeHint[tagging.SessionData](req, "bad")
	assert.Error(t, err)
}

func TestMemoryAnalyzer(t *testing.T) {
	store := memory.NewStore(memory.Config{}, memory.DefaultRules(), zap.NewNop())
	a := NewMemoryAnalyzer(store, 0)
	ctx := context.Background()
	req := Request{UserID: "u1", SessionID: "s1", Message: "我喜欢黑色的手机", Timestamp: time.Now()}

	assert.False(t, a.Validate(Request{Message: "x"}))
	require.True(t, a.Validate(req))

	out, err := a.Analyze(ctx, req)
	require.NoError(t, err)
	p := out.(*MemoryPayload)
	require.Len(t, p.StoredFacts, 1)
	assert.Empty(t, p.ConversationState)
	assert.Equal(t, "recommendation", p.PredictedIntent)
	assert.Contains(t, p.Prompt, "[Memory Context]")
	assert.Len(t, p.Context.RecentTurns, 1)

	require.NoError(t, store.UpdateSessionSignals("u1", "s1", "product_inquiry", nil, ""))
	out, err = a.Analyze(ctx, req)
	require.NoError(t, err)
	p = out.(*MemoryPayload)
	assert.Equal(t, "product_inquiry", p.ConversationState)
	assert.Empty(t, p.StoredFacts)
	assert.Equal(t, "product_inquiry", p.Hints()[HintConversationState])

	require.NoError(t, a.Configure(map[string]any{"context_window": 1.0}))
	out, err = a.Analyze(ctx, req)
	require.NoError(t, err)
	assert.Len(t, out.(*MemoryPayload).Context.RecentTurns, 1)
	assert.Error(t, a.Configure(map[string]any{"context_window": "ten"}))
}

func TestSentimentAnalyzer(t *testing.T) {
	a := NewSentimentAnalyzer(sentiment.NewFusion(zap.NewNop()))
	req := Request{UserID: "u1", Message: "这个产品好贵，有优惠吗", ContextHints: map[string]any{
		HintRecentSentiments: []any{"negative", "negative", "negative"},
	}}
	out, err := a.Analyze(context.Background(), req)
	require.NoError(t, err)
	p := out.(*SentimentPayload)
	assert.Equal(t, sentiment.Negative, p.Label)
	assert.True(t, p.Adjusted)
	assert.Equal(t, "negative", p.Hints()["sentiment_label"])
}

func TestTagAnalyzer(t *testing.T) {
	s, err := tagging.NewScorer(tagging.DefaultRuleSet(), 0, zap.NewNop())
	require.NoError(t, err)
	a := NewTagAnalyzer(s)

	req := Request{UserID: "u1", Message: "有优惠吗", ContextHints: map[string]any{
		HintSessionData: map[string]any{"message_count": 16},
	}}
	out, err := a.Analyze(context.Background(), req)
	require.NoError(t, err)
	p := out.(*TagPayload)
	assert.Equal(t, []string{"price_sensitive", "active_user"}, p.Tags)
	assert.Equal(t, p.Tags, p.Hints()[HintUserTags])

	require.NoError(t, a.Configure(map[string]any{"threshold": 0.72}))
	out, err = a.Analyze(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{"price_sensitive"}, out.(*TagPayload).Tags)

	assert.Error(t, a.Configure(map[string]any{"threshold": 2}))
	require.NoError(t, a.Configure(map[string]any{"rules": []any{
		map[string]any{"name": "bulk_buyer", "keywords": []any{"批发"}},
	}}))
	assert.Contains(t, s.Available(), "bulk_buyer")

	_, err = a.Analyze(context.Background(), Request{Message: "x", ContextHints: map[string]any{HintSessionData: 42}})
	assert.Error(t, err)
}

type fixedSource struct {
	hits  []knowledge.Candidate
	err   error
	limit int
}

func (f *fixedSource) Search(_ context.Context, _ string, limit int) ([]knowledge.Candidate, error) {
	f.limit = limit
	return f.hits, f.err
}

func TestKnowledgeAnalyzer(t *testing.T) {
	ranker := knowledge.NewRanker(5, zap.NewNop())
	src := &fixedSource{hits: []knowledge.Candidate{
		{ID: "p1", Text: "商品价格：3999元", BaseScore: 0.8},
		{ID: "f1", Text: "常见问题：如何退货", BaseScore: 0.6},
	}}
	a := NewKnowledgeAnalyzer(ranker, src, 0)

	req := Request{UserID: "u1", Message: "价格多少", ContextHints: map[string]any{
		HintUserTags: []string{"price_sensitive"},
	}}
	out, err := a.Analyze(context.Background(), req)
	require.NoError(t, err)
	p := out.(*KnowledgePayload)
	assert.Equal(t, 10, src.limit)
	assert.Equal(t, 2, p.Retrieved)
	require.Len(t, p.Candidates, 1)
	assert.InDelta(t, 0.9, p.Candidates[0].FinalScore, 1e-9)
	// one candidate, short text
	assert.InDelta(t, 0.9*0.8/3, p.Confidence, 1e-9)

	require.NoError(t, a.Configure(map[string]any{"similarity_threshold": 0.5}))
	out, err = a.Analyze(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, out.(*KnowledgePayload).Candidates, 2)
	assert.Error(t, a.Configure(map[string]any{"similarity_threshold": -1}))
}

func TestKnowledgeAnalyzer_HintCandidates(t *testing.T) {
	src := &fixedSource{err: errors.New("should not be called")}
	a := NewKnowledgeAnalyzer(knowledge.NewRanker(5, zap.NewNop()), src, 0.7)

	req := Request{UserID: "u1", Message: "退货", ContextHints: map[string]any{
		HintKnowledgeCandidates: []any{
			map[string]any{"text": "退换货政策：七天无理由", "source_id": "kb", "base_score": 0.9},
		},
	}}
	out, err := a.Analyze(context.Background(), req)
	require.NoError(t, err)
	p := out.(*KnowledgePayload)
	require.Len(t, p.Candidates, 1)
	assert.Equal(t, knowledge.TypePolicy, p.Candidates[0].Type)
	assert.Zero(t, src.limit)
}

func TestKnowledgeAnalyzer_NoSource(t *testing.T) {
	a := NewKnowledgeAnalyzer(knowledge.NewRanker(5, zap.NewNop()), nil, 0)
	out, err := a.Analyze(context.Background(), Request{UserID: "u1", Message: "你好"})
	require.NoError(t, err)
	p := out.(*KnowledgePayload)
	assert.Empty(t, p.Candidates)
	assert.InDelta(t, 0.1, p.Confidence, 1e-9)

	failing := NewKnowledgeAnalyzer(knowledge.NewRanker(5, zap.NewNop()), &fixedSource{err: errors.New("down")}, 0)
	_, err = failing.Analyze(context.Background(), Request{UserID: "u1", Message: "你好"})
	assert.Error(t, err)
}
