package tagging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestScorer(t *testing.T) *Scorer {
	t.Helper()
	s, err := NewScorer(DefaultRuleSet(), 0, zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestAnalyze_PriceQuestion(t *testing.T) {
	s := newTestScorer(t)
	a := s.Analyze("这个产品好贵，有优惠吗", SessionData{}, nil)

	assert.Equal(t, []string{"price_sensitive"}, a.Tags)
	assert.Equal(t, []string{"price_sensitive"}, a.ContentTags)
	assert.Empty(t, a.BehaviorTags)
	// one keyword and one pattern
	assert.InDelta(t, 0.75, a.Scores["price_sensitive"], 1e-9)
	require.Len(t, a.Candidates, 1)
	assert.Equal(t, SourceContent, a.Candidates[0].SourceRule)
}

func TestAnalyze_ConflictDropsSecond(t *testing.T) {
	s := newTestScorer(t)

	a := s.Analyze("想买，但是先看看", SessionData{}, nil)
	assert.Contains(t, a.ContentTags, "low_intent")
	assert.Contains(t, a.Scores, "high_intent")
	assert.NotContains(t, a.Scores, "low_intent")

	a = s.Analyze("质量好又便宜", SessionData{}, nil)
	assert.Contains(t, a.Scores, "price_sensitive")
	assert.NotContains(t, a.Scores, "price_insensitive")
}

func TestAnalyze_CaseFolded(t *testing.T) {
	s := newTestScorer(t)
	require.NoError(t, s.AddRule(Rule{Name: "vip", Keywords: []string{"VIP"}, Patterns: []string{`vip.*会员`}}))
	a := s.Analyze("我是VIP会员", SessionData{}, nil)
	assert.InDelta(t, 0.75, a.Scores["vip"], 1e-9)
}

func TestAnalyze_BehaviorTags(t *testing.T) {
	s := newTestScorer(t)
	history := make([]HistorySession, 6)
	for i := 0; i < 3; i++ {
		history[i].HasPurchase = true
	}

	a := s.Analyze("嗯", SessionData{MessageCount: 16, DurationMinutes: 35, AvgResponseTime: 4}, history)

	assert.Equal(t, []string{
		"active_user", "long_session", "quick_responder",
		"frequent_visitor", "previous_buyer", "loyal_customer",
	}, a.BehaviorTags)
	assert.InDelta(t, 0.7, a.Scores["active_user"], 1e-9)
	assert.InDelta(t, 0.7, a.Scores["quick_responder"], 1e-9)
	assert.InDelta(t, 0.5, a.Scores["loyal_customer"], 1e-9)
	assert.Equal(t, []string{"active_user", "quick_responder"}, a.Tags)
	for _, c := range a.Candidates {
		assert.Equal(t, SourceBehavior, c.SourceRule)
	}
}

func TestBehaviorTags_Tiers(t *testing.T) {
	tests := []struct {
		name    string
		session SessionData
		history []HistorySession
		want    []string
	}{
		{"empty", SessionData{}, nil, nil},
		{"engaged medium", SessionData{MessageCount: 6, DurationMinutes: 12}, nil, []string{"engaged_user", "medium_session"}},
		{"slow responder", SessionData{AvgResponseTime: 30}, nil, nil},
		{"single purchase", SessionData{}, []HistorySession{{HasPurchase: true}}, []string{"previous_buyer"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, behaviorTags(tt.session, tt.history))
		})
	}
}

func TestAnalyze_ContentAndBehaviorSource(t *testing.T) {
	s := newTestScorer(t)
	require.NoError(t, s.AddRule(Rule{Name: "active_user", Keywords: []string{"急"}}))
	a := s.Analyze("急", SessionData{MessageCount: 16}, nil)
	require.NotEmpty(t, a.Candidates)
	assert.Equal(t, "active_user", a.Candidates[0].Name)
	assert.Equal(t, SourceContentBehavior, a.Candidates[0].SourceRule)
	assert.InDelta(t, 0.8, a.Candidates[0].Score, 1e-9)
}

func TestFilter(t *testing.T) {
	scores := map[string]float64{"b": 0.7, "a": 0.7, "c": 0.9, "d": 0.59, "e": 0.6}
	assert.Equal(t, []string{"c", "a", "b", "e"}, Filter(scores, 0.6))
	assert.Empty(t, Filter(scores, 0.95))
}

func TestRuleLifecycle(t *testing.T) {
	s := newTestScorer(t)
	n := len(s.Available())

	require.NoError(t, s.AddRule(Rule{Name: "night_owl", Keywords: []string{"半夜"}}))
	assert.Len(t, s.Available(), n+1)
	assert.Equal(t, "night_owl", s.Available()[n])

	require.NoError(t, s.AddRule(Rule{Name: "night_owl", Keywords: []string{"凌晨"}}))
	assert.Len(t, s.Available(), n+1)
	assert.Contains(t, s.Analyze("凌晨还在", SessionData{}, nil).Scores, "night_owl")

	assert.True(t, s.RemoveRule("night_owl"))
	assert.False(t, s.RemoveRule("night_owl"))
	assert.Len(t, s.Available(), n)

	assert.Error(t, s.AddRule(Rule{Name: "broken", Patterns: []string{"("}}))
	assert.Error(t, s.AddRule(Rule{}))
}

func TestRuleUpdatesDuringAnalyze(t *testing.T) {
	s := newTestScorer(t)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("custom_%d", i)
			_ = s.AddRule(Rule{Name: name, Keywords: []string{"优惠"}})
			s.RemoveRule(name)
		}(i)
		go func() {
			defer wg.Done()
			a := s.Analyze("有优惠吗", SessionData{}, nil)
			assert.Contains(t, a.Tags, "price_sensitive")
		}()
	}
	wg.Wait()
	assert.Len(t, s.Available(), len(DefaultRuleSet().Rules))
}

func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tags.json")
	data := `{"rules":[{"name":"bulk_buyer","keywords":["批发","大量"],"patterns":["\\d+台"]}]}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	rs, err := LoadRules(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConflicts(), rs.Conflicts)

	s, err := NewScorer(rs, 0.6, zap.NewNop())
	require.NoError(t, err)
	a := s.Analyze("我想批发50台", SessionData{}, nil)
	assert.Equal(t, []string{"bulk_buyer"}, a.Tags)
	assert.InDelta(t, 0.75, a.Scores["bulk_buyer"], 1e-9)

	_, err = LoadRules(filepath.Join(t.TempDir(), "none.json"))
	assert.Error(t, err)
}

func TestDistribution(t *testing.T) {
	r := Distribution([][]string{
		{"polite", "price_sensitive"},
		{"polite"},
		{"high_intent", "polite"},
		{},
	})
	assert.Equal(t, 4, r.TotalUsers)
	assert.Equal(t, 3, r.Counts["polite"])
	assert.InDelta(t, 0.75, r.Rates["polite"], 1e-9)
	require.Len(t, r.MostCommon, 3)
	assert.Equal(t, TagCount{Tag: "polite", Count: 3}, r.MostCommon[0])
	assert.Equal(t, "high_intent", r.MostCommon[1].Tag)

	many := make([][]string, 1)
	for i := 0; i < 15; i++ {
		many[0] = append(many[0], fmt.Sprintf("t%02d", i))
	}
	assert.Len(t, Distribution(many).MostCommon, mostCommonLimit)
}
