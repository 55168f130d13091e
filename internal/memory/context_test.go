package memory

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedConversation(t *testing.T, s *Store) {
	t.Helper()
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	turns := []Turn{
		{Speaker: SpeakerUser, Text: "请问这个手机多少钱？", SessionID: "s1", Timestamp: t0},
		{Speaker: SpeakerAssistant, Text: "3999元", SessionID: "s1", Timestamp: t0.Add(time.Minute)},
		{Speaker: SpeakerUser, Text: "我喜欢黑色的手机", SessionID: "s1", Timestamp: t0.Add(5 * time.Minute)},
	}
	for _, turn := range turns {
		require.NoError(t, s.RecordTurn("u1", turn))
		_, err := s.ExtractAndStore("u1", turn.Text, turn.Speaker)
		require.NoError(t, err)
	}
}

func TestBuildContext(t *testing.T) {
	s := newTestStore(t, Config{})
	seedConversation(t, s)

	c := s.BuildContext("u1", "s1", 2)

	require.Len(t, c.RecentTurns, 2)
	assert.Equal(t, "3999元", c.RecentTurns[0].Text)
	assert.Equal(t, "我喜欢黑色的手机", c.RecentTurns[1].Text)

	assert.Equal(t, "我喜欢黑色的手机", c.UserProfile.Preferences["喜欢"])
	assert.Equal(t, 1, c.UserProfile.Categories["preferences"])

	b := c.UserProfile.Behavior
	assert.InDelta(t, 0.5, b.QuestionRatio, 1e-9)
	assert.InDelta(t, 0.5, b.PolitenessRatio, 1e-9)
	assert.Equal(t, "high", b.PolitenessLevel)
	assert.InDelta(t, 9.0, b.AvgMessageLength, 1e-9)

	assert.Equal(t, 3, c.SessionSummary.TurnCount)
	assert.InDelta(t, 5.0, c.SessionSummary.DurationMinutes, 1e-9)
	assert.Equal(t, []string{"product", "price", "general"}, c.SessionSummary.Topics)
	assert.Equal(t, "3999元", c.SessionSummary.Entities["amount"])

	require.Len(t, c.RelevantHistory, 1)
	assert.Equal(t, "喜欢", c.RelevantHistory[0].Keyword)
}

func TestBuildContext_DefaultWindow(t *testing.T) {
	s := newTestStore(t, Config{ContextWindow: 2})
	seedConversation(t, s)
	assert.Len(t, s.BuildContext("u1", "s1", 0).RecentTurns, 2)
}

func TestBuildContext_UnknownUser(t *testing.T) {
	s := newTestStore(t, Config{})
	c := s.BuildContext("ghost", "s1", 5)
	assert.Empty(t, c.RecentTurns)
	assert.Empty(t, c.RelevantHistory)
	assert.Equal(t, 0, c.SessionSummary.TurnCount)
	assert.Equal(t, "low", c.UserProfile.Behavior.PolitenessLevel)
}

func TestBuildContext_RelevantHistoryCapped(t *testing.T) {
	s := newTestStore(t, Config{})
	for _, msg := range []string{"我喜欢红色", "我喜欢蓝色", "我喜欢绿色", "我喜欢白色", "我喜欢黑色", "我喜欢紫色"} {
		_, err := s.ExtractAndStore("u1", msg, SpeakerUser)
		require.NoError(t, err)
	}
	require.NoError(t, s.RecordTurn("u1", Turn{Text: "我还是喜欢亮一点的", SessionID: "s1"}))

	c := s.BuildContext("u1", "s1", 0)
	require.Len(t, c.RelevantHistory, maxRelevantHistory)
	assert.Equal(t, "我喜欢蓝色", c.RelevantHistory[0].Text)
	assert.Equal(t, "我喜欢紫色", c.RelevantHistory[4].Text)
}

func TestSummaryAndStats(t *testing.T) {
	s := newTestStore(t, Config{})
	seedConversation(t, s)

	st := s.Stats("u1")
	assert.Equal(t, 3, st.ShortTermCount)
	assert.Equal(t, 1, st.LongTermCount)
	assert.Equal(t, 1, st.SessionCount)
	assert.Equal(t, 3, st.TotalInteractions)
	require.NotNil(t, st.OldestFact)

	sum := s.Summary("u1")
	assert.Equal(t, "u1", sum.UserID)
	assert.Len(t, sum.RecentActivity, 3)
	assert.Len(t, sum.ImportantFacts, 1)

	empty := s.Summary("ghost")
	assert.Equal(t, 0, empty.Stats.LongTermCount)
}

func TestFormatContextPrompt(t *testing.T) {
	s := newTestStore(t, Config{})
	assert.Empty(t, FormatContextPrompt(s.BuildContext("ghost", "", 0)))

	seedConversation(t, s)
	out := FormatContextPrompt(s.BuildContext("u1", "s1", 0))
	assert.True(t, strings.HasPrefix(out, "[Memory Context]\n"))
	assert.Contains(t, out, "preferences")
	assert.Contains(t, out, "assistant: 3999元")
}
