package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecay_RemovesOnlyFactAndLedger(t *testing.T) {
	s := newTestStore(t, Config{})
	old := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return old }

	_, err := s.ExtractAndStore("u1", "我喜欢蓝色", SpeakerUser)
	require.NoError(t, err)
	require.NoError(t, s.RecordTurn("u1", Turn{Text: "我喜欢蓝色的", SessionID: "s1"}))
	require.Len(t, s.BuildContext("u1", "s1", 0).RelevantHistory, 1)

	report := s.Decay(old.Add(25*time.Hour), 24)

	assert.Equal(t, DecayReport{UsersSwept: 1, FactsRemoved: 1, LedgersDropped: 1}, report)
	assert.False(t, s.HasLedger("u1"))
	assert.Empty(t, s.Facts("u1"))
	assert.Empty(t, s.BuildContext("u1", "s1", 0).RelevantHistory)
	// Short-term memory is untouched.
	assert.Len(t, s.Turns("u1", 0), 1)
}

func TestDecay_KeepsFreshFacts(t *testing.T) {
	s := newTestStore(t, Config{})
	base := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

	s.now = func() time.Time { return base }
	_, err := s.ExtractAndStore("u1", "我喜欢蓝色", SpeakerUser)
	require.NoError(t, err)

	s.now = func() time.Time { return base.Add(20 * time.Hour) }
	_, err = s.ExtractAndStore("u1", "我喜欢白色", SpeakerUser)
	require.NoError(t, err)

	report := s.Decay(base.Add(30*time.Hour), 24)
	assert.Equal(t, 1, report.FactsRemoved)
	assert.Equal(t, 0, report.LedgersDropped)

	facts := s.Facts("u1")
	require.Len(t, facts, 1)
	assert.Equal(t, "我喜欢白色", facts[0].Text)
	assert.True(t, s.HasLedger("u1"))

	// The decayed fact may be learned again.
	stored, err := s.ExtractAndStore("u1", "我喜欢蓝色", SpeakerUser)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestDecay_DefaultWindow(t *testing.T) {
	s := newTestStore(t, Config{DecayHours: 1})
	base := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	_, err := s.ExtractAndStore("u1", "我喜欢蓝色", SpeakerUser)
	require.NoError(t, err)

	assert.Equal(t, 0, s.Decay(base.Add(30*time.Minute), 0).FactsRemoved)
	assert.Equal(t, 1, s.Decay(base.Add(2*time.Hour), 0).FactsRemoved)
}

func TestDecay_SkipsUsersWithoutLedger(t *testing.T) {
	s := newTestStore(t, Config{})
	require.NoError(t, s.RecordTurn("u1", Turn{Text: "你好"}))
	assert.Equal(t, DecayReport{}, s.Decay(time.Now(), 24))
}
