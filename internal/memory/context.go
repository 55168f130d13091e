package memory

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// BehaviorStats summarizes how a user writes, computed over the
// short-term buffer.
type BehaviorStats struct {
	AvgMessageLength float64 `json:"avg_message_length"`
	QuestionRatio    float64 `json:"question_ratio"`
	PolitenessRatio  float64 `json:"politeness_ratio"`
	PolitenessLevel  string  `json:"politeness_level"`
}

// UserProfile aggregates long-term facts and behavior stats.
type UserProfile struct {
	Preferences  map[string]string `json:"preferences"`
	PersonalInfo map[string]string `json:"personal_info"`
	Categories   map[string]int    `json:"categories"`
	Behavior     BehaviorStats     `json:"behavior"`
}

// SessionSummary is the condensed view of one session.
type SessionSummary struct {
	DurationMinutes float64           `json:"duration_minutes"`
	TurnCount       int               `json:"turn_count"`
	Topics          []string          `json:"topics"`
	Entities        map[string]string `json:"entities"`
}

// Context is the memory-derived context for one request.
type Context struct {
	RecentTurns     []Turn         `json:"recent_turns"`
	UserProfile     UserProfile    `json:"user_profile"`
	SessionSummary  SessionSummary `json:"session_summary"`
	RelevantHistory []Fact         `json:"relevant_history"`
}

// BuildContext assembles the memory context for a user session.
// windowSize <= 0 uses the configured context window.
func (s *Store) BuildContext(userID, sessionID string, windowSize int) Context {
	if windowSize <= 0 {
		windowSize = s.cfg.ContextWindow
	}
	if sessionID == "" {
		sessionID = DefaultSessionID
	}

	ctx := Context{
		UserProfile:    UserProfile{Preferences: map[string]string{}, PersonalInfo: map[string]string{}, Categories: map[string]int{}},
		SessionSummary: SessionSummary{Entities: map[string]string{}},
	}

	u := s.user(userID, false)
	if u == nil {
		ctx.UserProfile.Behavior.PolitenessLevel = "low"
		return ctx
	}
	u.mu.Lock()
	defer u.mu.Unlock()

	ctx.RecentTurns = u.turns.last(windowSize)
	ctx.UserProfile = buildProfile(u.facts, u.turns.all())

	if sc, ok := u.sessions[sessionID]; ok {
		ctx.SessionSummary = SessionSummary{
			DurationMinutes: sc.DurationMinutes(),
			TurnCount:       sc.TurnCount,
			Topics:          append([]string(nil), sc.Topics...),
			Entities:        sc.clone().Entities,
		}
	}

	keywords := s.turnKeywords(ctx.RecentTurns)
	if len(keywords) > 0 {
		var relevant []Fact
		for _, f := range u.facts {
			if factMatches(f, keywords) {
				relevant = append(relevant, f)
			}
		}
		if len(relevant) > maxRelevantHistory {
			relevant = relevant[len(relevant)-maxRelevantHistory:]
		}
		ctx.RelevantHistory = relevant
	}

	s.logger.Debug("built memory context",
		zap.String("user", userID),
		zap.String("session", sessionID),
		zap.Int("turns", len(ctx.RecentTurns)),
		zap.Int("relevant", len(ctx.RelevantHistory)))

	return ctx
}

func buildProfile(facts []Fact, turns []Turn) UserProfile {
	p := UserProfile{
		Preferences:  make(map[string]string),
		PersonalInfo: make(map[string]string),
		Categories:   make(map[string]int),
	}
	for _, f := range facts {
		p.Categories[f.Category]++
		switch f.Category {
		case "preferences":
			p.Preferences[f.Keyword] = f.Text
		case "personal_info":
			p.PersonalInfo[f.Keyword] = f.Text
		}
	}
	p.Behavior = behaviorStats(turns)
	return p
}

func behaviorStats(turns []Turn) BehaviorStats {
	var st BehaviorStats
	var total, questions, polite int
	var n int
	for _, t := range turns {
		if t.Speaker != SpeakerUser {
			continue
		}
		n++
		total += utf8.RuneCountInString(t.Text)
		if strings.ContainsAny(t.Text, "?？") {
			questions++
		}
		for _, w := range politeWords {
			if strings.Contains(t.Text, w) {
				polite++
				break
			}
		}
	}
	if n > 0 {
		st.AvgMessageLength = float64(total) / float64(n)
		st.QuestionRatio = float64(questions) / float64(n)
		st.PolitenessRatio = float64(polite) / float64(n)
	}
	switch {
	case st.PolitenessRatio > 0.3:
		st.PolitenessLevel = "high"
	case st.PolitenessRatio > 0.1:
		st.PolitenessLevel = "medium"
	default:
		st.PolitenessLevel = "low"
	}
	return st
}

// FormatContextPrompt renders a memory context as a prompt section.
func FormatContextPrompt(c Context) string {
	if len(c.RecentTurns) == 0 && len(c.RelevantHistory) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("[Memory Context]\n")
	if len(c.SessionSummary.Topics) > 0 {
		fmt.Fprintf(&b, "话题: %s (共%d轮)\n", strings.Join(c.SessionSummary.Topics, ", "), c.SessionSummary.TurnCount)
	}
	for _, f := range c.RelevantHistory {
		fmt.Fprintf(&b, "- %s (confidence: %.2f): %s\n", f.Category, f.Confidence, f.Text)
	}
	for _, t := range c.RecentTurns {
		fmt.Fprintf(&b, "%s: %s\n", t.Speaker, t.Text)
	}
	return b.String()
}
