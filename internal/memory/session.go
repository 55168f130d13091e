package memory

import (
	"slices"
	"strings"

	"go.uber.org/zap"
)

// updateSession applies a turn to its session context. Caller holds u.mu.
func (s *Store) updateSession(u *userMemory, turn Turn) {
	sc, ok := u.sessions[turn.SessionID]
	if !ok {
		sc = &SessionContext{
			SessionID: turn.SessionID,
			StartTime: turn.Timestamp,
			Entities:  make(map[string]string),
		}
		u.sessions[turn.SessionID] = sc
	}

	sc.TurnCount++
	if turn.Timestamp.After(sc.LastUpdate) {
		sc.LastUpdate = turn.Timestamp
	}

	topics := s.extractTopics(turn.Text)
	for _, t := range topics {
		if !slices.Contains(sc.Topics, t) {
			sc.Topics = append(sc.Topics, t)
		}
	}
	for k, v := range extractEntities(turn.Text) {
		sc.Entities[k] = v
	}
	sc.FlowLog = append(sc.FlowLog, FlowEntry{
		Speaker:   turn.Speaker,
		Timestamp: turn.Timestamp,
		Topic:     topics[0],
	})
}

// extractTopics returns the matching topics in rule order, or "general".
func (s *Store) extractTopics(text string) []string {
	lower := strings.ToLower(text)
	var topics []string
	for _, rule := range s.rules.Topics {
		for _, kw := range rule.Keywords {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				topics = append(topics, rule.Name)
				break
			}
		}
	}
	if len(topics) == 0 {
		return []string{generalTopic}
	}
	return topics
}

func extractEntities(text string) map[string]string {
	entities := make(map[string]string)
	if m := phoneRe.FindString(text); m != "" {
		entities["phone"] = m
	}
	if m := emailRe.FindString(text); m != "" {
		entities["email"] = m
	}
	if m := amountRe.FindString(text); m != "" {
		entities["amount"] = m
	}
	return entities
}

// Session returns a snapshot of a session context.
func (s *Store) Session(userID, sessionID string) (*SessionContext, bool) {
	if sessionID == "" {
		sessionID = DefaultSessionID
	}
	u := s.user(userID, false)
	if u == nil {
		return nil, false
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	sc, ok := u.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return sc.clone(), true
}

// UpdateSessionSignals stores the latest conversation decision for a
// session: its state, the filtered tag set, and the fused sentiment label.
// Empty values leave the previous value in place.
func (s *Store) UpdateSessionSignals(userID, sessionID, state string, tags []string, sentimentLabel string) error {
	if userID == "" {
		return ErrEmptyUser
	}
	if sessionID == "" {
		sessionID = DefaultSessionID
	}
	u := s.user(userID, true)
	u.mu.Lock()
	defer u.mu.Unlock()

	sc, ok := u.sessions[sessionID]
	if !ok {
		now := s.now()
		sc = &SessionContext{
			SessionID:  sessionID,
			StartTime:  now,
			LastUpdate: now,
			Entities:   make(map[string]string),
		}
		u.sessions[sessionID] = sc
	}
	if state != "" {
		if sc.State != state {
			s.logger.Debug("session state changed",
				zap.String("user", userID),
				zap.String("session", sessionID),
				zap.String("from", sc.State),
				zap.String("to", state))
		}
		sc.State = state
	}
	if tags != nil {
		sc.Tags = append([]string(nil), tags...)
	}
	if sentimentLabel != "" {
		sc.Sentiments = append(sc.Sentiments, sentimentLabel)
		if over := len(sc.Sentiments) - maxSentimentLog; over > 0 {
			sc.Sentiments = append([]string(nil), sc.Sentiments[over:]...)
		}
	}
	return nil
}

// PredictIntent guesses the next conversation phase from session topics.
func (s *Store) PredictIntent(userID, sessionID string) string {
	sc, ok := s.Session(userID, sessionID)
	if !ok {
		return "info_gathering"
	}
	switch {
	case slices.Contains(sc.Topics, "price") && len(sc.FlowLog) > 3:
		return "negotiation"
	case slices.Contains(sc.Topics, "product"):
		return "recommendation"
	case slices.Contains(sc.Topics, "complaint"):
		return "after_sales"
	case slices.Contains(sc.Topics, "payment"):
		return "order_processing"
	default:
		return "info_gathering"
	}
}
