package memory

import (
	"slices"
	"time"
)

// Stats counts what the store holds for a user.
type Stats struct {
	ShortTermCount    int        `json:"short_term_count"`
	LongTermCount     int        `json:"long_term_count"`
	SessionCount      int        `json:"session_count"`
	OldestFact        *time.Time `json:"oldest_fact,omitempty"`
	TotalInteractions int        `json:"total_interactions"`
}

// Summary is the full per-user view used by support tooling.
type Summary struct {
	UserID         string      `json:"user_id"`
	Profile        UserProfile `json:"profile"`
	Stats          Stats       `json:"stats"`
	RecentActivity []Turn      `json:"recent_activity"`
	ImportantFacts []Fact      `json:"important_facts"`
}

// Stats returns memory counters for a user.
func (s *Store) Stats(userID string) Stats {
	u := s.user(userID, false)
	if u == nil {
		return Stats{}
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return statsLocked(u)
}

func statsLocked(u *userMemory) Stats {
	st := Stats{
		ShortTermCount: u.turns.len(),
		LongTermCount:  len(u.facts),
		SessionCount:   len(u.sessions),
	}
	if len(u.facts) > 0 {
		ts := u.facts[0].Timestamp
		st.OldestFact = &ts
	}
	for _, sc := range u.sessions {
		st.TotalInteractions += sc.TurnCount
	}
	return st
}

// Summary returns profile, stats, the last 5 turns and the last 10 facts.
func (s *Store) Summary(userID string) Summary {
	sum := Summary{UserID: userID}
	u := s.user(userID, false)
	if u == nil {
		sum.Profile = buildProfile(nil, nil)
		return sum
	}
	u.mu.Lock()
	defer u.mu.Unlock()

	sum.Profile = buildProfile(u.facts, u.turns.all())
	sum.Stats = statsLocked(u)
	sum.RecentActivity = u.turns.last(5)
	facts := u.facts
	if len(facts) > 10 {
		facts = facts[len(facts)-10:]
	}
	sum.ImportantFacts = append([]Fact(nil), facts...)
	return sum
}

// TagSets returns, per tracked user, the sorted union of tags written back
// to their sessions. Users without tags are skipped.
func (s *Store) TagSets() [][]string {
	var out [][]string
	for _, id := range s.userIDs() {
		u := s.user(id, false)
		if u == nil {
			continue
		}
		u.mu.Lock()
		var tags []string
		for _, sc := range u.sessions {
			for _, t := range sc.Tags {
				if !slices.Contains(tags, t) {
					tags = append(tags, t)
				}
			}
		}
		u.mu.Unlock()
		if len(tags) > 0 {
			slices.Sort(tags)
			out = append(out, tags)
		}
	}
	return out
}
