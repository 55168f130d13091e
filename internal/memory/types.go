package memory

import "time"

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// DefaultSessionID is used when a turn carries no session.
const DefaultSessionID = "default"

// Turn is one utterance in a conversation. Never mutated after creation.
type Turn struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
}

// Fact is a long-term memory record, content-addressed by ContentHash.
type Fact struct {
	ID          string    `json:"id"`
	Category    string    `json:"category"`
	Text        string    `json:"text"`
	Keyword     string    `json:"keyword"`
	Confidence  float64   `json:"confidence"`
	Timestamp   time.Time `json:"timestamp"`
	ContentHash string    `json:"content_hash"`
}

// FlowEntry records one step of a session's conversation flow.
type FlowEntry struct {
	Speaker   Speaker   `json:"speaker"`
	Timestamp time.Time `json:"timestamp"`
	Topic     string    `json:"topic"`
}

// SessionContext tracks a single user session.
type SessionContext struct {
	SessionID  string            `json:"session_id"`
	StartTime  time.Time         `json:"start_time"`
	LastUpdate time.Time         `json:"last_update"`
	TurnCount  int               `json:"turn_count"`
	Topics     []string          `json:"topics"`
	Entities   map[string]string `json:"entities"`
	FlowLog    []FlowEntry       `json:"flow_log"`

	// Written back after each conversation decision.
	State      string   `json:"state,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Sentiments []string `json:"sentiments,omitempty"`
}

// DurationMinutes returns the elapsed session time in minutes.
func (s *SessionContext) DurationMinutes() float64 {
	if s.LastUpdate.Before(s.StartTime) {
		return 0
	}
	return s.LastUpdate.Sub(s.StartTime).Minutes()
}

func (s *SessionContext) clone() *SessionContext {
	c := *s
	c.Topics = append([]string(nil), s.Topics...)
	c.FlowLog = append([]FlowEntry(nil), s.FlowLog...)
	c.Tags = append([]string(nil), s.Tags...)
	c.Sentiments = append([]string(nil), s.Sentiments...)
	c.Entities = make(map[string]string, len(s.Entities))
	for k, v := range s.Entities {
		c.Entities[k] = v
	}
	return &c
}

// Config controls memory capacity and decay.
type Config struct {
	ShortMemoryMax int     `json:"short_memory_max"`
	LongMemoryMax  int     `json:"long_memory_max"`
	ContextWindow  int     `json:"context_window"`
	DecayHours     float64 `json:"decay_hours"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ShortMemoryMax: 20,
		LongMemoryMax:  100,
		ContextWindow:  10,
		DecayHours:     24,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ShortMemoryMax <= 0 {
		c.ShortMemoryMax = d.ShortMemoryMax
	}
	if c.LongMemoryMax <= 0 {
		c.LongMemoryMax = d.LongMemoryMax
	}
	if c.ContextWindow <= 0 {
		c.ContextWindow = d.ContextWindow
	}
	if c.DecayHours <= 0 {
		c.DecayHours = d.DecayHours
	}
	return c
}

const (
	maxRelevantHistory = 5
	maxSentimentLog    = 10
)
