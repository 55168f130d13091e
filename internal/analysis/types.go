package analysis

import (
	"context"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/nidhogg/nuka-cs/internal/memory"
)

// Built-in analyzer names.
const (
	AgentSentiment = "sentiment"
	AgentMemory    = "memory"
	AgentTag       = "tag"
	AgentKnowledge = "knowledge"
)

// Request is one inbound user message. Analyzers receive their own copy
// and must not mutate ContextHints.
type Request struct {
	ID           string         `json:"id,omitempty"`
	UserID       string         `json:"user_id" validate:"required"`
	SessionID    string         `json:"session_id,omitempty"`
	Message      string         `json:"message" validate:"required"`
	Timestamp    time.Time      `json:"timestamp"`
	ContextHints map[string]any `json:"context_hints,omitempty"`
}

// Normalize fills the request ID, session and timestamp when empty.
func (r Request) Normalize(now time.Time) Request {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.SessionID == "" {
		r.SessionID = memory.DefaultSessionID
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = now
	}
	return r
}

// Clone copies the request with its own top-level hints map.
func (r Request) Clone() Request {
	r.ContextHints = maps.Clone(r.ContextHints)
	return r
}

// WithHint returns a copy of r carrying one more hint.
func (r Request) WithHint(key string, v any) Request {
	r = r.Clone()
	if r.ContextHints == nil {
		r.ContextHints = make(map[string]any)
	}
	r.ContextHints[key] = v
	return r
}

// Hint looks up a context hint.
func (r Request) Hint(key string) (any, bool) {
	v, ok := r.ContextHints[key]
	return v, ok
}

// Result is one analyzer's outcome for one request.
type Result struct {
	Agent   string        `json:"agent"`
	Success bool          `json:"success"`
	Payload any           `json:"payload,omitempty"`
	Error   string        `json:"error,omitempty"`
	Latency time.Duration `json:"latency"`
}

// Signals holds exactly one result per active analyzer.
type Signals map[string]*Result

// Succeeded returns the named result when it exists and succeeded.
func (s Signals) Succeeded(name string) (*Result, bool) {
	r, ok := s[name]
	if !ok || r == nil || !r.Success {
		return nil, false
	}
	return r, true
}

// Analyzer is a pluggable unit run by the orchestrator.
type Analyzer interface {
	Name() string
	Validate(req Request) bool
	Analyze(ctx context.Context, req Request) (any, error)
}

// Configurable analyzers accept runtime configuration updates.
type Configurable interface {
	Configure(cfg map[string]any) error
}

// HintProvider payloads expose values for the next stage of a sequential run.
type HintProvider interface {
	Hints() map[string]any
}
