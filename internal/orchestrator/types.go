package orchestrator

import (
	"errors"
	"time"

	"github.com/nidhogg/nuka-cs/internal/analysis"
	"github.com/nidhogg/nuka-cs/internal/conversation"
)

// Registry errors.
var (
	ErrAnalyzerNotFound = errors.New("analyzer not found")
	ErrAnalyzerExists   = errors.New("analyzer already registered")
	ErrAnalyzerInactive = errors.New("analyzer is not active")
)

// DefaultTimeout bounds a single analyzer call.
const DefaultTimeout = 3000 * time.Millisecond

// Run modes, used as metric labels.
const (
	ModeParallel   = "parallel"
	ModeSequential = "sequential"
	ModeSingle     = "single"
)

// AnalyzerStatus is a registry snapshot of one analyzer.
type AnalyzerStatus struct {
	Name         string         `json:"name"`
	Active       bool           `json:"active"`
	Priority     int            `json:"priority"`
	Config       map[string]any `json:"config,omitempty"`
	RegisteredAt time.Time      `json:"registered_at"`
	Calls        int64          `json:"calls"`
	Failures     int64          `json:"failures"`
	LastLatency  time.Duration  `json:"last_latency"`
	LastError    string         `json:"last_error,omitempty"`
}

// StageResult is one step of a sequential run.
type StageResult struct {
	Name   string           `json:"name"`
	Result *analysis.Result `json:"result"`
}

// SequentialResult is the outcome of RunSequential.
type SequentialResult struct {
	Success     bool           `json:"success"`
	Stages      []StageResult  `json:"stages"`
	FailedStage string         `json:"failed_stage,omitempty"`
	Error       string         `json:"error,omitempty"`
	Hints       map[string]any `json:"hints"`
	Duration    time.Duration  `json:"duration"`
	Err         error          `json:"-"`
}

// Outcome is the result of handling one user message end to end.
type Outcome struct {
	RequestID     string               `json:"request_id"`
	UserID        string               `json:"user_id"`
	SessionID     string               `json:"session_id"`
	Signals       analysis.Signals     `json:"signals"`
	PreviousState conversation.State   `json:"previous_state"`
	State         conversation.State   `json:"state"`
	Rule          string               `json:"rule"`
	NextActions   []conversation.State `json:"next_actions"`
	Duration      time.Duration        `json:"duration"`
}
