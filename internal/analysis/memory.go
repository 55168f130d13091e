package analysis

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/nidhogg/nuka-cs/internal/memory"
)

// MemoryPayload is the memory analyzer's output.
type MemoryPayload struct {
	Context           memory.Context `json:"context"`
	Prompt            string         `json:"prompt"`
	StoredFacts       []memory.Fact  `json:"stored_facts"`
	ConversationState string         `json:"conversation_state,omitempty"`
	PredictedIntent   string         `json:"predicted_intent"`
}

// Hints implements HintProvider.
func (p *MemoryPayload) Hints() map[string]any {
	h := map[string]any{
		"memory_prompt":    p.Prompt,
		"predicted_intent": p.PredictedIntent,
		HintSessionTopics:  p.Context.SessionSummary.Topics,
	}
	if p.ConversationState != "" {
		h[HintConversationState] = p.ConversationState
	}
	return h
}

// MemoryAnalyzer records the turn, learns facts and returns a context snapshot.
type MemoryAnalyzer struct {
	store  *memory.Store
	window atomic.Int64
}

// NewMemoryAnalyzer wraps a store. window <= 0 uses the store's context window.
func NewMemoryAnalyzer(store *memory.Store, window int) *MemoryAnalyzer {
	a := &MemoryAnalyzer{store: store}
	a.window.Store(int64(window))
	return a
}

// Name implements Analyzer.
func (a *MemoryAnalyzer) Name() string { return AgentMemory }

// Validate implements Analyzer.
func (a *MemoryAnalyzer) Validate(req Request) bool {
	return req.UserID != "" && req.Message != ""
}

// Analyze implements Analyzer.
func (a *MemoryAnalyzer) Analyze(_ context.Context, req Request) (any, error) {
	// State written back after the previous turn, read before this turn touches the session.
	var prevState string
	if sc, ok := a.store.Session(req.UserID, req.SessionID); ok {
		prevState = sc.State
	}

	turn := memory.Turn{
		Speaker:   memory.SpeakerUser,
		Text:      req.Message,
		Timestamp: req.Timestamp,
		SessionID: req.SessionID,
	}
	if err := a.store.RecordTurn(req.UserID, turn); err != nil {
		return nil, fmt.Errorf("record turn: %w", err)
	}
	facts, err := a.store.ExtractAndStore(req.UserID, req.Message, memory.SpeakerUser)
	if err != nil {
		return nil, fmt.Errorf("extract facts: %w", err)
	}

	c := a.store.BuildContext(req.UserID, req.SessionID, int(a.window.Load()))
	return &MemoryPayload{
		Context:           c,
		Prompt:            memory.FormatContextPrompt(c),
		StoredFacts:       facts,
		ConversationState: prevState,
		PredictedIntent:   a.store.PredictIntent(req.UserID, req.SessionID),
	}, nil
}

// Configure implements Configurable. Supported key: context_window.
func (a *MemoryAnalyzer) Configure(cfg map[string]any) error {
	if v, ok := cfg["context_window"]; ok {
		n, ok := asInt(v)
		if !ok || n < 0 {
			return fmt.Errorf("configure memory: context_window must be a non-negative integer, got %v", v)
		}
		a.window.Store(int64(n))
	}
	return nil
}
