package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/nuka-cs/internal/analysis"
	"github.com/nidhogg/nuka-cs/internal/conversation"
	"github.com/nidhogg/nuka-cs/internal/memory"
	"github.com/nidhogg/nuka-cs/internal/tagging"
)

const recentQueryHints = 3

// Assistant runs one customer message through the pipeline and the
// conversation state machine, then writes the decision back to memory.
type Assistant struct {
	orch      *Orchestrator
	memory    *memory.Store
	machine   *conversation.Machine
	publisher Publisher
	logger    *zap.Logger
}

// NewAssistant wires the turn loop. publisher may be nil.
func NewAssistant(orch *Orchestrator, store *memory.Store, machine *conversation.Machine, publisher Publisher, logger *zap.Logger) *Assistant {
	return &Assistant{
		orch:      orch,
		memory:    store,
		machine:   machine,
		publisher: publisher,
		logger:    logger,
	}
}

// Orchestrator returns the underlying orchestrator.
func (a *Assistant) Orchestrator() *Orchestrator { return a.orch }

// Memory returns the memory store.
func (a *Assistant) Memory() *memory.Store { return a.memory }

// Handle processes a message: hint enrichment, pipeline, state decision,
// write-back, publish.
func (a *Assistant) Handle(ctx context.Context, req analysis.Request) (*Outcome, error) {
	start := time.Now()
	if err := analysis.Validate(req); err != nil {
		return nil, err
	}
	req = a.enrich(req.Normalize(start))

	signals, err := a.orch.RunPipeline(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("run pipeline: %w", err)
	}

	decision := a.machine.Next("", signals, req.ContextHints)
	next := a.machine.PredictNextActions(decision.To, signals)

	label, _ := conversation.SentimentLabel(signals)
	if err := a.memory.UpdateSessionSignals(req.UserID, req.SessionID,
		string(decision.To), conversation.Tags(signals), string(label)); err != nil {
		return nil, fmt.Errorf("update session signals: %w", err)
	}

	out := &Outcome{
		RequestID:     req.ID,
		UserID:        req.UserID,
		SessionID:     req.SessionID,
		Signals:       signals,
		PreviousState: decision.From,
		State:         decision.To,
		Rule:          decision.Rule,
		NextActions:   next,
		Duration:      time.Since(start),
	}

	if a.publisher != nil {
		if err := a.publisher.Publish(ctx, out); err != nil {
			a.logger.Warn("publish outcome failed", zap.String("request", req.ID), zap.Error(err))
		}
	}

	a.logger.Info("message handled",
		zap.String("request", req.ID),
		zap.String("user", req.UserID),
		zap.String("from", string(decision.From)),
		zap.String("to", string(decision.To)),
		zap.String("rule", decision.Rule),
		zap.Duration("latency", out.Duration))
	return out, nil
}

// enrich adds hints derived from the session as it stood before this
// message. Hints supplied by the caller win.
func (a *Assistant) enrich(req analysis.Request) analysis.Request {
	derived := map[string]any{}
	if sc, ok := a.memory.Session(req.UserID, req.SessionID); ok {
		derived[analysis.HintSessionData] = tagging.SessionData{
			MessageCount:    sc.TurnCount,
			DurationMinutes: sc.DurationMinutes(),
			AvgResponseTime: avgResponseSeconds(sc.FlowLog),
		}
		if sc.State != "" {
			derived[analysis.HintConversationState] = sc.State
		}
		if len(sc.Sentiments) > 0 {
			derived[analysis.HintRecentSentiments] = sc.Sentiments
		}
		if len(sc.Tags) > 0 {
			derived[analysis.HintUserTags] = sc.Tags
		}
		if len(sc.Topics) > 0 {
			derived[analysis.HintSessionTopics] = sc.Topics
		}
	}
	if q := a.memory.RecentQueries(req.UserID, recentQueryHints); len(q) > 0 {
		derived[analysis.HintRecentQueries] = q
	}

	for k, v := range derived {
		if _, ok := req.Hint(k); !ok {
			req = req.WithHint(k, v)
		}
	}
	return req
}

// avgResponseSeconds averages the gap between an assistant turn and the
// user turn that follows it. Zero means no data.
func avgResponseSeconds(flow []memory.FlowEntry) float64 {
	var total time.Duration
	n := 0
	for i := 1; i < len(flow); i++ {
		if flow[i-1].Speaker == memory.SpeakerAssistant && flow[i].Speaker == memory.SpeakerUser {
			total += flow[i].Timestamp.Sub(flow[i-1].Timestamp)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return total.Seconds() / float64(n)
}

// RecordReply stores an assistant reply so the next turn sees it.
func (a *Assistant) RecordReply(userID, sessionID, text string) error {
	return a.memory.RecordTurn(userID, memory.Turn{
		Speaker:   memory.SpeakerAssistant,
		Text:      text,
		SessionID: sessionID,
	})
}
