package conversation

import (
	"slices"

	"go.uber.org/zap"

	"github.com/nidhogg/nuka-cs/internal/analysis"
	"github.com/nidhogg/nuka-cs/internal/metrics"
	"github.com/nidhogg/nuka-cs/internal/sentiment"
)

// Rule names recorded on a Decision.
const (
	RuleHighIntent        = "high_intent"
	RulePriceNegotiation  = "price_negotiation"
	RuleComplaint         = "complaint"
	RuleNegativeSentiment = "negative_sentiment"
	RulePositiveClose     = "positive_close"
	RuleKeep              = "keep"
)

const negativeConfidence = 0.7

// Decision is one state transition and the rule that chose it.
type Decision struct {
	From State  `json:"from"`
	To   State  `json:"to"`
	Rule string `json:"rule"`
}

// Machine decides conversation state from analyzer signals.
type Machine struct {
	logger *zap.Logger
}

// NewMachine creates a state machine.
func NewMachine(logger *zap.Logger) *Machine {
	return &Machine{logger: logger}
}

// Previous resolves the state the session was in before this message.
func (m *Machine) Previous(signals analysis.Signals, hints map[string]any) State {
	if r, ok := signals.Succeeded(analysis.AgentMemory); ok {
		if p := memoryPayload(r.Payload); p != nil {
			if st, err := ParseState(p.ConversationState); err == nil {
				return st
			}
		}
	}
	if v, ok := hints[analysis.HintConversationState]; ok {
		var name string
		switch t := v.(type) {
		case string:
			name = t
		case State:
			name = string(t)
		}
		if st, err := ParseState(name); err == nil {
			return st
		}
	}
	return Initial
}

// Next applies the override rules in order; the first match wins.
// An empty previous is resolved through Previous.
func (m *Machine) Next(previous State, signals analysis.Signals, hints map[string]any) Decision {
	if previous == "" {
		previous = m.Previous(signals, hints)
	}
	tags := Tags(signals)
	label, confidence, hasSentiment := sentimentOf(signals)

	d := Decision{From: previous, To: previous, Rule: RuleKeep}
	switch {
	case slices.Contains(tags, "high_intent"):
		d.To, d.Rule = Recommendation, RuleHighIntent
	case slices.Contains(tags, "price_sensitive") &&
		(previous == Recommendation || previous == ProductInquiry):
		d.To, d.Rule = Negotiation, RulePriceNegotiation
	case slices.Contains(tags, "complaint") || slices.Contains(tags, "disappointed"):
		d.To, d.Rule = AfterSales, RuleComplaint
	case hasSentiment && label == sentiment.Negative && confidence > negativeConfidence:
		d.To, d.Rule = AfterSales, RuleNegativeSentiment
	case hasSentiment && label == sentiment.Positive && previous == Recommendation:
		d.To, d.Rule = OrderProcessing, RulePositiveClose
	}

	metrics.StateTransitionsTotal.WithLabelValues(string(d.To), d.Rule).Inc()
	m.logger.Debug("conversation state decided",
		zap.String("from", string(d.From)),
		zap.String("to", string(d.To)),
		zap.String("rule", d.Rule),
		zap.Bool("adjacent", Adjacent(d.From, d.To)))
	return d
}

// PredictNextActions ranks likely follow-up states. Signals only reorder
// states already adjacent to state.
func (m *Machine) PredictNextActions(state State, signals analysis.Signals) []State {
	next := Successors(state)
	tags := Tags(signals)
	if slices.Contains(tags, "high_intent") {
		next = promote(next, Recommendation)
	}
	if slices.Contains(tags, "complaint") || slices.Contains(tags, "disappointed") {
		next = promote(next, AfterSales)
	}
	return next
}

func promote(states []State, s State) []State {
	i := slices.Index(states, s)
	if i <= 0 {
		return states
	}
	out := make([]State, 0, len(states))
	out = append(out, s)
	out = append(out, states[:i]...)
	return append(out, states[i+1:]...)
}

// Tags returns the tag set of a successful tag result.
func Tags(signals analysis.Signals) []string {
	r, ok := signals.Succeeded(analysis.AgentTag)
	if !ok {
		return nil
	}
	switch p := r.Payload.(type) {
	case *analysis.TagPayload:
		return p.Tags
	case analysis.TagPayload:
		return p.Tags
	}
	return nil
}

func sentimentOf(signals analysis.Signals) (sentiment.Label, float64, bool) {
	r, ok := signals.Succeeded(analysis.AgentSentiment)
	if !ok {
		return "", 0, false
	}
	switch p := r.Payload.(type) {
	case *analysis.SentimentPayload:
		return p.Label, p.Confidence, true
	case analysis.SentimentPayload:
		return p.Label, p.Confidence, true
	}
	return "", 0, false
}

func memoryPayload(v any) *analysis.MemoryPayload {
	switch p := v.(type) {
	case *analysis.MemoryPayload:
		return p
	case analysis.MemoryPayload:
		return &p
	}
	return nil
}

// SentimentLabel returns the fused label of a successful sentiment result.
func SentimentLabel(signals analysis.Signals) (sentiment.Label, bool) {
	label, _, ok := sentimentOf(signals)
	return label, ok
}
