package analysis

import (
	"context"
	"fmt"

	"github.com/nidhogg/nuka-cs/internal/tagging"
)

// TagPayload is the tag analyzer's output.
type TagPayload struct {
	tagging.Analysis
}

// Hints implements HintProvider.
func (p *TagPayload) Hints() map[string]any {
	return map[string]any{HintUserTags: p.Tags}
}

// TagAnalyzer runs the tag scorer over the message and session behavior.
type TagAnalyzer struct {
	scorer *tagging.Scorer
}

// NewTagAnalyzer wraps a Scorer.
func NewTagAnalyzer(s *tagging.Scorer) *TagAnalyzer {
	return &TagAnalyzer{scorer: s}
}

// Name implements Analyzer.
func (a *TagAnalyzer) Name() string { return AgentTag }

// Validate implements Analyzer.
func (a *TagAnalyzer) Validate(req Request) bool { return req.Message != "" }

// Analyze implements Analyzer.
func (a *TagAnalyzer) Analyze(_ context.Context, req Request) (any, error) {
	session, _, err := DecodeHint[tagging.SessionData](req, HintSessionData)
	if err != nil {
		return nil, err
	}
	history, _, err := DecodeHint[[]tagging.HistorySession](req, HintUserHistory)
	if err != nil {
		return nil, err
	}
	return &TagPayload{Analysis: a.scorer.Analyze(req.Message, session, history)}, nil
}

// Configure implements Configurable. Supported keys: threshold, rules
// (a list of tagging.Rule to add or replace).
func (a *TagAnalyzer) Configure(cfg map[string]any) error {
	if v, ok := cfg["threshold"]; ok {
		f, ok := asFloat(v)
		if !ok || f < 0 || f > 1 {
			return fmt.Errorf("configure tag: threshold must be in [0,1], got %v", v)
		}
		a.scorer.SetThreshold(f)
	}
	if v, ok := cfg["rules"]; ok {
		var rules []tagging.Rule
		if err := decodeHint(v, &rules); err != nil {
			return fmt.Errorf("configure tag: rules: %w", err)
		}
		for _, r := range rules {
			if err := a.scorer.AddRule(r); err != nil {
				return fmt.Errorf("configure tag: %w", err)
			}
		}
	}
	return nil
}
