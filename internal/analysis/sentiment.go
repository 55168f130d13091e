package analysis

import (
	"context"

	"github.com/nidhogg/nuka-cs/internal/sentiment"
)

// SentimentPayload is the sentiment analyzer's output.
type SentimentPayload struct {
	sentiment.Result
}

// Hints implements HintProvider.
func (p *SentimentPayload) Hints() map[string]any {
	return map[string]any{
		"sentiment_label":      string(p.Label),
		"sentiment_confidence": p.Confidence,
	}
}

// SentimentAnalyzer runs sentiment fusion with conversational context.
type SentimentAnalyzer struct {
	fusion *sentiment.Fusion
}

// NewSentimentAnalyzer wraps a Fusion.
func NewSentimentAnalyzer(f *sentiment.Fusion) *SentimentAnalyzer {
	return &SentimentAnalyzer{fusion: f}
}

// Name implements Analyzer.
func (a *SentimentAnalyzer) Name() string { return AgentSentiment }

// Validate implements Analyzer.
func (a *SentimentAnalyzer) Validate(req Request) bool { return req.Message != "" }

// Analyze implements Analyzer.
func (a *SentimentAnalyzer) Analyze(_ context.Context, req Request) (any, error) {
	var sc sentiment.Context
	for _, l := range StringsHint(req, HintRecentSentiments) {
		sc.RecentSentiments = append(sc.RecentSentiments, sentiment.Label(l))
	}
	sc.Stage = StringHint(req, HintConversationStage)
	return &SentimentPayload{Result: a.fusion.Analyze(req.Message, sc)}, nil
}
