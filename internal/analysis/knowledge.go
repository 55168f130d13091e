package analysis

import (
	"context"
	"fmt"
	"sync"

	"github.com/nidhogg/nuka-cs/internal/knowledge"
)

// KnowledgePayload is the knowledge analyzer's output.
type KnowledgePayload struct {
	Candidates []knowledge.Candidate `json:"candidates"`
	Confidence float64               `json:"confidence"`
	Retrieved  int                   `json:"retrieved"`
}

// Hints implements HintProvider.
func (p *KnowledgePayload) Hints() map[string]any {
	return map[string]any{"knowledge_confidence": p.Confidence}
}

// KnowledgeAnalyzer ranks candidates from a source or from the request hints.
type KnowledgeAnalyzer struct {
	ranker *knowledge.Ranker
	source knowledge.Source

	mu        sync.RWMutex
	threshold float64
}

// NewKnowledgeAnalyzer creates the analyzer. source may be nil, in which
// case candidates must arrive in the knowledge_candidates hint.
func NewKnowledgeAnalyzer(r *knowledge.Ranker, source knowledge.Source, threshold float64) *KnowledgeAnalyzer {
	if threshold <= 0 {
		threshold = knowledge.DefaultSimilarityThreshold
	}
	return &KnowledgeAnalyzer{ranker: r, source: source, threshold: threshold}
}

// Name implements Analyzer.
func (a *KnowledgeAnalyzer) Name() string { return AgentKnowledge }

// Validate implements Analyzer.
func (a *KnowledgeAnalyzer) Validate(req Request) bool { return req.Message != "" }

// Analyze implements Analyzer.
func (a *KnowledgeAnalyzer) Analyze(ctx context.Context, req Request) (any, error) {
	candidates, ok, err := DecodeHint[[]knowledge.Candidate](req, HintKnowledgeCandidates)
	if err != nil {
		return nil, err
	}
	if !ok && a.source != nil {
		// Over-fetch so filtering and dedup still leave topK.
		candidates, err = a.source.Search(ctx, req.Message, a.ranker.TopK()*2)
		if err != nil {
			return nil, fmt.Errorf("retrieve knowledge: %w", err)
		}
	}

	a.mu.RLock()
	threshold := a.threshold
	a.mu.RUnlock()

	ranked := a.ranker.FilterAndRank(candidates, knowledge.RankContext{
		Tags:          StringsHint(req, HintUserTags),
		SessionTopics: StringsHint(req, HintSessionTopics),
		RecentQueries: StringsHint(req, HintRecentQueries),
	}, threshold)

	// No answer is generated here; the top candidate stands in for its length.
	answerLen := 0
	if len(ranked) > 0 {
		answerLen = knowledge.RuneLen(ranked[0].Text)
	}
	return &KnowledgePayload{
		Candidates: ranked,
		Confidence: a.ranker.Confidence(ranked, answerLen),
		Retrieved:  len(candidates),
	}, nil
}

// Configure implements Configurable. Supported key: similarity_threshold.
func (a *KnowledgeAnalyzer) Configure(cfg map[string]any) error {
	if v, ok := cfg["similarity_threshold"]; ok {
		f, ok := asFloat(v)
		if !ok || f < 0 || f > 1 {
			return fmt.Errorf("configure knowledge: similarity_threshold must be in [0,1], got %v", v)
		}
		a.mu.Lock()
		a.threshold = f
		a.mu.Unlock()
	}
	return nil
}
