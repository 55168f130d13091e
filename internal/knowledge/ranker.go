package knowledge

import (
	"crypto/sha256"
	"math"
	"slices"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
)

// Defaults for ranking.
const (
	DefaultTopK                = 5
	DefaultSimilarityThreshold = 0.7

	maxContextBonus = 0.3
	recentQueryLook = 3
)

// Ranker filters and re-ranks externally retrieved candidates.
type Ranker struct {
	topK   int
	logger *zap.Logger
}

// NewRanker creates a Ranker. topK <= 0 uses DefaultTopK.
func NewRanker(topK int, logger *zap.Logger) *Ranker {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Ranker{topK: topK, logger: logger}
}

// TopK returns the output size limit.
func (r *Ranker) TopK() int { return r.topK }

// FilterAndRank drops candidates below threshold, applies context
// bonuses, sorts by final score, removes duplicate texts and keeps topK.
// The input slice is not modified.
func (r *Ranker) FilterAndRank(candidates []Candidate, rc RankContext, threshold float64) []Candidate {
	kept := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.BaseScore < threshold {
			continue
		}
		if c.Type == "" {
			c.Type = Classify(c.Text)
		}
		c.ContextBonus = contextBonus(c, rc)
		c.FinalScore = math.Min(c.BaseScore+c.ContextBonus, 1.0)
		kept = append(kept, c)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].FinalScore > kept[j].FinalScore
	})

	seen := make(map[[sha256.Size]byte]struct{}, len(kept))
	out := kept[:0]
	for _, c := range kept {
		h := sha256.Sum256([]byte(c.Text))
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, c)
		if len(out) == r.topK {
			break
		}
	}

	r.logger.Debug("knowledge ranked",
		zap.Int("in", len(candidates)), zap.Int("out", len(out)), zap.Float64("threshold", threshold))
	return out
}

func contextBonus(c Candidate, rc RankContext) float64 {
	text := strings.ToLower(c.Text)
	bonus := 0.0

	if slices.Contains(rc.Tags, "price_sensitive") &&
		(strings.Contains(text, "价格") || strings.Contains(text, "价钱")) {
		bonus += 0.1
	}
	if slices.Contains(rc.Tags, "electronics_lover") && c.Type == TypeProduct {
		bonus += 0.1
	}
	for _, topic := range rc.SessionTopics {
		if topic != "" && strings.Contains(text, strings.ToLower(topic)) {
			bonus += 0.05
		}
	}

	queries := rc.RecentQueries
	if len(queries) > recentQueryLook {
		queries = queries[len(queries)-recentQueryLook:]
	}
	for _, q := range queries {
		if sharesWord(text, q) {
			bonus += 0.03
		}
	}
	return math.Min(bonus, maxContextBonus)
}

func sharesWord(text, query string) bool {
	words := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// Confidence is advisory metadata for an answer built from candidates.
// answerLength is measured in runes.
func (r *Ranker) Confidence(candidates []Candidate, answerLength int) float64 {
	if len(candidates) == 0 {
		return 0.1
	}
	var sum float64
	for _, c := range candidates {
		sum += c.FinalScore
	}
	avg := sum / float64(len(candidates))

	lengthFactor := 1.0
	switch {
	case answerLength < 50:
		lengthFactor = 0.8
	case answerLength > 500:
		lengthFactor = 0.9
	}
	countFactor := math.Min(float64(len(candidates))/3, 1.0)
	return math.Max(0, math.Min(1, avg*lengthFactor*countFactor))
}

// RuneLen is the answer length measure used by Confidence.
func RuneLen(s string) int { return utf8.RuneCountInString(s) }
