package tagging

import (
	"math"
	"slices"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// DefaultThreshold is the minimum score a tag needs to be reported.
const DefaultThreshold = 0.6

// Where a tag came from.
const (
	SourceContent         = "content"
	SourceBehavior        = "behavior"
	SourceContentBehavior = "content+behavior"
)

// Candidate is a scored tag.
type Candidate struct {
	Name       string  `json:"name"`
	Score      float64 `json:"score"`
	SourceRule string  `json:"source_rule"`
}

// Analysis is the full tagging result for one message.
type Analysis struct {
	Tags         []string           `json:"tags"`
	Candidates   []Candidate        `json:"candidates"`
	ContentTags  []string           `json:"content_tags"`
	BehaviorTags []string           `json:"behavior_tags"`
	Scores       map[string]float64 `json:"tag_scores"`
}

// Scorer matches a rule table and behavioral signals into scored tags.
type Scorer struct {
	mu        sync.RWMutex
	rules     []compiledRule
	conflicts [][2]string
	threshold float64
	logger    *zap.Logger
}

// NewScorer compiles a rule set. threshold <= 0 uses DefaultThreshold.
func NewScorer(rs RuleSet, threshold float64, logger *zap.Logger) (*Scorer, error) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	s := &Scorer{conflicts: rs.Conflicts, threshold: threshold, logger: logger}
	if s.conflicts == nil {
		s.conflicts = DefaultConflicts()
	}
	for _, r := range rs.Rules {
		cr, err := compileRule(r)
		if err != nil {
			return nil, err
		}
		s.rules = append(s.rules, cr)
	}
	return s, nil
}

// Threshold returns the filter threshold.
func (s *Scorer) Threshold() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.threshold
}

// SetThreshold changes the filter threshold.
func (s *Scorer) SetThreshold(v float64) {
	s.mu.Lock()
	s.threshold = v
	s.mu.Unlock()
}

// AddRule adds a rule, replacing one with the same name in place.
func (s *Scorer) AddRule(r Rule) error {
	cr, err := compileRule(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// Copy on write: Analyze reads the slice after releasing the lock.
	rules := slices.Clone(s.rules)
	for i := range rules {
		if rules[i].name == r.Name {
			rules[i] = cr
			s.rules = rules
			s.logger.Info("tag rule replaced", zap.String("tag", r.Name))
			return nil
		}
	}
	s.rules = append(rules, cr)
	s.logger.Info("tag rule added", zap.String("tag", r.Name))
	return nil
}

// RemoveRule deletes a rule and reports whether it existed.
func (s *Scorer) RemoveRule(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rules {
		if s.rules[i].name == name {
			s.rules = slices.Delete(slices.Clone(s.rules), i, i+1)
			s.logger.Info("tag rule removed", zap.String("tag", name))
			return true
		}
	}
	return false
}

// Available lists the content tags in rule order.
func (s *Scorer) Available() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, len(s.rules))
	for i, r := range s.rules {
		names[i] = r.name
	}
	return names
}

// Analyze tags a message using its content, the current session and
// the user's past sessions.
func (s *Scorer) Analyze(message string, session SessionData, history []HistorySession) Analysis {
	folded := strings.ToLower(message)

	s.mu.RLock()
	rules := s.rules
	conflicts := s.conflicts
	threshold := s.threshold
	s.mu.RUnlock()

	type hits struct{ keywords, patterns int }
	ruleHits := make(map[string]hits)
	var content []string
	for _, r := range rules {
		k, p := r.matches(folded)
		if k > 0 || p > 0 {
			content = append(content, r.name)
			ruleHits[r.name] = hits{k, p}
		}
	}
	behavior := behaviorTags(session, history)

	merged := resolveConflicts(union(content, behavior), conflicts)

	a := Analysis{
		ContentTags:  content,
		BehaviorTags: behavior,
		Scores:       make(map[string]float64, len(merged)),
	}
	if a.ContentTags == nil {
		a.ContentTags = []string{}
	}
	if a.BehaviorTags == nil {
		a.BehaviorTags = []string{}
	}

	for _, tag := range merged {
		score := 0.5
		if h, ok := ruleHits[tag]; ok {
			score += 0.1*float64(h.keywords) + 0.15*float64(h.patterns)
		}
		switch {
		case tag == "active_user" && session.MessageCount > 15:
			score += 0.2
		case tag == "quick_responder" && session.AvgResponseTime < 5:
			score += 0.2
		}
		score = math.Max(0, math.Min(1, score))
		a.Scores[tag] = score
		s.logger.Debug("tag scored", zap.String("tag", tag), zap.Float64("score", score))
	}

	a.Tags = Filter(a.Scores, threshold)
	a.Candidates = make([]Candidate, 0, len(a.Tags))
	for _, tag := range a.Tags {
		a.Candidates = append(a.Candidates, Candidate{
			Name:       tag,
			Score:      a.Scores[tag],
			SourceRule: sourceOf(tag, content, behavior),
		})
	}
	return a
}

// Filter keeps tags scoring at least threshold, ordered by score
// descending then name.
func Filter(scores map[string]float64, threshold float64) []string {
	out := make([]string, 0, len(scores))
	for tag, score := range scores {
		if score >= threshold {
			out = append(out, tag)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if scores[out[i]] != scores[out[j]] {
			return scores[out[i]] > scores[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}

func union(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	var out []string
	for _, list := range [][]string{a, b} {
		for _, t := range list {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

func resolveConflicts(tags []string, conflicts [][2]string) []string {
	for _, pair := range conflicts {
		if slices.Contains(tags, pair[0]) && slices.Contains(tags, pair[1]) {
			tags = slices.DeleteFunc(tags, func(t string) bool { return t == pair[1] })
		}
	}
	return tags
}

func sourceOf(tag string, content, behavior []string) string {
	c, b := slices.Contains(content, tag), slices.Contains(behavior, tag)
	switch {
	case c && b:
		return SourceContentBehavior
	case b:
		return SourceBehavior
	default:
		return SourceContent
	}
}
