package sentiment

import (
	"fmt"
	"math"
	"regexp"
)

// EmotionGroup is a named emotion with the patterns that signal it.
type EmotionGroup struct {
	Name     string   `json:"name"`
	Patterns []string `json:"patterns"`
	Polarity int      `json:"polarity"` // 1 positive, -1 negative, 0 none
}

// DefaultEmotionGroups returns the seven built-in emotion groups.
func DefaultEmotionGroups() []EmotionGroup {
	return []EmotionGroup{
		{Name: "angry", Patterns: []string{"生气", "愤怒", "火大", "气死了", "烦死了"}, Polarity: -1},
		{Name: "happy", Patterns: []string{"开心", "高兴", "快乐", "爽", "舒服"}, Polarity: 1},
		{Name: "sad", Patterns: []string{"难过", "伤心", "郁闷", "沮丧", "失落"}, Polarity: -1},
		{Name: "surprised", Patterns: []string{"惊讶", "震惊", "意外", "没想到", "想不到"}},
		{Name: "worried", Patterns: []string{"担心", "焦虑", "紧张", "不安", "忧虑"}, Polarity: -1},
		{Name: "satisfied", Patterns: []string{"满意", "舒心", "放心", "安心", "称心"}, Polarity: 1},
		{Name: "disappointed", Patterns: []string{"失望", "遗憾", "可惜", "无语", "郁闷"}, Polarity: -1},
	}
}

type compiledGroup struct {
	name     string
	polarity int
	patterns []*regexp.Regexp
}

// Emotions scores discrete emotions by pattern matching and derives a
// polarity from them. It abstains when no pattern matches.
type Emotions struct {
	groups []compiledGroup
}

// NewEmotions compiles emotion groups. Invalid patterns are reported.
func NewEmotions(groups []EmotionGroup) (*Emotions, error) {
	e := &Emotions{}
	for _, g := range groups {
		cg := compiledGroup{name: g.Name, polarity: g.Polarity}
		for _, p := range g.Patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("compile emotion pattern %q: %w", p, err)
			}
			cg.patterns = append(cg.patterns, re)
		}
		e.groups = append(e.groups, cg)
	}
	return e, nil
}

// Name implements Estimator.
func (e *Emotions) Name() string { return "emotions" }

// Emotions returns the score of every matched emotion: matches divided
// by pattern count, capped at 1.
func (e *Emotions) Emotions(text string) map[string]float64 {
	out := make(map[string]float64)
	for _, g := range e.groups {
		if len(g.patterns) == 0 {
			continue
		}
		matches := 0
		for _, re := range g.patterns {
			matches += len(re.FindAllStringIndex(text, -1))
		}
		if matches > 0 {
			out[g.name] = math.Min(float64(matches)/float64(len(g.patterns)), 1.0)
		}
	}
	return out
}

// Estimate implements Estimator.
func (e *Emotions) Estimate(text string) (Estimate, error) {
	scores := e.Emotions(text)
	if len(scores) == 0 {
		return Estimate{}, ErrNoSignal
	}

	var pos, neg, peak float64
	for _, g := range e.groups {
		s, ok := scores[g.name]
		if !ok {
			continue
		}
		peak = math.Max(peak, s)
		switch {
		case g.polarity > 0:
			pos += s
		case g.polarity < 0:
			neg += s
		}
	}

	est := Estimate{Label: Neutral, Source: e.Name()}
	if total := pos + neg; total > 0 {
		est.Score = (pos - neg) / total
		est.Label = labelFor(est.Score)
	}
	est.Confidence = math.Min(peak+0.3, 1.0)
	return est, nil
}
