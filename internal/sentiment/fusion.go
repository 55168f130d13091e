package sentiment

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
)

// Fusion runs several estimators over a message and fuses their opinions.
type Fusion struct {
	estimators []Estimator
	logger     *zap.Logger
}

// DefaultEstimators returns the built-in lexicon and emotion estimators.
func DefaultEstimators() []Estimator {
	emo, err := NewEmotions(DefaultEmotionGroups())
	if err != nil {
		panic(err) // built-in patterns are literals
	}
	lex, err := NewLexicon(DefaultLexiconTables())
	if err != nil {
		panic(err)
	}
	return []Estimator{lex, emo}
}

// NewFusion creates a Fusion. Declaration order of estimators breaks
// label ties. With no estimators the defaults are used.
func NewFusion(logger *zap.Logger, estimators ...Estimator) *Fusion {
	if len(estimators) == 0 {
		estimators = DefaultEstimators()
	}
	return &Fusion{estimators: estimators, logger: logger}
}

// Estimators returns the names of the configured estimators in order.
func (f *Fusion) Estimators() []string {
	names := make([]string, len(f.estimators))
	for i, e := range f.estimators {
		names[i] = e.Name()
	}
	return names
}

// Analyze fuses all estimators' opinions on message and adjusts the
// result with conversational context.
func (f *Fusion) Analyze(message string, ctx Context) Result {
	res := Result{Label: Neutral}
	for _, est := range f.estimators {
		if d, ok := est.(EmotionDetector); ok {
			for k, v := range safeEmotions(d, message) {
				if res.Emotions == nil {
					res.Emotions = make(map[string]float64)
				}
				res.Emotions[k] = v
			}
		}

		e, err := safeEstimate(est, message)
		if errors.Is(err, ErrNoSignal) {
			continue
		}
		if err != nil {
			if res.Failures == nil {
				res.Failures = make(map[string]string)
			}
			res.Failures[est.Name()] = err.Error()
			f.logger.Debug("sentiment estimator failed",
				zap.String("estimator", est.Name()), zap.Error(err))
			continue
		}
		if e.Source == "" {
			e.Source = est.Name()
		}
		e.Score = clamp(e.Score, -1, 1)
		e.Confidence = clamp(e.Confidence, 0, 1)
		res.Estimates = append(res.Estimates, e)
	}

	if len(res.Estimates) == 0 {
		return res
	}

	res.Label = majority(res.Estimates)
	for _, e := range res.Estimates {
		res.Score += e.Score
		res.Confidence += e.Confidence
	}
	n := float64(len(res.Estimates))
	res.Score /= n
	res.Confidence /= n

	adjust(&res, ctx)
	return res
}

// majority returns the most voted label. Ties go to the label of the
// earliest estimate holding the top count.
func majority(estimates []Estimate) Label {
	counts := make(map[Label]int, 3)
	for _, e := range estimates {
		counts[e.Label]++
	}
	best, bestCount := estimates[0].Label, 0
	for _, e := range estimates {
		if counts[e.Label] > bestCount {
			best, bestCount = e.Label, counts[e.Label]
		}
	}
	return best
}

func adjust(res *Result, ctx Context) {
	if n := len(ctx.RecentSentiments); n >= 3 && res.Label == Neutral {
		last := ctx.RecentSentiments[n-3:]
		if last[0] != Neutral && last[0] == last[1] && last[1] == last[2] {
			res.Label = last[0]
			res.Confidence *= 0.8
			res.Adjusted = true
		}
	}

	switch {
	case ctx.Stage == StageComplaintHandling && res.Label == Negative,
		ctx.Stage == StageOrderConfirmation && res.Label == Positive:
		res.Confidence = math.Min(res.Confidence*1.2, 1.0)
		res.Adjusted = true
	}
}

func safeEstimate(est Estimator, text string) (e Estimate, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("estimator panic: %v", r)
		}
	}()
	return est.Estimate(text)
}

func safeEmotions(d EmotionDetector, text string) (m map[string]float64) {
	defer func() {
		if recover() != nil {
			m = nil
		}
	}()
	return d.Emotions(text)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
