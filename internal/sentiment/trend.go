package sentiment

// Trend directions.
const (
	TrendImproving        = "improving"
	TrendDeclining        = "declining"
	TrendStable           = "stable"
	TrendInsufficientData = "insufficient_data"
)

const trendWindow = 5

// TrendReport describes how sentiment moved over a conversation.
type TrendReport struct {
	Trend        string  `json:"trend"`
	Overall      Label   `json:"overall_sentiment"`
	OverallScore float64 `json:"overall_score"`
	TrendScore   float64 `json:"trend_score"`
	Count        int     `json:"sentiment_count"`
}

// Trend compares the mean of the last five scores with the mean of the
// first five.
func Trend(history []Estimate) TrendReport {
	switch len(history) {
	case 0:
		return TrendReport{Trend: TrendStable, Overall: Neutral}
	case 1:
		return TrendReport{Trend: TrendInsufficientData, Overall: Neutral, Count: 1}
	}

	early := meanScore(history[:min(trendWindow, len(history))])
	recent := meanScore(history[max(0, len(history)-trendWindow):])
	overall := meanScore(history)

	r := TrendReport{
		Trend:        TrendStable,
		Overall:      labelFor(overall),
		OverallScore: overall,
		TrendScore:   recent - early,
		Count:        len(history),
	}
	switch {
	case r.TrendScore > 0.2:
		r.Trend = TrendImproving
	case r.TrendScore < -0.2:
		r.Trend = TrendDeclining
	}
	return r
}

func meanScore(es []Estimate) float64 {
	var sum float64
	for _, e := range es {
		sum += e.Score
	}
	return sum / float64(len(es))
}

// EmotionSummary aggregates emotions over many messages.
type EmotionSummary struct {
	Total        int                `json:"total_messages"`
	Counts       map[string]int     `json:"emotion_counts"`
	Distribution map[string]float64 `json:"emotion_distribution"`
	Dominant     string             `json:"dominant_emotion,omitempty"`
}

// SummarizeEmotions counts emotions scoring above 0.5 in each message.
// Ties for the dominant emotion go to the lexically smallest name.
func SummarizeEmotions(perMessage []map[string]float64) EmotionSummary {
	s := EmotionSummary{
		Total:        len(perMessage),
		Counts:       make(map[string]int),
		Distribution: make(map[string]float64),
	}
	for _, m := range perMessage {
		for name, score := range m {
			if score > 0.5 {
				s.Counts[name]++
			}
		}
	}
	best := 0
	for name, c := range s.Counts {
		s.Distribution[name] = float64(c) / float64(s.Total)
		if c > best || (c == best && name < s.Dominant) {
			best, s.Dominant = c, name
		}
	}
	return s
}
