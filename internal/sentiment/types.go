package sentiment

import "errors"

// Label is the polarity of an estimate.
type Label string

const (
	Positive Label = "positive"
	Neutral  Label = "neutral"
	Negative Label = "negative"
)

// Polarity cutoffs shared by estimators and trend reports.
const (
	positiveCutoff = 0.1
	negativeCutoff = -0.1
)

// ErrNoSignal is returned by an estimator that has nothing to say about
// a message. The fusion treats it as an abstention, not a failure.
var ErrNoSignal = errors.New("no sentiment signal")

// Estimate is one estimator's opinion about a message.
type Estimate struct {
	Label      Label   `json:"label"`
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// Estimator produces a sentiment estimate for a message.
type Estimator interface {
	Name() string
	Estimate(text string) (Estimate, error)
}

// EmotionDetector is implemented by estimators that also score discrete emotions.
type EmotionDetector interface {
	Emotions(text string) map[string]float64
}

// Context carries conversational state that adjusts the fused result.
type Context struct {
	RecentSentiments []Label `json:"recent_sentiments,omitempty"`
	Stage            string  `json:"stage,omitempty"`
}

// Conversation stages that boost confidence.
const (
	StageComplaintHandling = "complaint_handling"
	StageOrderConfirmation = "order_confirmation"
)

// Result is the fused sentiment for one message.
type Result struct {
	Label      Label              `json:"label"`
	Score      float64            `json:"score"`
	Confidence float64            `json:"confidence"`
	Emotions   map[string]float64 `json:"emotions,omitempty"`
	Estimates  []Estimate         `json:"estimates,omitempty"`
	Failures   map[string]string  `json:"failures,omitempty"`
	Adjusted   bool               `json:"adjusted"`
}

func labelFor(score float64) Label {
	switch {
	case score > positiveCutoff:
		return Positive
	case score < negativeCutoff:
		return Negative
	default:
		return Neutral
	}
}
