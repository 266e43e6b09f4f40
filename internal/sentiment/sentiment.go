// Package sentiment wraps the VADER polarity scorer behind a stateless
// function.
package sentiment

import (
	"math"

	"github.com/grassmudhorses/vader-go/lexicon"
	"github.com/grassmudhorses/vader-go/sentitext"
)

// Vibe labels.
const (
	Positive = "positive"
	Negative = "negative"
	Neutral  = "neutral"
)

// Detail carries the raw polarity sub-scores.
type Detail struct {
	Positive float64 `json:"positive_score"`
	Negative float64 `json:"negative_score"`
	Neutral  float64 `json:"neutral_score"`
}

// Result is a scored text: the chosen label plus a 0..1 confidence.
type Result struct {
	Vibe   string
	Score  float64
	Detail Detail
}

// Analyze scores text with the default VADER lexicon. Label thresholds
// follow the VADER guidelines: compound >= 0.05 is positive, <= -0.05 is
// negative, anything between is neutral.
func Analyze(text string) Result {
	scores := sentitext.PolarityScore(sentitext.Parse(text, lexicon.DefaultLexicon))

	var label string
	var confidence float64
	switch {
	case scores.Compound >= 0.05:
		label = Positive
		confidence = math.Max(scores.Positive, scores.Compound)
	case scores.Compound <= -0.05:
		label = Negative
		confidence = math.Max(scores.Negative, -scores.Compound)
	default:
		label = Neutral
		confidence = math.Max(scores.Neutral, 1-math.Abs(scores.Compound))
	}

	return Result{
		Vibe:  label,
		Score: round4(confidence),
		Detail: Detail{
			Positive: round4(scores.Positive),
			Negative: round4(scores.Negative),
			Neutral:  round4(scores.Neutral),
		},
	}
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
