// Package risk maps classifier probabilities to display tiers. It is the only
// place thresholds and risk colors are defined.
package risk

import "github.com/url-guardian/client/internal/models"

type Tier string

const (
	TierLow    Tier = "LOW"
	TierMedium Tier = "MEDIUM"
	TierHigh   Tier = "HIGH"
)

const (
	MediumThreshold = 0.33
	HighThreshold   = 0.67
)

// Classify is total over float64: values below 0 fall into LOW, above 1 into HIGH.
// Each band is closed on its lower bound and open on its upper bound.
func Classify(probability float64) Tier {
	switch {
	case probability >= HighThreshold:
		return TierHigh
	case probability >= MediumThreshold:
		return TierMedium
	default:
		return TierLow
	}
}

// Verdict is the tagged variant a presentation adapter consumes:
// {LOW, MEDIUM, HIGH} x {PHISHING, LEGITIMATE, UNKNOWN}.
type Verdict struct {
	Label models.Label `json:"label"`
	Tier  Tier         `json:"tier,omitempty"`
	Rated bool         `json:"rated"`
}

// Annotate derives the display verdict for r. UNKNOWN results are never rated.
func Annotate(r models.AnalysisResult) Verdict {
	if !r.Known() {
		return Verdict{Label: models.LabelUnknown}
	}
	return Verdict{Label: r.Label, Tier: Classify(r.Probability), Rated: true}
}

type Color string

const (
	ColorGreen   Color = "green"
	ColorYellow  Color = "yellow"
	ColorRed     Color = "red"
	ColorNeutral Color = "neutral"
)

func (v Verdict) Color() Color {
	if !v.Rated {
		return ColorNeutral
	}
	switch v.Tier {
	case TierHigh:
		return ColorRed
	case TierMedium:
		return ColorYellow
	default:
		return ColorGreen
	}
}

// Headline is the banner text for an ensemble verdict.
func (v Verdict) Headline() string {
	switch v.Label {
	case models.LabelPhishing:
		return "PHISHING DETECTED"
	case models.LabelLegitimate:
		return "LEGITIMATE"
	default:
		return "Unable to analyze"
	}
}

// Report annotates every result in resp, keyed by slot plus "ensemble".
func Report(resp models.EnsembleResponse) map[string]Verdict {
	out := make(map[string]Verdict, len(resp.PerModel)+1)
	for slot, r := range resp.PerModel {
		out[string(slot)] = Annotate(r)
	}
	out["ensemble"] = Annotate(resp.Ensemble)
	return out
}
