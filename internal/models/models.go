package models

import (
	"encoding/json"
	"time"
)

type Label string

const (
	LabelPhishing   Label = "PHISHING"
	LabelLegitimate Label = "LEGITIMATE"
	LabelUnknown    Label = "UNKNOWN"
)

// Slot names one of the three per-model classifiers.
type Slot string

const (
	SlotURL  Slot = "url"
	SlotHTML Slot = "html"
	SlotDOM  Slot = "dom"
)

var Slots = []Slot{SlotURL, SlotHTML, SlotDOM}

// AnalysisResult is one classifier's verdict.
type AnalysisResult struct {
	Probability  float64  `json:"probability"`
	Label        Label    `json:"label"`
	Confidence   float64  `json:"confidence"`
	Explanations []string `json:"explanations"`
	ModelName    string   `json:"model_name"`
}

// Known reports whether the classifier produced a verdict that can be given a risk tier.
func (r AnalysisResult) Known() bool {
	return r.Label != LabelUnknown && r.Label != ""
}

// EnsembleResponse is the aggregate of one analysis run. PerModel is keyed by slot;
// the url slot is absent for HTML uploads. A decoded response has a nil PerModel
// when the service returned no per-model results.
type EnsembleResponse struct {
	Subject  string
	PerModel map[Slot]AnalysisResult
	Ensemble AnalysisResult
}

type ensembleWire struct {
	URL       string          `json:"url"`
	URLModel  *AnalysisResult `json:"url_model,omitempty"`
	HTMLModel *AnalysisResult `json:"html_model,omitempty"`
	DOMModel  *AnalysisResult `json:"dom_model,omitempty"`
	Ensemble  *AnalysisResult `json:"ensemble,omitempty"`
}

func (e EnsembleResponse) MarshalJSON() ([]byte, error) {
	w := ensembleWire{URL: e.Subject}
	ens := e.Ensemble
	w.Ensemble = &ens
	for slot, res := range e.PerModel {
		res := res
		switch slot {
		case SlotURL:
			w.URLModel = &res
		case SlotHTML:
			w.HTMLModel = &res
		case SlotDOM:
			w.DOMModel = &res
		}
	}
	return json.Marshal(w)
}

func (e *EnsembleResponse) UnmarshalJSON(data []byte) error {
	var w ensembleWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Ensemble == nil {
		return ErrMissingEnsemble
	}
	e.Subject = w.URL
	e.Ensemble = normalized(*w.Ensemble)
	e.PerModel = nil
	for slot, res := range map[Slot]*AnalysisResult{SlotURL: w.URLModel, SlotHTML: w.HTMLModel, SlotDOM: w.DOMModel} {
		if res == nil {
			continue
		}
		if e.PerModel == nil {
			e.PerModel = make(map[Slot]AnalysisResult, 3)
		}
		e.PerModel[slot] = normalized(*res)
	}
	return nil
}

func normalized(r AnalysisResult) AnalysisResult {
	if r.Explanations == nil {
		r.Explanations = []string{}
	}
	if r.Label == "" {
		r.Label = LabelUnknown
	}
	return r
}

// Model returns the result for slot, if the service produced one.
func (e EnsembleResponse) Model(slot Slot) (AnalysisResult, bool) {
	r, ok := e.PerModel[slot]
	return r, ok
}

// HistoryEntry is an immutable record of one completed analysis run.
type HistoryEntry struct {
	ID         string           `json:"id"`
	Subject    string           `json:"url"`
	Response   EnsembleResponse `json:"result"`
	CapturedAt time.Time        `json:"-"`
}

type historyEntryWire struct {
	ID         string           `json:"id"`
	Subject    string           `json:"url"`
	Response   EnsembleResponse `json:"result"`
	CapturedAt int64            `json:"timestamp"`
}

func (h HistoryEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(historyEntryWire{
		ID:         h.ID,
		Subject:    h.Subject,
		Response:   h.Response,
		CapturedAt: h.CapturedAt.UnixMilli(),
	})
}

func (h *HistoryEntry) UnmarshalJSON(data []byte) error {
	var w historyEntryWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	h.ID = w.ID
	h.Subject = w.Subject
	h.Response = w.Response
	h.CapturedAt = time.UnixMilli(w.CapturedAt)
	return nil
}

// ScreenshotResponse is the capture endpoint's success body.
type ScreenshotResponse struct {
	Screenshot string `json:"screenshot"`
}

type HealthStatus struct {
	Status string          `json:"status"`
	Device string          `json:"device"`
	Models map[string]bool `json:"models"`
}
