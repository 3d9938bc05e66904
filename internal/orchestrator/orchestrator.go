// Package orchestrator drives one analysis at a time through
// Idle -> Validating -> InFlight -> Succeeded/Failed and records successes in
// the history log.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/url-guardian/client/internal/metrics"
	"github.com/url-guardian/client/internal/models"
	"github.com/url-guardian/client/internal/risk"
	"github.com/url-guardian/client/pkg/logger"
)

type State string

const (
	StateIdle       State = "Idle"
	StateValidating State = "Validating"
	StateInFlight   State = "InFlight"
	StateSucceeded  State = "Succeeded"
	StateFailed     State = "Failed"
)

func (s State) busy() bool {
	return s == StateValidating || s == StateInFlight
}

// Policy decides what a submit does while another run is in progress.
type Policy int

const (
	// PolicyReject refuses the new submit with ErrBusy.
	PolicyReject Policy = iota
	// PolicySupersede cancels the running request and drops its late response.
	PolicySupersede
)

func (p Policy) String() string {
	if p == PolicySupersede {
		return "supersede"
	}
	return "reject"
}

func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reject":
		return PolicyReject, nil
	case "supersede":
		return PolicySupersede, nil
	default:
		return PolicyReject, fmt.Errorf("unknown busy policy %q", s)
	}
}

var (
	ErrBusy       = errors.New("an analysis is already in progress")
	ErrSuperseded = errors.New("analysis superseded by a newer submit")
)

// Recorder persists successful runs. *history.Log satisfies it. A Record
// failure is logged and does not fail the run, so Succeeded does not
// guarantee a history entry; Snapshot.EntryID is empty in that case.
type Recorder interface {
	Record(ctx context.Context, subject string, resp models.EnsembleResponse) (models.HistoryEntry, error)
	Len() int
}

// Snapshot is the observable state after a transition.
type Snapshot struct {
	Mode      Mode                     `json:"mode"`
	State     State                    `json:"state"`
	Input     string                   `json:"-"`
	Subject   string                   `json:"subject,omitempty"`
	Response  *models.EnsembleResponse `json:"result,omitempty"`
	Verdict   *risk.Verdict            `json:"verdict,omitempty"`
	Err       error                    `json:"-"`
	ErrorKind models.ErrorKind         `json:"error_kind,omitempty"`
	Message   string                   `json:"error,omitempty"`
	EntryID   string                   `json:"history_id,omitempty"`
	UpdatedAt time.Time                `json:"updated_at"`
}

type Config struct {
	Builder RequestBuilder
	History Recorder
	Policy  Policy
	Now     func() time.Time
}

// Orchestrator is safe for concurrent use. All transitions are serialized by
// its mutex; only the newest run may move the machine or write history.
type Orchestrator struct {
	builder RequestBuilder
	history Recorder
	policy  Policy
	now     func() time.Time

	mu      sync.Mutex
	snap    Snapshot
	run     uint64
	cancel  context.CancelFunc
	subs    map[int]chan Snapshot
	nextSub int
}

func New(cfg Config) *Orchestrator {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	o := &Orchestrator{
		builder: cfg.Builder,
		history: cfg.History,
		policy:  cfg.Policy,
		now:     cfg.Now,
		subs:    make(map[int]chan Snapshot),
	}
	o.snap = Snapshot{Mode: cfg.Builder.Mode(), State: StateIdle, UpdatedAt: o.now()}
	return o
}

func (o *Orchestrator) Mode() Mode {
	return o.builder.Mode()
}

func (o *Orchestrator) Policy() Policy {
	return o.policy
}

// Submit runs one analysis of input and returns its response. The call blocks
// until the run reaches a terminal state, is rejected with ErrBusy, or is
// superseded (ErrSuperseded).
func (o *Orchestrator) Submit(ctx context.Context, input string) (*models.EnsembleResponse, error) {
	snap, err := o.Run(ctx, input)
	if err != nil {
		return nil, err
	}
	return snap.Response, nil
}

// Run is Submit returning the run's own terminal snapshot, so callers get the
// subject and history id of this run even if another run has started since.
func (o *Orchestrator) Run(ctx context.Context, input string) (Snapshot, error) {
	mode := o.builder.Mode()

	o.mu.Lock()
	if o.snap.State.busy() {
		if o.policy == PolicyReject {
			o.mu.Unlock()
			metrics.AnalysisRejected.WithLabelValues(string(mode), o.policy.String()).Inc()
			logger.Debug("Submit rejected while busy", zap.String("mode", string(mode)))
			return Snapshot{}, ErrBusy
		}
		o.cancel()
		metrics.AnalysisRejected.WithLabelValues(string(mode), o.policy.String()).Inc()
		logger.Debug("Superseding in-flight analysis", zap.String("mode", string(mode)), zap.Uint64("run", o.run))
	}
	o.run++
	run := o.run
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.transitionLocked(Snapshot{State: StateValidating, Input: input})
	o.mu.Unlock()
	defer cancel()

	req, err := o.builder.Build(input)
	if err != nil {
		return o.fail(run, input, "", err)
	}

	if !o.advance(run, Snapshot{State: StateInFlight, Input: input, Subject: req.Subject}) {
		return Snapshot{}, ErrSuperseded
	}

	start := o.now()
	resp, err := req.Send(runCtx)
	metrics.AnalysisDuration.WithLabelValues(string(mode)).Observe(o.now().Sub(start).Seconds())
	if err != nil {
		return o.fail(run, input, req.Subject, err)
	}

	return o.succeed(ctx, run, input, req.Subject, resp)
}

func (o *Orchestrator) succeed(ctx context.Context, run uint64, input, subject string, resp *models.EnsembleResponse) (Snapshot, error) {
	mode := string(o.builder.Mode())

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.run != run {
		logger.Debug("Dropping superseded response", zap.String("mode", mode), zap.Uint64("run", run))
		return Snapshot{}, ErrSuperseded
	}

	var entryID string
	if o.history != nil {
		entry, err := o.history.Record(ctx, subject, *resp)
		if err != nil {
			// The analysis itself succeeded; the history log keeps its prior state.
			metrics.HistoryWriteFailures.Inc()
			logger.Error("Failed to record analysis in history",
				zap.String("mode", mode),
				zap.String("kind", string(models.KindStorage)),
				zap.String("subject", subject),
				zap.Error(err),
			)
		} else {
			entryID = entry.ID
		}
		metrics.HistoryEntries.Set(float64(o.history.Len()))
	}

	verdict := risk.Annotate(resp.Ensemble)
	metrics.AnalysisTotal.WithLabelValues(mode, "success").Inc()
	metrics.RiskTiers.WithLabelValues(string(verdict.Label), string(verdict.Tier)).Inc()
	if verdict.Rated {
		metrics.EnsembleProbability.Observe(resp.Ensemble.Probability)
	}

	o.transitionLocked(Snapshot{
		State:    StateSucceeded,
		Input:    input,
		Subject:  subject,
		Response: resp,
		Verdict:  &verdict,
		EntryID:  entryID,
	})

	logger.Info("Analysis completed",
		zap.String("mode", mode),
		zap.String("subject", subject),
		zap.String("label", string(verdict.Label)),
		zap.String("tier", string(verdict.Tier)),
		zap.Float64("probability", resp.Ensemble.Probability),
	)
	return o.snap, nil
}

// fail moves run to Failed and returns err, or ErrSuperseded when a newer run
// owns the machine.
func (o *Orchestrator) fail(run uint64, input, subject string, err error) (Snapshot, error) {
	mode := string(o.builder.Mode())

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.run != run {
		logger.Debug("Dropping superseded failure", zap.String("mode", mode), zap.Uint64("run", run), zap.Error(err))
		return Snapshot{}, ErrSuperseded
	}

	kind := models.KindOf(err)
	if kind == "" {
		kind = models.KindTransport
		err = models.NewTransportError(err)
	}
	metrics.AnalysisTotal.WithLabelValues(mode, string(kind)).Inc()

	o.transitionLocked(Snapshot{
		State:     StateFailed,
		Input:     input,
		Subject:   subject,
		Err:       err,
		ErrorKind: kind,
		Message:   models.UserMessage(err),
	})

	if kind == models.KindValidation {
		logger.Debug("Analysis input rejected", zap.String("mode", mode), zap.String("message", models.UserMessage(err)))
	} else {
		logger.Warn("Analysis failed",
			zap.String("mode", mode),
			zap.String("kind", string(kind)),
			zap.String("subject", subject),
			zap.Error(err),
		)
	}
	return o.snap, err
}

func (o *Orchestrator) advance(run uint64, next Snapshot) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.run != run {
		return false
	}
	o.transitionLocked(next)
	return true
}

func (o *Orchestrator) transitionLocked(next Snapshot) {
	next.Mode = o.builder.Mode()
	next.UpdatedAt = o.now()
	logger.Debug("Analysis state changed",
		zap.String("mode", string(next.Mode)),
		zap.String("from", string(o.snap.State)),
		zap.String("to", string(next.State)),
	)
	o.snap = next

	for _, ch := range o.subs {
		select {
		case ch <- next:
		default:
		}
	}
}

// Snapshot returns the current state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snap
}

// Reset returns a terminal machine to Idle. It does nothing and reports false
// while a run is in progress.
func (o *Orchestrator) Reset() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.snap.State.busy() {
		return false
	}
	if o.snap.State != StateIdle {
		o.transitionLocked(Snapshot{State: StateIdle})
	}
	return true
}

// Subscribe returns a channel receiving every subsequent snapshot. Events are
// dropped for a subscriber whose buffer is full. cancel closes the channel.
func (o *Orchestrator) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 16)

	o.mu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = ch
	o.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.subs, id)
			close(ch)
			o.mu.Unlock()
		})
	}
}
