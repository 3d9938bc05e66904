// Package preview captures page screenshots for the URL being typed. Captures
// are debounced per flow and are independent of analysis runs.
package preview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/url-guardian/client/internal/debounce"
	"github.com/url-guardian/client/internal/metrics"
	"github.com/url-guardian/client/internal/models"
	"github.com/url-guardian/client/pkg/logger"
)

const (
	DefaultDelay = 500 * time.Millisecond
	pngPrefix    = "data:image/png;base64,"
	debounceKey  = "url"
)

var (
	ErrNoScreenshot = errors.New("No screenshot data received")
	ErrClosed       = errors.New("preview flow closed")
)

// StalePolicy decides what happens when an older capture resolves after a newer one.
type StalePolicy int

const (
	// StaleAccept renders every response as it arrives, so a slow older
	// capture can overwrite a newer one.
	StaleAccept StalePolicy = iota
	// StaleDiscard keeps only the response of the most recently issued capture.
	StaleDiscard
)

func ParseStalePolicy(s string) (StalePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "accept":
		return StaleAccept, nil
	case "discard":
		return StaleDiscard, nil
	default:
		return StaleAccept, fmt.Errorf("unknown stale policy %q", s)
	}
}

type Capturer interface {
	CaptureScreenshot(ctx context.Context, url string) (string, error)
}

// Frame is what the preview pane shows. Image is a renderable data URI.
type Frame struct {
	URL     string `json:"url"`
	Image   string `json:"image,omitempty"`
	Err     string `json:"error,omitempty"`
	Loading bool   `json:"loading"`
	Seq     uint64 `json:"seq"`
}

type Config struct {
	Delay       time.Duration
	StalePolicy StalePolicy
	Timeout     time.Duration
	// OnFrame is called with every published frame, outside the flow's lock.
	OnFrame func(Frame)
}

type Flow struct {
	capturer Capturer
	policy   StalePolicy
	timeout  time.Duration
	onFrame  func(Frame)

	scope *debounce.Scope
	input *debounce.Value[string]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	current  Frame
	issued   uint64
	inflight int
	closed   bool
}

func NewFlow(name string, capturer Capturer, cfg Config) *Flow {
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	f := &Flow{
		capturer: capturer,
		policy:   cfg.StalePolicy,
		timeout:  cfg.Timeout,
		onFrame:  cfg.OnFrame,
		scope:    debounce.NewScope(name),
		ctx:      ctx,
		cancel:   cancel,
	}
	f.input = debounce.NewValue(f.scope, debounceKey, cfg.Delay, f.fire)
	return f
}

// URLChanged records a new value of the URL field. The capture runs once the
// field has been stable for the configured delay.
func (f *Flow) URLChanged(url string) {
	f.input.Set(url)
}

// CaptureAsync starts a capture of url in the background without waiting for
// the debounce delay.
func (f *Flow) CaptureAsync(url string) {
	f.fire(url)
}

func (f *Flow) fire(url string) {
	url = strings.TrimSpace(url)
	if url == "" {
		return
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.wg.Add(1)
	f.mu.Unlock()

	go func() {
		defer f.wg.Done()
		ctx, cancel := context.WithTimeout(f.ctx, f.timeout)
		defer cancel()
		_, _ = f.capture(ctx, url)
	}()
}

// CaptureNow captures url immediately, bypassing the debounce. It returns
// ErrClosed once the flow has been closed.
func (f *Flow) CaptureNow(ctx context.Context, url string) (Frame, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return Frame{}, models.NewValidationError("Please enter a valid URL")
	}

	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return Frame{}, ErrClosed
	}
	return f.capture(ctx, url)
}

func (f *Flow) capture(ctx context.Context, url string) (Frame, error) {
	f.mu.Lock()
	f.issued++
	seq := f.issued
	f.inflight++
	loading := Frame{URL: url, Image: f.current.Image, Loading: true, Seq: seq}
	f.current = loading
	f.mu.Unlock()
	f.emit(loading)

	logger.Debug("Capturing preview", zap.String("url", url), zap.Uint64("seq", seq))

	raw, err := f.capturer.CaptureScreenshot(ctx, url)
	var image string
	if err == nil {
		image, err = Decode(raw)
	}

	frame := Frame{URL: url, Seq: seq}
	if err != nil {
		frame.Err = models.UserMessage(err)
		metrics.PreviewCaptures.WithLabelValues("failed").Inc()
		logger.Warn("Preview capture failed",
			zap.String("url", url),
			zap.String("kind", string(models.KindOf(err))),
			zap.Error(err),
		)
	} else {
		frame.Image = image
		metrics.PreviewCaptures.WithLabelValues("success").Inc()
	}

	f.mu.Lock()
	f.inflight--
	if f.policy == StaleDiscard && seq != f.issued {
		f.current.Loading = f.inflight > 0
		cur := f.current
		f.mu.Unlock()
		metrics.PreviewCaptures.WithLabelValues("discarded").Inc()
		logger.Debug("Discarding stale preview", zap.String("url", url), zap.Uint64("seq", seq))
		f.emit(cur)
		return frame, err
	}
	frame.Loading = f.inflight > 0
	f.current = frame
	f.mu.Unlock()

	f.emit(frame)
	return frame, err
}

func (f *Flow) emit(frame Frame) {
	if f.onFrame != nil {
		f.onFrame(frame)
	}
}

// Decode turns a screenshot payload into a data URI. Payloads that are already
// data URIs pass through; anything else is taken as raw base64 PNG.
func Decode(screenshot string) (string, error) {
	screenshot = strings.TrimSpace(screenshot)
	if screenshot == "" {
		return "", ErrNoScreenshot
	}
	if strings.HasPrefix(screenshot, "data:") {
		return screenshot, nil
	}
	return pngPrefix + screenshot, nil
}

func (f *Flow) Current() Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *Flow) Pending() int {
	return f.scope.Pending()
}

// Close cancels any pending debounce and in-flight captures and waits for them
// to return.
func (f *Flow) Close() {
	f.scope.Close()

	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()

	f.cancel()
	f.wg.Wait()
}
