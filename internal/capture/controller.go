// Package capture manages the lifecycle of single-shot speech captures on top
// of a host speech recognizer.
package capture

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"saathi/internal/domain"
	"saathi/internal/ports"
)

// Event is delivered once per capture, after the controller is inactive again.
type Event struct {
	Seq    uint64
	Result domain.RecognitionResult
}

// Handler receives capture events. It is invoked without any controller lock held.
type Handler func(Event)

// Controller permits at most one active capture. The language is bound when a
// capture starts; Bind may only change it between captures.
type Controller struct {
	recognizer ports.SpeechRecognizer
	logger     zerolog.Logger

	mu       sync.Mutex
	handler  Handler
	language string
	active   *activeCapture
	seq      uint64
	closed   bool
}

type activeCapture struct {
	seq     uint64
	rec     ports.Recognition
	cancel  context.CancelFunc
	done    chan struct{}
	aborted bool
}

func NewController(recognizer ports.SpeechRecognizer, language string, handler Handler, logger zerolog.Logger) *Controller {
	return &Controller{
		recognizer: recognizer,
		handler:    handler,
		language:   language,
		logger:     logger.With().Str("component", "capture").Logger(),
	}
}

// Available reports whether the host can capture speech at all.
func (c *Controller) Available() bool {
	return c.recognizer != nil && c.recognizer.Available()
}

// Language returns the currently bound language.
func (c *Controller) Language() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.language
}

// Bind rebinds the controller to a new language between captures.
func (c *Controller) Bind(language string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		return domain.ErrAlreadyActive
	}
	c.language = language
	return nil
}

// Start begins a single-shot capture and returns its sequence number.
func (c *Controller) Start(ctx context.Context) (uint64, error) {
	if !c.Available() {
		return 0, domain.ErrNotSupported
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, domain.ErrSessionClosed
	}
	if c.active != nil {
		return 0, domain.ErrAlreadyActive
	}

	captureCtx, cancel := context.WithCancel(ctx)
	rec, err := c.recognizer.Start(captureCtx, c.language)
	if err != nil {
		cancel()
		return 0, err
	}

	c.seq++
	active := &activeCapture{
		seq:    c.seq,
		rec:    rec,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.active = active
	go c.watch(active)

	c.logger.Debug().Uint64("seq", active.seq).Str("language", c.language).Msg("capture started")
	return active.seq, nil
}

// Stop asks the active capture to finish and deliver its result.
func (c *Controller) Stop() {
	c.mu.Lock()
	active := c.active
	c.mu.Unlock()
	if active != nil {
		active.rec.Stop()
	}
}

// Abort discards the active capture without delivering a result. The returned
// channel closes once the capture is fully inactive.
func (c *Controller) Abort() <-chan struct{} {
	c.mu.Lock()
	active := c.active
	if active != nil {
		active.aborted = true
	}
	c.mu.Unlock()

	if active == nil {
		done := make(chan struct{})
		close(done)
		return done
	}
	active.rec.Abort()
	active.cancel()
	return active.done
}

// Active reports whether a capture is in progress.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// Close detaches the handler and aborts any active capture.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.handler = nil
	c.mu.Unlock()
	<-c.Abort()
}

func (c *Controller) watch(active *activeCapture) {
	result, ok := <-active.rec.Result()
	if !ok {
		result = domain.RecognitionResult{Outcome: domain.CaptureEmpty}
	}

	c.mu.Lock()
	if c.active == active {
		c.active = nil
	}
	aborted := active.aborted
	handler := c.handler
	c.mu.Unlock()

	active.cancel()
	close(active.done)

	if aborted || result.Outcome == domain.CaptureAborted {
		c.logger.Debug().Uint64("seq", active.seq).Msg("capture aborted")
		return
	}
	if handler == nil {
		return
	}
	handler(Event{Seq: active.seq, Result: result})
}
