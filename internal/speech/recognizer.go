// Package speech turns microphone audio into single-shot transcripts by
// streaming it to a transcription provider.
package speech

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"saathi/internal/domain"
	"saathi/internal/ports"
)

// Config controls capture streaming behavior.
type Config struct {
	Audio          ports.AudioConfig
	Streaming      ports.StreamingConfig
	ChunkSize      int
	StreamingGrace time.Duration
	MaxDuration    time.Duration
	StreamTimeout  time.Duration
}

// StreamingRecognizer implements ports.SpeechRecognizer over an audio capture
// backend and a streaming transcription provider.
type StreamingRecognizer struct {
	audio    ports.AudioCapture
	provider ports.TranscriptionProvider
	rules    ports.RulesEngine
	cfg      Config
	logger   zerolog.Logger
}

func NewStreamingRecognizer(
	audio ports.AudioCapture,
	provider ports.TranscriptionProvider,
	rules ports.RulesEngine,
	cfg Config,
	logger zerolog.Logger,
) *StreamingRecognizer {
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 4096
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = 15 * time.Second
	}
	if cfg.StreamTimeout <= 0 {
		cfg.StreamTimeout = 4 * time.Second
	}
	return &StreamingRecognizer{
		audio:    audio,
		provider: provider,
		rules:    rules,
		cfg:      cfg,
		logger:   logger.With().Str("component", "speech").Logger(),
	}
}

// Available reports whether both a microphone and a configured provider exist.
func (r *StreamingRecognizer) Available() bool {
	return r.audio != nil && r.audio.Available() && r.provider != nil && r.provider.Configured()
}

// Start opens a provider stream bound to language and begins pumping audio.
func (r *StreamingRecognizer) Start(ctx context.Context, language string) (ports.Recognition, error) {
	if !r.Available() {
		return nil, domain.ErrNotSupported
	}

	streaming := r.cfg.Streaming
	streaming.Language = language
	streaming.InterimResults = false

	sessionCtx, cancel := context.WithCancel(ctx)
	stream, err := r.provider.StartStreaming(sessionCtx, streaming)
	if err != nil {
		cancel()
		return nil, err
	}

	audioSession, err := r.audio.Start(sessionCtx, r.cfg.Audio)
	if err != nil {
		_ = stream.Close()
		cancel()
		return nil, err
	}

	rec := &recognition{
		ctx:         sessionCtx,
		cancel:      cancel,
		audio:       audioSession,
		stream:      stream,
		language:    language,
		utterance:   &utterance{},
		eventsDone:  make(chan struct{}),
		audioDone:   make(chan struct{}),
		speechFinal: make(chan struct{}),
		stopCh:      make(chan struct{}),
		abortCh:     make(chan struct{}),
		result:      make(chan domain.RecognitionResult, 1),
	}

	go func() {
		defer close(rec.eventsDone)
		rec.utterance.collect(stream, rec.markSpeechFinal)
	}()
	go func() {
		defer close(rec.audioDone)
		if err := forwardAudio(audioSession, stream, r.cfg.ChunkSize); err != nil {
			rec.recordPumpError(err)
		}
	}()
	go r.run(rec)

	r.logger.Debug().Str("language", language).Msg("recognition started")
	return rec, nil
}

func (r *StreamingRecognizer) run(rec *recognition) {
	timer := time.NewTimer(r.cfg.MaxDuration)
	defer timer.Stop()

	select {
	case <-rec.stopCh:
	case <-rec.speechFinal:
	case <-timer.C:
		r.logger.Debug().Dur("max", r.cfg.MaxDuration).Msg("capture reached maximum duration")
	case <-rec.abortCh:
		rec.teardown()
		rec.deliver(domain.RecognitionResult{Outcome: domain.CaptureAborted})
		return
	case <-rec.ctx.Done():
		rec.teardown()
		rec.deliver(domain.RecognitionResult{Outcome: domain.CaptureAborted})
		return
	}

	rec.deliver(r.finalize(rec))
}

func (r *StreamingRecognizer) finalize(rec *recognition) domain.RecognitionResult {
	if err := rec.audio.Stop(); err != nil {
		r.logger.Warn().Err(err).Msg("failed to stop audio capture cleanly")
	}

	if r.cfg.StreamingGrace > 0 {
		grace := time.NewTimer(r.cfg.StreamingGrace)
		select {
		case <-grace.C:
		case <-rec.abortCh:
			grace.Stop()
		}
	}

	_ = rec.stream.CloseSend()
	streamErr := awaitStream(rec.stream, r.cfg.StreamTimeout)
	<-rec.eventsDone
	<-rec.audioDone
	rec.cancel()

	if rec.aborted() {
		return domain.RecognitionResult{Outcome: domain.CaptureAborted}
	}

	raw := rec.utterance.text()
	if raw == "" {
		if streamErr == nil {
			streamErr = rec.pumpError()
		}
		if streamErr != nil {
			return domain.RecognitionResult{Outcome: domain.CaptureError, Err: streamErr}
		}
		return domain.RecognitionResult{Outcome: domain.CaptureEmpty}
	}

	if r.rules == nil {
		return domain.RecognitionResult{Outcome: domain.CaptureTranscript, Text: raw}
	}
	transformed, err := r.rules.Apply(raw, rec.language)
	if err != nil {
		return domain.RecognitionResult{Outcome: domain.CaptureError, Err: fmt.Errorf("%w: %v", domain.ErrRulesFailure, err)}
	}
	return domain.RecognitionResult{Outcome: domain.CaptureTranscript, Text: transformed}
}

// recognition is one in-flight capture. Result yields exactly one value.
type recognition struct {
	ctx      context.Context
	cancel   context.CancelFunc
	audio    ports.AudioSession
	stream   ports.StreamingSession
	language string

	utterance   *utterance
	eventsDone  chan struct{}
	audioDone   chan struct{}
	speechFinal chan struct{}
	stopCh      chan struct{}
	abortCh     chan struct{}
	result      chan domain.RecognitionResult

	finalOnce sync.Once
	stopOnce  sync.Once
	abortOnce sync.Once

	mu      sync.Mutex
	pumpErr error
}

func (r *recognition) Result() <-chan domain.RecognitionResult {
	return r.result
}

func (r *recognition) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

func (r *recognition) Abort() {
	r.abortOnce.Do(func() { close(r.abortCh) })
}

func (r *recognition) aborted() bool {
	select {
	case <-r.abortCh:
		return true
	default:
		return false
	}
}

func (r *recognition) markSpeechFinal() {
	r.finalOnce.Do(func() { close(r.speechFinal) })
}

func (r *recognition) recordPumpError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pumpErr == nil {
		r.pumpErr = err
	}
}

func (r *recognition) pumpError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pumpErr
}

func (r *recognition) teardown() {
	r.cancel()
	_ = r.audio.Stop()
	_ = r.stream.Close()
	<-r.eventsDone
	<-r.audioDone
}

func (r *recognition) deliver(result domain.RecognitionResult) {
	r.result <- result
	close(r.result)
}
