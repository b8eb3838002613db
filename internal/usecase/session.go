// Package usecase holds the voice session orchestrator: the state machine that
// sequences capture, exchange, output and language changes.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"saathi/internal/capture"
	"saathi/internal/conversation"
	"saathi/internal/domain"
	"saathi/internal/language"
	"saathi/internal/metrics"
	"saathi/internal/ports"
)

const (
	outputSpeech = "speech"
	outputAudio  = "audio"
	outputNotice = "notice"
)

// Output is the speech output controller the session drives.
type Output interface {
	CanSpeak() bool
	CanPlay() bool
	SpeakText(ctx context.Context, text string, lang string) error
	PlayAudio(ctx context.Context, resource *domain.AudioResource, lang string) error
	Close()
}

// Config controls session timing.
type Config struct {
	// SettleDelay is waited after an aborted capture has fully stopped and
	// before a capture is restarted under a new language.
	SettleDelay     time.Duration
	ExchangeTimeout time.Duration
}

// Dependencies are the collaborators of a Session. Recognizer and Exchange may
// be nil, which disables capture and remote replies respectively.
type Dependencies struct {
	Recognizer ports.SpeechRecognizer
	Output     Output
	Exchange   ports.ExchangeClient
	Language   *language.Session
	Log        *conversation.Log
	Events     ports.EventSink
	Metrics    *metrics.Metrics
	Logger     zerolog.Logger
}

// Session is the only component the shell talks to. All state is guarded by
// mu, which is never held across blocking calls; asynchronous work reports
// back through the same transitions external callers use, and stale reports
// are discarded by capture sequence, exchange sequence or output token.
type Session struct {
	capture  *capture.Controller
	output   Output
	exchange ports.ExchangeClient
	language *language.Session
	log      *conversation.Log
	events   ports.EventSink
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	cfg      Config
	caps     domain.VoiceCapability

	ctx    context.Context
	cancel context.CancelFunc

	// opMu serializes capture starts against capture events.
	opMu sync.Mutex

	mu            sync.Mutex
	closed        bool
	phase         domain.Phase
	pendingTurnID string
	lastError     string

	captureSeq    uint64
	starting      bool
	startDone     chan struct{}
	stopRequested bool

	exchangeSeq    uint64
	exchangeCancel context.CancelFunc
	exchangeLang   string

	outputToken    uint64
	outputCancel   context.CancelFunc
	outputDone     chan struct{}
	outputActive   bool
	outputDriving  bool
	outputsRunning int

	restart *restartPlan

	// emitMu keeps events in transition order across goroutines.
	emitMu sync.Mutex
	outbox []func(ports.EventSink)
}

// restartPlan re-arms capture once the language notice that interrupted it
// has finished.
type restartPlan struct {
	token     uint64
	abortDone <-chan struct{}
}

// NewSession builds a session, resolves voice capabilities once and appends
// the opening notice.
func NewSession(deps Dependencies, cfg Config) (*Session, error) {
	if deps.Language == nil {
		return nil, errors.New("language session is required")
	}
	if deps.Log == nil {
		deps.Log = conversation.NewLog()
	}
	if deps.Events == nil {
		deps.Events = nopEventSink{}
	}
	if deps.Output == nil {
		deps.Output = silentOutput{}
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		output:   deps.Output,
		exchange: deps.Exchange,
		language: deps.Language,
		log:      deps.Log,
		events:   deps.Events,
		metrics:  deps.Metrics,
		logger:   deps.Logger.With().Str("component", "session").Logger(),
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		phase:    domain.PhaseIdle,
	}
	s.capture = capture.NewController(deps.Recognizer, deps.Language.Active(), s.handleCapture, deps.Logger)
	s.caps = domain.VoiceCapability{
		Capture:   s.capture.Available(),
		Synthesis: s.output.CanSpeak(),
		Playback:  s.output.CanPlay(),
		Remote:    deps.Exchange != nil,
	}

	s.mu.Lock()
	lang := s.language.Active()
	ui := s.language.Strings()
	if s.caps.Unavailable() {
		s.appendLocked(domain.RoleSystemNotice, ui.VoiceUnavailable, lang)
		s.queue(func(e ports.EventSink) {
			e.SessionError(domain.ErrorCodeVoiceUnavailable, "no capture, output or responder available")
		})
	} else {
		s.appendLocked(domain.RoleSystemNotice, ui.Greeting, lang)
	}
	s.setPhaseLocked(domain.PhaseIdle, domain.SessionReasonReady)
	s.unlockAndFlush()

	s.logger.Info().
		Bool("capture", s.caps.Capture).
		Bool("synthesis", s.caps.Synthesis).
		Bool("playback", s.caps.Playback).
		Bool("remote", s.caps.Remote).
		Str("language", lang).
		Msg("session ready")
	return s, nil
}

// BeginCapture starts listening. It requires the Idle phase and a capture
// capability.
func (s *Session) BeginCapture() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.beginCapture(domain.SessionReasonListening, true)
}

func (s *Session) beginCapture(reason domain.SessionStateReason, manual bool) error {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return domain.ErrSessionClosed
	case !s.caps.Capture:
		s.mu.Unlock()
		return domain.ErrNotSupported
	case s.phase != domain.PhaseIdle || s.outputsRunning > 0:
		s.mu.Unlock()
		return domain.ErrBusy
	}
	if manual {
		s.restart = nil
	}
	lang := s.language.Active()
	s.captureSeq = 0
	s.starting = true
	startDone := make(chan struct{})
	s.startDone = startDone
	s.stopRequested = false
	s.lastError = ""
	s.setPhaseLocked(domain.PhaseListening, reason)
	s.unlockAndFlush()

	err := s.capture.Bind(lang)
	var seq uint64
	if err == nil {
		seq, err = s.capture.Start(s.ctx)
	}

	s.mu.Lock()
	s.starting = false
	s.startDone = nil
	close(startDone)
	if err != nil {
		if s.phase == domain.PhaseListening && s.captureSeq == 0 && !s.closed {
			s.setPhaseLocked(domain.PhaseIdle, domain.SessionReasonCaptureFailed)
		}
		s.unlockAndFlush()
		if errors.Is(err, domain.ErrAlreadyActive) {
			return domain.ErrBusy
		}
		return err
	}
	if s.closed || s.phase != domain.PhaseListening {
		// A language change or Close took over while the capture was starting.
		s.mu.Unlock()
		s.capture.Abort()
		return nil
	}
	s.captureSeq = seq
	stop := s.stopRequested
	s.mu.Unlock()

	if stop {
		s.capture.Stop()
	}
	s.logger.Debug().Uint64("seq", seq).Str("language", lang).Str("reason", string(reason)).Msg("capture began")
	return nil
}

// EndCapture asks the active capture to finish. It is a no-op unless listening.
func (s *Session) EndCapture() {
	s.mu.Lock()
	if s.closed || s.phase != domain.PhaseListening {
		s.mu.Unlock()
		return
	}
	if s.starting {
		s.stopRequested = true
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.capture.Stop()
}

func (s *Session) handleCapture(event capture.Event) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.closed || event.Seq != s.captureSeq || s.phase != domain.PhaseListening {
		s.mu.Unlock()
		s.logger.Debug().Uint64("seq", event.Seq).Msg("discarding stale capture result")
		return
	}
	s.captureSeq = 0
	s.metrics.ObserveCapture(string(event.Result.Outcome))

	switch event.Result.Outcome {
	case domain.CaptureTranscript:
		s.acceptTranscriptLocked(event.Result.Text)
	case domain.CaptureError:
		detail := "capture failed"
		if event.Result.Err != nil {
			detail = event.Result.Err.Error()
		}
		code := domain.ErrorCodeTranscription
		if errors.Is(event.Result.Err, domain.ErrRulesFailure) {
			code = domain.ErrorCodeRules
		}
		s.lastError = detail
		s.queue(func(e ports.EventSink) { e.SessionError(code, detail) })
		s.setPhaseLocked(domain.PhaseIdle, domain.SessionReasonCaptureFailed)
	default:
		s.setPhaseLocked(domain.PhaseIdle, domain.SessionReasonNoTranscript)
	}
	s.unlockAndFlush()
}

// OnTranscript accepts a transcript as if the capture had produced it. Blank
// text is ignored; a listening session returns to Idle.
func (s *Session) OnTranscript(text string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrSessionClosed
	}
	if s.phase == domain.PhaseExchanging || s.phase == domain.PhaseSpeaking {
		s.mu.Unlock()
		return domain.ErrBusy
	}
	listening := s.phase == domain.PhaseListening
	if listening {
		s.captureSeq = 0
	}
	s.acceptTranscriptLocked(text)
	s.unlockAndFlush()

	if listening {
		s.capture.Abort()
	}
	return nil
}

func (s *Session) acceptTranscriptLocked(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		if s.phase == domain.PhaseListening {
			s.setPhaseLocked(domain.PhaseIdle, domain.SessionReasonNoTranscript)
		}
		return
	}

	lang := s.language.Active()
	s.appendLocked(domain.RoleUser, text, lang)
	pending := s.log.AppendPending(domain.RoleAssistant, s.language.StringsFor(lang).Loading, lang)
	s.queue(func(e ports.EventSink) { e.TurnAppended(pending) })
	s.pendingTurnID = pending.ID
	s.exchangeLang = lang
	s.setPhaseLocked(domain.PhaseExchanging, domain.SessionReasonExchanging)

	if s.exchange == nil {
		s.failExchangeLocked(fmt.Errorf("%w: no responder configured", domain.ErrExchangeFailure))
		return
	}

	s.exchangeSeq++
	seq := s.exchangeSeq
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if s.cfg.ExchangeTimeout > 0 {
		ctx, cancel = context.WithTimeout(s.ctx, s.cfg.ExchangeTimeout)
	} else {
		ctx, cancel = context.WithCancel(s.ctx)
	}
	s.exchangeCancel = cancel
	req := domain.ExchangeRequest{Transcript: text, Language: lang}
	go s.runExchange(ctx, seq, req)
}

func (s *Session) runExchange(ctx context.Context, seq uint64, req domain.ExchangeRequest) {
	started := time.Now()
	result, err := s.exchange.Exchange(ctx, req)
	elapsed := time.Since(started)

	s.mu.Lock()
	if s.closed || seq != s.exchangeSeq || s.phase != domain.PhaseExchanging {
		s.mu.Unlock()
		s.metrics.ObserveExchange("stale", elapsed)
		return
	}
	s.exchangeSeq++
	s.stopExchangeLocked()
	if err != nil {
		s.metrics.ObserveExchange("failure", elapsed)
		s.logger.Warn().Err(err).Dur("elapsed", elapsed).Msg("exchange failed")
		s.failExchangeLocked(err)
	} else {
		s.metrics.ObserveExchange("success", elapsed)
		s.applyResultLocked(result)
	}
	s.unlockAndFlush()
}

// OnExchangeResult finalizes the pending turn with the reply and starts output.
// It is ignored unless an exchange is pending.
func (s *Session) OnExchangeResult(result domain.ExchangeResult) {
	s.mu.Lock()
	if s.closed || s.phase != domain.PhaseExchanging {
		s.mu.Unlock()
		return
	}
	s.exchangeSeq++
	s.stopExchangeLocked()
	s.applyResultLocked(result)
	s.unlockAndFlush()
}

// OnExchangeFailure replaces the pending turn with a localized error notice and
// returns to Idle.
func (s *Session) OnExchangeFailure(err error) {
	s.mu.Lock()
	if s.closed || s.phase != domain.PhaseExchanging {
		s.mu.Unlock()
		return
	}
	s.exchangeSeq++
	s.stopExchangeLocked()
	if err == nil {
		err = domain.ErrExchangeFailure
	}
	s.failExchangeLocked(err)
	s.unlockAndFlush()
}

func (s *Session) stopExchangeLocked() {
	if s.exchangeCancel != nil {
		s.exchangeCancel()
		s.exchangeCancel = nil
	}
}

func (s *Session) applyResultLocked(result domain.ExchangeResult) {
	lang := s.exchangeLang
	text := strings.TrimSpace(result.Text)
	if text == "" {
		text = s.language.StringsFor(lang).Acknowledgment
	}
	s.replacePendingLocked(domain.RoleAssistant, text, lang)

	switch {
	case !result.Audio.Empty() && s.output.CanPlay():
		audio := result.Audio
		s.startOutputLocked(outputAudio, true, nil, func(ctx context.Context) error {
			err := s.output.PlayAudio(ctx, audio, lang)
			if errors.Is(err, domain.ErrNotSupported) && s.output.CanSpeak() {
				return s.output.SpeakText(ctx, text, lang)
			}
			return err
		})
	case s.output.CanSpeak():
		s.startOutputLocked(outputSpeech, true, nil, func(ctx context.Context) error {
			return s.output.SpeakText(ctx, text, lang)
		})
	default:
		s.settleIdleLocked(domain.SessionReasonReady)
		return
	}
	s.setPhaseLocked(domain.PhaseSpeaking, domain.SessionReasonSpeaking)
}

func (s *Session) failExchangeLocked(err error) {
	lang := s.exchangeLang
	s.replacePendingLocked(domain.RoleSystemNotice, s.language.StringsFor(lang).ExchangeError, lang)
	detail := err.Error()
	s.lastError = detail
	s.queue(func(e ports.EventSink) { e.SessionError(domain.ErrorCodeExchange, detail) })
	s.settleIdleLocked(domain.SessionReasonExchangeFailed)
}

func (s *Session) replacePendingLocked(role domain.Role, text string, lang string) {
	id := s.pendingTurnID
	s.pendingTurnID = ""
	turn, err := s.log.Replace(id, role, text, lang)
	if err != nil {
		s.logger.Warn().Err(err).Str("turn", id).Msg("pending turn could not be replaced")
		s.appendLocked(role, text, lang)
		return
	}
	s.queue(func(e ports.EventSink) { e.TurnReplaced(turn) })
}

// settleIdleLocked returns to Idle unless an output is still audible, in which
// case that output now owns the Speaking phase.
func (s *Session) settleIdleLocked(reason domain.SessionStateReason) {
	if s.outputActive {
		s.outputDriving = true
		s.setPhaseLocked(domain.PhaseSpeaking, domain.SessionReasonSpeaking)
		return
	}
	s.setPhaseLocked(domain.PhaseIdle, reason)
}

// OnOutputComplete ends the Speaking phase.
func (s *Session) OnOutputComplete() {
	s.endOutputExternally(nil)
}

// OnOutputFailure ends the Speaking phase and records a non-fatal playback
// error.
func (s *Session) OnOutputFailure(err error) {
	if err == nil {
		err = domain.ErrPlaybackFailure
	}
	s.endOutputExternally(err)
}

func (s *Session) endOutputExternally(err error) {
	s.mu.Lock()
	if s.closed || s.phase != domain.PhaseSpeaking {
		s.mu.Unlock()
		return
	}
	token := s.outputToken
	s.outputToken++
	if s.outputCancel != nil {
		s.outputCancel()
		s.outputCancel = nil
	}
	s.outputActive = false
	s.endOutputLocked(token, err)
	s.unlockAndFlush()
}

// startOutputLocked supersedes any output in flight and plays the next one once
// the previous has wound down and after, when given, is closed.
func (s *Session) startOutputLocked(kind string, driving bool, after <-chan struct{}, play func(context.Context) error) uint64 {
	if s.outputCancel != nil {
		s.outputCancel()
	}
	ctx, cancel := context.WithCancel(s.ctx)
	previous := s.outputDone
	done := make(chan struct{})

	s.outputToken++
	token := s.outputToken
	s.outputCancel = cancel
	s.outputDone = done
	s.outputActive = true
	s.outputDriving = driving
	s.outputsRunning++

	go func() {
		defer close(done)
		defer cancel()
		if previous != nil {
			<-previous
		}
		if after != nil {
			// Held even when superseded so later outputs stay behind the abort.
			<-after
		}
		err := ctx.Err()
		if err == nil {
			err = play(ctx)
		}
		s.finishOutput(token, kind, err)
	}()
	return token
}

func (s *Session) finishOutput(token uint64, kind string, err error) {
	s.mu.Lock()
	s.outputsRunning--
	if s.closed || token != s.outputToken {
		s.mu.Unlock()
		s.metrics.ObservePlayback(kind, "superseded")
		return
	}
	s.outputActive = false
	s.outputCancel = nil
	s.metrics.ObservePlayback(kind, playbackOutcome(err))

	if !s.outputDriving || s.phase != domain.PhaseSpeaking {
		s.unlockAndFlush()
		return
	}
	s.endOutputLocked(token, err)
	s.unlockAndFlush()
}

func (s *Session) endOutputLocked(token uint64, err error) {
	switch {
	case err == nil, errors.Is(err, domain.ErrNotSupported):
		s.setPhaseLocked(domain.PhaseIdle, domain.SessionReasonPlaybackFinished)
	default:
		detail := err.Error()
		s.lastError = detail
		s.queue(func(e ports.EventSink) { e.SessionError(domain.ErrorCodePlayback, detail) })
		s.setPhaseLocked(domain.PhaseIdle, domain.SessionReasonPlaybackFailed)
		s.logger.Debug().Err(err).Bool("blocked", errors.Is(err, domain.ErrAutoplayBlocked)).Msg("output failed")
	}

	if plan := s.restart; plan != nil && plan.token == token {
		go s.restartAfter(plan)
	}
}

func playbackOutcome(err error) string {
	switch {
	case err == nil:
		return "completed"
	case errors.Is(err, domain.ErrAutoplayBlocked):
		return "blocked"
	case errors.Is(err, domain.ErrNotSupported):
		return "unsupported"
	case errors.Is(err, domain.ErrSuperseded), errors.Is(err, context.Canceled):
		return "superseded"
	default:
		return "failed"
	}
}

// SelectLanguage validates, activates and persists a language, appends the
// localized notice and speaks the confirmation. It is accepted in every phase.
// A capture in progress is aborted and restarted under the new language once
// the confirmation has finished.
func (s *Session) SelectLanguage(code string) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return domain.ErrSessionClosed
	}

	lang, err := s.language.Select(code)
	if errors.Is(err, domain.ErrUnsupportedLanguage) {
		return err
	}
	persistErr := err

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrSessionClosed
	}
	s.metrics.ObserveLanguage(lang.Code)
	s.queue(func(e ports.EventSink) { e.LanguageChanged(lang) })
	if persistErr != nil {
		detail := persistErr.Error()
		s.logger.Warn().Err(persistErr).Str("language", lang.Code).Msg("language preference not persisted")
		s.queue(func(e ports.EventSink) { e.SessionError(domain.ErrorCodeLanguage, detail) })
	}

	ui := s.language.StringsFor(lang.Code)
	s.appendLocked(domain.RoleSystemNotice, language.FormatNotice(ui.LanguageNotice, lang), lang.Code)
	confirmation := ui.LanguageConfirmed
	speak := func(ctx context.Context) error {
		return s.output.SpeakText(ctx, confirmation, lang.Code)
	}
	canSpeak := s.output.CanSpeak()

	var abort func()
	switch s.phase {
	case domain.PhaseListening:
		s.captureSeq = 0
		s.stopRequested = false
		startDone := s.startDone
		abortDone := make(chan struct{})
		abort = func() {
			go func() {
				if startDone != nil {
					<-startDone
				}
				<-s.capture.Abort()
				close(abortDone)
			}()
		}
		plan := &restartPlan{abortDone: abortDone}
		s.restart = plan
		if canSpeak {
			plan.token = s.startOutputLocked(outputNotice, true, abortDone, speak)
			s.setPhaseLocked(domain.PhaseSpeaking, domain.SessionReasonLanguageNotice)
		} else {
			s.setPhaseLocked(domain.PhaseIdle, domain.SessionReasonCaptureAborted)
			go s.restartAfter(plan)
		}
	case domain.PhaseExchanging:
		if canSpeak {
			s.startOutputLocked(outputNotice, false, nil, speak)
		}
		s.setPhaseLocked(domain.PhaseExchanging, domain.SessionReasonLanguageNotice)
	default:
		if canSpeak {
			token := s.startOutputLocked(outputNotice, true, nil, speak)
			if s.restart != nil {
				s.restart.token = token
			}
			s.setPhaseLocked(domain.PhaseSpeaking, domain.SessionReasonLanguageNotice)
		} else {
			s.setPhaseLocked(s.phase, domain.SessionReasonLanguageNotice)
		}
	}
	s.unlockAndFlush()

	if abort != nil {
		abort()
	}
	s.logger.Info().Str("language", lang.Code).Msg("language selected")
	return nil
}

func (s *Session) restartAfter(plan *restartPlan) {
	select {
	case <-plan.abortDone:
	case <-s.ctx.Done():
		return
	}
	if s.cfg.SettleDelay > 0 {
		timer := time.NewTimer(s.cfg.SettleDelay)
		select {
		case <-timer.C:
		case <-s.ctx.Done():
			timer.Stop()
			return
		}
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.closed || s.restart != plan || s.phase != domain.PhaseIdle {
		s.mu.Unlock()
		return
	}
	s.restart = nil
	s.mu.Unlock()

	if err := s.beginCapture(domain.SessionReasonCaptureRestarted, false); err != nil {
		s.logger.Debug().Err(err).Msg("capture restart skipped")
	}
}

// Close tears down both controllers and cancels in-flight work. Later
// operations return domain.ErrSessionClosed.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.stopExchangeLocked()
	if s.pendingTurnID != "" {
		lang := s.exchangeLang
		s.replacePendingLocked(domain.RoleSystemNotice, s.language.StringsFor(lang).ExchangeError, lang)
	}
	s.restart = nil
	s.captureSeq = 0
	s.setPhaseLocked(domain.PhaseIdle, domain.SessionReasonClosed)
	s.closed = true
	s.unlockAndFlush()

	s.cancel()
	s.capture.Close()
	s.output.Close()
	s.logger.Info().Msg("session closed")
}

// State returns a snapshot of the session state.
func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Turns returns the conversation so far.
func (s *Session) Turns() []domain.Turn {
	return s.log.Turns()
}

// Languages returns the supported-language catalog.
func (s *Session) Languages() []domain.SupportedLanguage {
	return s.language.Languages()
}

// NeedsLanguageSelection reports whether no language preference was stored.
func (s *Session) NeedsLanguageSelection() bool {
	return s.language.NeedsSelection()
}

// Capabilities returns the capabilities resolved at construction.
func (s *Session) Capabilities() domain.VoiceCapability {
	return s.caps
}

// Strings returns the UI strings for the active language.
func (s *Session) Strings() domain.UIStrings {
	return s.language.Strings()
}

func (s *Session) stateLocked() domain.SessionState {
	return domain.SessionState{
		Phase:          s.phase,
		ActiveLanguage: s.language.Active(),
		PendingTurnID:  s.pendingTurnID,
		LastError:      s.lastError,
	}
}

func (s *Session) setPhaseLocked(phase domain.Phase, reason domain.SessionStateReason) {
	s.metrics.ObservePhase(string(s.phase), string(phase))
	s.phase = phase
	state := s.stateLocked()
	s.queue(func(e ports.EventSink) { e.SessionStateChanged(state, reason) })
}

func (s *Session) appendLocked(role domain.Role, text string, lang string) {
	turn := s.log.Append(role, text, lang)
	s.queue(func(e ports.EventSink) { e.TurnAppended(turn) })
}

func (s *Session) queue(emit func(ports.EventSink)) {
	s.outbox = append(s.outbox, emit)
}

// unlockAndFlush releases mu and delivers queued events. emitMu is taken
// before mu is released so concurrent transitions emit in order.
func (s *Session) unlockAndFlush() {
	pending := s.outbox
	s.outbox = nil
	s.emitMu.Lock()
	s.mu.Unlock()
	defer s.emitMu.Unlock()
	for _, emit := range pending {
		emit(s.events)
	}
}

type nopEventSink struct{}

func (nopEventSink) SessionStateChanged(domain.SessionState, domain.SessionStateReason) {}

func (nopEventSink) TurnAppended(domain.Turn) {}

func (nopEventSink) TurnReplaced(domain.Turn) {}

func (nopEventSink) LanguageChanged(domain.SupportedLanguage) {}

func (nopEventSink) SessionError(domain.ErrorCode, string) {}

type silentOutput struct{}

func (silentOutput) CanSpeak() bool { return false }

func (silentOutput) CanPlay() bool { return false }

func (silentOutput) SpeakText(context.Context, string, string) error { return domain.ErrNotSupported }

func (silentOutput) PlayAudio(context.Context, *domain.AudioResource, string) error {
	return domain.ErrNotSupported
}

func (silentOutput) Close() {}
