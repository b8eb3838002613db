package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"saathi/internal/bootstrap"
	"saathi/internal/domain"
	"saathi/internal/usecase"
)

const (
	eventSession  = "saathi:session"
	eventTurn     = "saathi:turn"
	eventLanguage = "saathi:language"
	eventError    = "saathi:error"
)

// App is the Wails application root.
type App struct {
	ctx context.Context

	services      bootstrap.Services
	session       *usecase.Session
	metricsServer *http.Server
	bootErr       error
}

// RuntimeInfo is the startup snapshot the UI renders its chrome from.
type RuntimeInfo struct {
	Capabilities   domain.VoiceCapability     `json:"capabilities"`
	NeedsSelection bool                       `json:"needsSelection"`
	Languages      []domain.SupportedLanguage `json:"languages"`
	Strings        domain.UIStrings           `json:"strings"`
	State          domain.SessionState        `json:"state"`
	Exchange       string                     `json:"exchange"`
	Error          string                     `json:"error,omitempty"`
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(ctx, a)
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.services = services
	a.session = services.Session
	if addr := services.Config.Metrics.Addr; addr != "" {
		a.serveMetrics(addr)
	}
}

func (a *App) shutdown(_ context.Context) {
	if a.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			a.services.Logger.Warn().Err(err).Msg("metrics server shutdown failed")
		}
	}
	if a.session != nil {
		a.services.Close()
	}
}

func (a *App) serveMetrics(addr string) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		a.services.Logger.Warn().Err(err).Str("addr", addr).Msg("metrics endpoint disabled")
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", a.services.Metrics.Handler())
	a.metricsServer = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := a.metricsServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.services.Logger.Warn().Err(err).Msg("metrics server stopped")
		}
	}()
	a.services.Logger.Info().Str("addr", listener.Addr().String()).Msg("serving metrics")
}

// BeginCapture starts listening for one utterance.
func (a *App) BeginCapture() (domain.SessionState, error) {
	if err := a.requireReady(); err != nil {
		return domain.SessionState{}, err
	}
	if err := a.session.BeginCapture(); err != nil {
		return a.session.State(), err
	}
	return a.session.State(), nil
}

// EndCapture asks the recognizer to finish the current utterance.
func (a *App) EndCapture() (domain.SessionState, error) {
	if err := a.requireReady(); err != nil {
		return domain.SessionState{}, err
	}
	a.session.EndCapture()
	return a.session.State(), nil
}

// SubmitText sends typed text through the same path as a transcript.
func (a *App) SubmitText(text string) (domain.SessionState, error) {
	if err := a.requireReady(); err != nil {
		return domain.SessionState{}, err
	}
	if err := a.session.OnTranscript(text); err != nil {
		return a.session.State(), err
	}
	return a.session.State(), nil
}

// SelectLanguage switches the active language and persists the choice.
func (a *App) SelectLanguage(code string) (domain.SessionState, error) {
	if err := a.requireReady(); err != nil {
		return domain.SessionState{}, err
	}
	if err := a.session.SelectLanguage(code); err != nil {
		return a.session.State(), err
	}
	return a.session.State(), nil
}

// GetState returns the current session state.
func (a *App) GetState() domain.SessionState {
	if a.session == nil {
		if a.bootErr != nil {
			return domain.SessionState{Phase: domain.PhaseIdle, LastError: a.bootErr.Error()}
		}
		return domain.SessionState{Phase: domain.PhaseIdle}
	}
	return a.session.State()
}

// GetTurns returns the conversation log in display order.
func (a *App) GetTurns() []domain.Turn {
	if a.session == nil {
		return nil
	}
	return a.session.Turns()
}

// GetRuntimeInfo returns capabilities, languages and localized strings.
func (a *App) GetRuntimeInfo() RuntimeInfo {
	if a.session == nil {
		info := RuntimeInfo{State: a.GetState()}
		if a.bootErr != nil {
			info.Error = a.bootErr.Error()
		}
		return info
	}
	return RuntimeInfo{
		Capabilities:   a.session.Capabilities(),
		NeedsSelection: a.session.NeedsLanguageSelection(),
		Languages:      a.session.Languages(),
		Strings:        a.session.Strings(),
		State:          a.session.State(),
		Exchange:       a.services.Config.Exchange.Mode,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.session == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// SessionStateChanged emits session lifecycle updates to the frontend.
func (a *App) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventSession, map[string]any{
		"state":   state,
		"reason":  string(reason),
		"message": sessionReasonMessage(reason),
	})
}

// TurnAppended emits a new conversation turn.
func (a *App) TurnAppended(turn domain.Turn) {
	a.emitTurn("appended", turn)
}

// TurnReplaced emits a pending turn resolved in place.
func (a *App) TurnReplaced(turn domain.Turn) {
	a.emitTurn("replaced", turn)
}

func (a *App) emitTurn(op string, turn domain.Turn) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventTurn, map[string]any{
		"op":   op,
		"turn": turn,
	})
}

// LanguageChanged emits the newly active language.
func (a *App) LanguageChanged(language domain.SupportedLanguage) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventLanguage, map[string]any{"language": language})
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func sessionReasonMessage(reason domain.SessionStateReason) string {
	switch reason {
	case domain.SessionReasonReady:
		return "Ready"
	case domain.SessionReasonListening:
		return "Listening"
	case domain.SessionReasonCaptureRestarted:
		return "Listening again in the new language"
	case domain.SessionReasonNoTranscript:
		return "Nothing was heard"
	case domain.SessionReasonCaptureFailed:
		return "Speech recognition failed"
	case domain.SessionReasonCaptureAborted:
		return "Listening stopped"
	case domain.SessionReasonExchanging:
		return "Waiting for a reply"
	case domain.SessionReasonExchangeFailed:
		return "No reply received"
	case domain.SessionReasonSpeaking:
		return "Speaking"
	case domain.SessionReasonPlaybackFinished:
		return "Reply finished"
	case domain.SessionReasonPlaybackFailed:
		return "Reply could not be played"
	case domain.SessionReasonLanguageNotice:
		return "Language changed"
	case domain.SessionReasonClosed:
		return "Session closed"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeVoiceUnavailable:
		return "Voice is not available"
	case domain.ErrorCodeTranscription:
		return "Transcription error"
	case domain.ErrorCodeRules:
		return "Rules processing failed"
	case domain.ErrorCodeExchange:
		return "Reply request failed"
	case domain.ErrorCodePlayback:
		return "Playback failed"
	case domain.ErrorCodeLanguage:
		return "Language preference could not be saved"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
