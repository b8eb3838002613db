package main

import (
	"errors"
	"testing"

	"saathi/internal/domain"
)

func TestSessionReasonMessage(t *testing.T) {
	t.Parallel()

	cases := map[domain.SessionStateReason]string{
		domain.SessionReasonReady:            "Ready",
		domain.SessionReasonListening:        "Listening",
		domain.SessionReasonCaptureRestarted: "Listening again in the new language",
		domain.SessionReasonNoTranscript:     "Nothing was heard",
		domain.SessionReasonCaptureFailed:    "Speech recognition failed",
		domain.SessionReasonCaptureAborted:   "Listening stopped",
		domain.SessionReasonExchanging:       "Waiting for a reply",
		domain.SessionReasonExchangeFailed:   "No reply received",
		domain.SessionReasonSpeaking:         "Speaking",
		domain.SessionReasonPlaybackFinished: "Reply finished",
		domain.SessionReasonPlaybackFailed:   "Reply could not be played",
		domain.SessionReasonLanguageNotice:   "Language changed",
		domain.SessionReasonClosed:           "Session closed",
	}

	for reason, want := range cases {
		reason := reason
		want := want
		t.Run(string(reason), func(t *testing.T) {
			t.Parallel()
			if got := sessionReasonMessage(reason); got != want {
				t.Fatalf("unexpected message: %q", got)
			}
		})
	}

	if got := sessionReasonMessage("unknown"); got != "" {
		t.Fatalf("expected empty unknown reason message, got %q", got)
	}
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	cases := map[domain.ErrorCode]string{
		domain.ErrorCodeStartup:          "Startup failed",
		domain.ErrorCodeVoiceUnavailable: "Voice is not available",
		domain.ErrorCodeTranscription:    "Transcription error",
		domain.ErrorCodeRules:            "Rules processing failed",
		domain.ErrorCodeExchange:         "Reply request failed",
		domain.ErrorCodePlayback:         "Playback failed",
		domain.ErrorCodeLanguage:         "Language preference could not be saved",
	}
	for code, want := range cases {
		code := code
		want := want
		t.Run(string(code), func(t *testing.T) {
			t.Parallel()
			if got := errorMessage(code, "ignored"); got != want {
				t.Fatalf("unexpected message: %q", got)
			}
		})
	}

	if got := errorMessage("unknown", "detail"); got != "detail" {
		t.Fatalf("expected detail fallback, got %q", got)
	}
	if got := errorMessage("unknown", ""); got != "Unknown error" {
		t.Fatalf("expected unknown fallback, got %q", got)
	}
}

func TestRequireReady(t *testing.T) {
	t.Parallel()

	app := &App{}
	if err := app.requireReady(); err == nil {
		t.Fatalf("expected uninitialized error")
	}

	bootErr := errors.New("boot")
	app.bootErr = bootErr
	if err := app.requireReady(); !errors.Is(err, bootErr) {
		t.Fatalf("expected boot error, got %v", err)
	}
	if _, err := app.BeginCapture(); !errors.Is(err, bootErr) {
		t.Fatalf("expected boot error from BeginCapture, got %v", err)
	}
	if _, err := app.SelectLanguage("hi-IN"); !errors.Is(err, bootErr) {
		t.Fatalf("expected boot error from SelectLanguage, got %v", err)
	}
}

func TestGetStateWhenNotInitialized(t *testing.T) {
	t.Parallel()

	app := &App{}
	state := app.GetState()
	if state.Phase != domain.PhaseIdle || state.LastError != "" {
		t.Fatalf("unexpected state: %+v", state)
	}
	if turns := app.GetTurns(); turns != nil {
		t.Fatalf("expected no turns, got %d", len(turns))
	}

	app.bootErr = errors.New("boot")
	state = app.GetState()
	if state.Phase != domain.PhaseIdle || state.LastError != "boot" {
		t.Fatalf("unexpected boot state: %+v", state)
	}
	info := app.GetRuntimeInfo()
	if info.Error != "boot" || info.Capabilities.Capture {
		t.Fatalf("unexpected runtime info: %+v", info)
	}
}

func TestEventsWithoutContextAreDropped(t *testing.T) {
	t.Parallel()

	app := &App{}
	app.SessionStateChanged(domain.SessionState{Phase: domain.PhaseIdle}, domain.SessionReasonReady)
	app.TurnAppended(domain.Turn{ID: "t1"})
	app.TurnReplaced(domain.Turn{ID: "t1"})
	app.LanguageChanged(domain.SupportedLanguage{Code: "hi-IN", Label: "Hindi"})
	app.SessionError(domain.ErrorCodeExchange, "boom")
}
