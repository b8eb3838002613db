package bootstrap

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"saathi/internal/domain"
	"saathi/internal/language"
	"saathi/internal/store"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("DEEPGRAM_API_KEY", "test-key")
	t.Setenv("SAATHI_RULES_FILE", "")
	t.Setenv("SAATHI_LANGUAGES_FILE", "")
	t.Setenv("SAATHI_PREFERENCES_FILE", filepath.Join(home, "prefs", "preferences.yaml"))
	t.Setenv("SAATHI_AUDIO_BACKEND", "ffmpeg")
	t.Setenv("SAATHI_FFPLAY_COMMAND", "true")
	t.Setenv("SAATHI_EXCHANGE_MODE", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("SAATHI_FAQ_FILE", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("SAATHI_METRICS_ADDR", "")
	return home
}

func TestBuildSuccess(t *testing.T) {
	setupEnv(t)

	sink := &noopEventSink{}
	services, err := BuildWithOutput(context.Background(), sink, io.Discard)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer services.Close()

	if services.Session == nil {
		t.Fatalf("expected session")
	}
	if services.Metrics == nil {
		t.Fatalf("expected metrics")
	}
	if !services.Session.Capabilities().Remote {
		t.Fatalf("expected http responder to be wired")
	}
	state := services.Session.State()
	if state.Phase != domain.PhaseIdle || state.ActiveLanguage != "en-US" {
		t.Fatalf("unexpected initial state: %+v", state)
	}
	if len(services.Session.Turns()) != 1 {
		t.Fatalf("expected opening notice, got %d turns", len(services.Session.Turns()))
	}
	if sink.states == 0 {
		t.Fatalf("expected initial state event")
	}
}

func TestBuildFailsOnInvalidRules(t *testing.T) {
	home := setupEnv(t)
	rules := filepath.Join(home, "bad.rules")
	if err := os.WriteFile(rules, []byte("not a valid rule\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	t.Setenv("SAATHI_RULES_FILE", rules)

	_, err := BuildWithOutput(context.Background(), &noopEventSink{}, io.Discard)
	if err == nil {
		t.Fatalf("expected build error due to invalid rules")
	}
}

func TestBuildFailsOnInvalidLanguageCatalog(t *testing.T) {
	home := setupEnv(t)
	catalog := filepath.Join(home, "languages.yaml")
	if err := os.WriteFile(catalog, []byte("default: [\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	t.Setenv("SAATHI_LANGUAGES_FILE", catalog)

	if _, err := BuildWithOutput(context.Background(), &noopEventSink{}, io.Discard); err == nil {
		t.Fatalf("expected build error due to invalid catalog")
	}
}

func TestBuildRejectsUnknownExchangeMode(t *testing.T) {
	setupEnv(t)
	t.Setenv("SAATHI_EXCHANGE_MODE", "smoke-signals")

	if _, err := BuildWithOutput(context.Background(), &noopEventSink{}, io.Discard); err == nil {
		t.Fatalf("expected build error for unknown exchange mode")
	}
}

func TestBuildGeminiWithoutKeyDisablesReplies(t *testing.T) {
	setupEnv(t)
	t.Setenv("SAATHI_EXCHANGE_MODE", "gemini")

	services, err := BuildWithOutput(context.Background(), &noopEventSink{}, io.Discard)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer services.Close()

	if services.Session.Capabilities().Remote {
		t.Fatalf("expected no responder without gemini credentials")
	}
}

func TestBuildWebsocketMode(t *testing.T) {
	setupEnv(t)
	t.Setenv("SAATHI_EXCHANGE_MODE", "websocket")
	t.Setenv("SAATHI_EXCHANGE_URL", "http://127.0.0.1:9/ws")

	services, err := BuildWithOutput(context.Background(), &noopEventSink{}, io.Discard)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer services.Close()

	if !services.Session.Capabilities().Remote {
		t.Fatalf("expected websocket responder to be wired")
	}
}

func TestFailedBuildReleasesAcquiredResources(t *testing.T) {
	t.Parallel()

	released := 0
	services := Services{
		Logger: zerolog.Nop(),
		closers: []func() error{
			func() error { released++; return nil },
			func() error { released++; return errors.New("device busy") },
		},
	}
	buildErr := errors.New("exchange misconfigured")
	got, err := services.abandon(buildErr)
	if !errors.Is(err, buildErr) {
		t.Fatalf("expected build error, got %v", err)
	}
	if released != 2 {
		t.Fatalf("expected every closer to run, got %d", released)
	}
	if got.Session != nil || len(got.closers) != 0 {
		t.Fatalf("expected empty services, got %+v", got)
	}
}

func TestPreferenceStoreSelection(t *testing.T) {
	t.Parallel()

	if _, ok := preferenceStore("").(*store.MemoryStore); !ok {
		t.Fatalf("expected memory store without a path")
	}
	if _, ok := preferenceStore(filepath.Join(t.TempDir(), "prefs.yaml")).(*store.FileStore); !ok {
		t.Fatalf("expected file store for a path")
	}
}

func TestBuildWithoutPreferenceFile(t *testing.T) {
	home := setupEnv(t)
	t.Setenv("SAATHI_PREFERENCES_FILE", "off")

	services, err := BuildWithOutput(context.Background(), &noopEventSink{}, io.Discard)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer services.Close()

	if err := services.Session.SelectLanguage("hi-IN"); err != nil {
		t.Fatalf("select language failed: %v", err)
	}
	if got := services.Session.State().ActiveLanguage; got != "hi-IN" {
		t.Fatalf("expected hi-IN active, got %q", got)
	}
	for _, path := range []string{
		filepath.Join(home, "prefs", "preferences.yaml"),
		filepath.Join(home, ".config", "saathi", "preferences.yaml"),
	} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Fatalf("expected no preference file at %s, got %v", path, err)
		}
	}
}

func TestLanguageLabel(t *testing.T) {
	t.Parallel()

	label := languageLabel(language.DefaultCatalog())
	if got := label("hi-IN"); got != "Hindi" {
		t.Fatalf("unexpected label: %q", got)
	}
	if got := label("xx-YY"); got != "xx-YY" {
		t.Fatalf("expected code fallback, got %q", got)
	}
}

type noopEventSink struct {
	states int
}

func (s *noopEventSink) SessionStateChanged(_ domain.SessionState, _ domain.SessionStateReason) {
	s.states++
}

func (s *noopEventSink) TurnAppended(_ domain.Turn) {}

func (s *noopEventSink) TurnReplaced(_ domain.Turn) {}

func (s *noopEventSink) LanguageChanged(_ domain.SupportedLanguage) {}

func (s *noopEventSink) SessionError(_ domain.ErrorCode, _ string) {}
