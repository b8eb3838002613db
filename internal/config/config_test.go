package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadUsesConfigDirDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("SAATHI_RULES_FILE", "")
	t.Setenv("SAATHI_LANGUAGES_FILE", "")
	t.Setenv("SAATHI_PREFERENCES_FILE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	configDir := filepath.Join(home, ".config", "saathi")
	if cfg.Rules.Path != filepath.Join(configDir, "substitutions.rules") {
		t.Fatalf("unexpected rules path: %q", cfg.Rules.Path)
	}
	if cfg.Preferences.Path != filepath.Join(configDir, "preferences.yaml") {
		t.Fatalf("unexpected preferences path: %q", cfg.Preferences.Path)
	}
	if cfg.Languages.Path != "" {
		t.Fatalf("expected built-in catalog without a languages file, got %q", cfg.Languages.Path)
	}

	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	languages := filepath.Join(configDir, "languages.yaml")
	if err := os.WriteFile(languages, []byte("default: en-US\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	cfg2, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg2.Languages.Path != languages {
		t.Fatalf("expected languages file to be picked up, got %q", cfg2.Languages.Path)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SAATHI_EXCHANGE_MODE", "")
	t.Setenv("SAATHI_AUDIO_BACKEND", "")
	t.Setenv("SAATHI_METRICS_ADDR", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Exchange.Mode != ExchangeModeHTTP || cfg.Exchange.Timeout != 30*time.Second {
		t.Fatalf("unexpected exchange defaults: %+v", cfg.Exchange)
	}
	if cfg.Audio.Backend != AudioBackendFFMPEG {
		t.Fatalf("expected ffmpeg backend, got %q", cfg.Audio.Backend)
	}
	if cfg.Capture.SettleDelay != 300*time.Millisecond || cfg.Capture.MaxDuration != 15*time.Second {
		t.Fatalf("unexpected capture defaults: %+v", cfg.Capture)
	}
	if cfg.Output.SynthCommand != "espeak-ng" || cfg.Output.PlayerCommand != "ffplay" {
		t.Fatalf("unexpected output defaults: %+v", cfg.Output)
	}
	if cfg.Metrics.Addr != "" {
		t.Fatalf("expected metrics disabled by default")
	}
}

func TestLoadExchangeEncodingFollowsEndpoint(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SAATHI_EXCHANGE_URL", "")
	t.Setenv("SAATHI_EXCHANGE_ENCODING", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Exchange.Endpoint != defaultExchangeURL || cfg.Exchange.Encoding != "form" {
		t.Fatalf("expected form encoding for the default tts endpoint, got %+v", cfg.Exchange)
	}

	t.Setenv("SAATHI_EXCHANGE_URL", "https://responder.example/api/reply")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Exchange.Encoding != "json" {
		t.Fatalf("expected json encoding for a custom endpoint, got %q", cfg.Exchange.Encoding)
	}

	t.Setenv("SAATHI_EXCHANGE_URL", "http://127.0.0.1:8000/tts")
	t.Setenv("SAATHI_EXCHANGE_ENCODING", "JSON")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Exchange.Encoding != "json" {
		t.Fatalf("expected explicit encoding to win, got %q", cfg.Exchange.Encoding)
	}
}

func TestLoadFAQPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("SAATHI_FAQ_FILE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Gemini.FAQPath != "" {
		t.Fatalf("expected no faq without a file, got %q", cfg.Gemini.FAQPath)
	}

	faq := filepath.Join(home, ".config", "saathi", "faq.json")
	if err := os.MkdirAll(filepath.Dir(faq), 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(faq, []byte("{}"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	cfg, err = Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Gemini.FAQPath != faq {
		t.Fatalf("expected config dir faq, got %q", cfg.Gemini.FAQPath)
	}
}

func TestLoadPreferencesOff(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SAATHI_PREFERENCES_FILE", "off")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Preferences.Path != "" {
		t.Fatalf("expected in-memory preferences, got path %q", cfg.Preferences.Path)
	}
}

func TestLoadRespectsOverridesAndFallbacks(t *testing.T) {
	home := t.TempDir()
	rules := filepath.Join(home, "my.rules")
	if err := os.WriteFile(rules, []byte("x => y\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	t.Setenv("HOME", home)
	t.Setenv("DEEPGRAM_API_KEY", "test-key")
	t.Setenv("DEEPGRAM_API_BASE", "https://example.com/v1")
	t.Setenv("DEEPGRAM_MODEL", "nova-3")
	t.Setenv("DEEPGRAM_LANGUAGE", "en")
	t.Setenv("DEEPGRAM_SMART_FORMAT", "false")
	t.Setenv("DEEPGRAM_ENDPOINTING", "500")
	t.Setenv("SAATHI_AUDIO_BACKEND", "MALGO")
	t.Setenv("SAATHI_FFMPEG_COMMAND", "my-ffmpeg")
	t.Setenv("SAATHI_AUDIO_INPUT_FORMAT", "alsa")
	t.Setenv("SAATHI_AUDIO_INPUT_DEVICE", "mic0")
	t.Setenv("SAATHI_SAMPLE_RATE", "22050")
	t.Setenv("SAATHI_CHANNELS", "2")
	t.Setenv("SAATHI_RULES_FILE", rules)
	t.Setenv("SAATHI_RULE_ITERATION_LIMIT", "42")
	t.Setenv("SAATHI_AUDIO_CHUNK_SIZE", "512")
	t.Setenv("SAATHI_STREAMING_GRACE_MS", "25")
	t.Setenv("SAATHI_CAPTURE_SETTLE_MS", "40")
	t.Setenv("SAATHI_EXCHANGE_MODE", "websocket")
	t.Setenv("SAATHI_EXCHANGE_URL", "ws://localhost:9000/ws")
	t.Setenv("SAATHI_EXCHANGE_ENCODING", "form")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "google-key")
	t.Setenv("SAATHI_ESPEAK_WPM", "150")
	t.Setenv("SAATHI_METRICS_ADDR", "127.0.0.1:9100")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Deepgram.APIKey != "test-key" || cfg.Deepgram.APIBaseURL != "https://example.com/v1" {
		t.Fatalf("unexpected deepgram config: %+v", cfg.Deepgram)
	}
	if cfg.Deepgram.Model != "nova-3" || cfg.Deepgram.Language != "en" || cfg.Deepgram.SmartFormat || cfg.Deepgram.Endpointing != 500 {
		t.Fatalf("unexpected deepgram model/language/smart format: %+v", cfg.Deepgram)
	}
	if cfg.Audio.Backend != AudioBackendMalgo {
		t.Fatalf("expected malgo backend, got %q", cfg.Audio.Backend)
	}
	if cfg.Audio.RecorderCommand != "my-ffmpeg" || cfg.Audio.InputFormat != "alsa" || cfg.Audio.InputDevice != "mic0" {
		t.Fatalf("unexpected audio config: %+v", cfg.Audio)
	}
	if cfg.Audio.SampleRate != 22050 || cfg.Audio.Channels != 2 {
		t.Fatalf("unexpected sample/channels: %+v", cfg.Audio)
	}
	if cfg.Rules.Path != rules || cfg.Rules.IterationLimit != 42 {
		t.Fatalf("unexpected rules config: %+v", cfg.Rules)
	}
	if cfg.Capture.ChunkSize != 512 || cfg.Capture.StreamingGrace != 25*time.Millisecond || cfg.Capture.SettleDelay != 40*time.Millisecond {
		t.Fatalf("unexpected capture config: %+v", cfg.Capture)
	}
	if cfg.Exchange.Mode != ExchangeModeWebsocket || cfg.Exchange.Endpoint != "ws://localhost:9000/ws" || cfg.Exchange.Encoding != "form" {
		t.Fatalf("unexpected exchange config: %+v", cfg.Exchange)
	}
	if cfg.Gemini.APIKey != "google-key" {
		t.Fatalf("expected GOOGLE_API_KEY fallback, got %q", cfg.Gemini.APIKey)
	}
	if cfg.Output.WordsPerMinute != 150 {
		t.Fatalf("unexpected output config: %+v", cfg.Output)
	}
	if cfg.Metrics.Addr != "127.0.0.1:9100" {
		t.Fatalf("unexpected metrics addr: %q", cfg.Metrics.Addr)
	}
}

func TestLoadInvalidNumericValuesFallback(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SAATHI_SAMPLE_RATE", "bad")
	t.Setenv("SAATHI_CHANNELS", "-1")
	t.Setenv("SAATHI_RULE_ITERATION_LIMIT", "0")
	t.Setenv("SAATHI_AUDIO_CHUNK_SIZE", "5")
	t.Setenv("SAATHI_STREAMING_GRACE_MS", "bad")
	t.Setenv("DEEPGRAM_STREAMING_GRACE_MS", "")
	t.Setenv("SAATHI_CAPTURE_MAX_MS", "-5")
	t.Setenv("SAATHI_EXCHANGE_TIMEOUT_MS", "0")
	t.Setenv("DEEPGRAM_SMART_FORMAT", "not-bool")
	t.Setenv("SAATHI_AUDIO_BACKEND", "portaudio")
	t.Setenv("SAATHI_EXCHANGE_MODE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Audio.SampleRate != 16000 {
		t.Fatalf("expected default sample rate, got %d", cfg.Audio.SampleRate)
	}
	if cfg.Audio.Channels != 1 {
		t.Fatalf("expected default channels, got %d", cfg.Audio.Channels)
	}
	if cfg.Audio.Backend != AudioBackendFFMPEG {
		t.Fatalf("expected unknown backend to fall back to ffmpeg, got %q", cfg.Audio.Backend)
	}
	if cfg.Rules.IterationLimit != 30 {
		t.Fatalf("expected default iteration limit, got %d", cfg.Rules.IterationLimit)
	}
	if cfg.Capture.ChunkSize != 4096 {
		t.Fatalf("expected chunk size fallback, got %d", cfg.Capture.ChunkSize)
	}
	if cfg.Capture.StreamingGrace != 500*time.Millisecond {
		t.Fatalf("expected default grace, got %s", cfg.Capture.StreamingGrace)
	}
	if cfg.Capture.MaxDuration != 15*time.Second {
		t.Fatalf("expected default max duration, got %s", cfg.Capture.MaxDuration)
	}
	if cfg.Exchange.Timeout != 30*time.Second {
		t.Fatalf("expected default exchange timeout, got %s", cfg.Exchange.Timeout)
	}
	if !cfg.Deepgram.SmartFormat {
		t.Fatalf("expected default smart format true")
	}
}

func TestLoadRejectsUnknownExchangeMode(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SAATHI_EXCHANGE_MODE", "carrier-pigeon")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for unknown exchange mode")
	}
}
