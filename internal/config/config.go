package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	AudioBackendFFMPEG = "ffmpeg"
	AudioBackendMalgo  = "malgo"

	ExchangeModeHTTP      = "http"
	ExchangeModeWebsocket = "websocket"
	ExchangeModeGemini    = "gemini"

	defaultExchangeURL = "http://127.0.0.1:8000/tts/"
)

// Config stores runtime configuration for the voice session.
type Config struct {
	Deepgram    DeepgramConfig
	Audio       AudioConfig
	Rules       RulesConfig
	Capture     CaptureConfig
	Exchange    ExchangeConfig
	Gemini      GeminiConfig
	Output      OutputConfig
	Languages   LanguagesConfig
	Preferences PreferencesConfig
	Logging     LoggingConfig
	Metrics     MetricsConfig
}

type DeepgramConfig struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Language    string
	SmartFormat bool
	Endpointing int
}

type AudioConfig struct {
	Backend         string
	RecorderCommand string
	InputFormat     string
	InputDevice     string
	SampleRate      int
	Channels        int
}

type RulesConfig struct {
	Path           string
	IterationLimit int
}

type CaptureConfig struct {
	ChunkSize      int
	StreamingGrace time.Duration
	MaxDuration    time.Duration
	SettleDelay    time.Duration
}

type ExchangeConfig struct {
	Mode     string
	Endpoint string
	Encoding string
	Timeout  time.Duration
}

type GeminiConfig struct {
	APIKey  string
	Model   string
	FAQPath string
}

type OutputConfig struct {
	SynthCommand    string
	WordsPerMinute  int
	PlayerCommand   string
	PCMSampleRate   int
	PCMChannels     int
	ReleaseDelay    time.Duration
	PlaybackTimeout time.Duration
}

type LanguagesConfig struct {
	Path string
}

// PreferencesConfig locates the preference file. An empty Path, set with
// SAATHI_PREFERENCES_FILE=off, keeps preferences in memory for the process.
type PreferencesConfig struct {
	Path string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type MetricsConfig struct {
	Addr string
}

// Load resolves configuration from an optional .env file, environment
// variables and sensible defaults. Values already in the environment win over
// the .env file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}
	configDir := filepath.Join(home, ".config", "saathi")

	rulesPath := strings.TrimSpace(os.Getenv("SAATHI_RULES_FILE"))
	if rulesPath == "" {
		rulesPath = firstExisting(filepath.Join(configDir, "substitutions.rules"))
	}
	languagesPath := strings.TrimSpace(os.Getenv("SAATHI_LANGUAGES_FILE"))
	if languagesPath == "" {
		languagesPath = existingOrEmpty(filepath.Join(configDir, "languages.yaml"))
	}

	faqPath := strings.TrimSpace(os.Getenv("SAATHI_FAQ_FILE"))
	if faqPath == "" {
		faqPath = existingOrEmpty(filepath.Join(configDir, "faq.json"))
	}
	exchangeEndpoint := envOrDefault("SAATHI_EXCHANGE_URL", defaultExchangeURL)
	preferencesPath := envOrDefault("SAATHI_PREFERENCES_FILE", filepath.Join(configDir, "preferences.yaml"))
	if strings.EqualFold(preferencesPath, "off") {
		preferencesPath = ""
	}

	cfg := Config{
		Deepgram: DeepgramConfig{
			APIKey:      strings.TrimSpace(os.Getenv("DEEPGRAM_API_KEY")),
			APIBaseURL:  envOrDefault("DEEPGRAM_API_BASE", "https://api.deepgram.com/v1"),
			Model:       envOrDefault("DEEPGRAM_MODEL", "nova-2"),
			Language:    strings.TrimSpace(os.Getenv("DEEPGRAM_LANGUAGE")),
			SmartFormat: envOrDefaultBool("DEEPGRAM_SMART_FORMAT", true),
			Endpointing: envOrDefaultInt("DEEPGRAM_ENDPOINTING", 300),
		},
		Audio: AudioConfig{
			Backend:         strings.ToLower(envOrDefault("SAATHI_AUDIO_BACKEND", AudioBackendFFMPEG)),
			RecorderCommand: envOrDefault("SAATHI_FFMPEG_COMMAND", "ffmpeg"),
			InputFormat:     envOrDefault("SAATHI_AUDIO_INPUT_FORMAT", "pulse"),
			InputDevice: firstNonEmpty(
				os.Getenv("SAATHI_AUDIO_INPUT_DEVICE"),
				os.Getenv("DEEPGRAM_PULSE_SOURCE"),
				"default",
			),
			SampleRate: envOrDefaultInt("SAATHI_SAMPLE_RATE", 16000),
			Channels:   envOrDefaultInt("SAATHI_CHANNELS", 1),
		},
		Rules: RulesConfig{
			Path:           rulesPath,
			IterationLimit: envOrDefaultInt("SAATHI_RULE_ITERATION_LIMIT", 30),
		},
		Capture: CaptureConfig{
			ChunkSize:      envOrDefaultInt("SAATHI_AUDIO_CHUNK_SIZE", 4096),
			StreamingGrace: time.Duration(firstNonNegativeInt("SAATHI_STREAMING_GRACE_MS", "DEEPGRAM_STREAMING_GRACE_MS", 500)) * time.Millisecond,
			MaxDuration:    time.Duration(envOrDefaultInt("SAATHI_CAPTURE_MAX_MS", 15000)) * time.Millisecond,
			SettleDelay:    time.Duration(firstNonNegativeInt("SAATHI_CAPTURE_SETTLE_MS", "SAATHI_CAPTURE_RESTART_MS", 300)) * time.Millisecond,
		},
		Exchange: ExchangeConfig{
			Mode:     strings.ToLower(envOrDefault("SAATHI_EXCHANGE_MODE", ExchangeModeHTTP)),
			Endpoint: exchangeEndpoint,
			Encoding: strings.ToLower(envOrDefault("SAATHI_EXCHANGE_ENCODING", defaultExchangeEncoding(exchangeEndpoint))),
			Timeout:  time.Duration(envOrDefaultInt("SAATHI_EXCHANGE_TIMEOUT_MS", 30000)) * time.Millisecond,
		},
		Gemini: GeminiConfig{
			APIKey:  firstNonEmpty(os.Getenv("GEMINI_API_KEY"), os.Getenv("GOOGLE_API_KEY")),
			Model:   envOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),
			FAQPath: faqPath,
		},
		Output: OutputConfig{
			SynthCommand:    envOrDefault("SAATHI_ESPEAK_COMMAND", "espeak-ng"),
			WordsPerMinute:  envOrDefaultInt("SAATHI_ESPEAK_WPM", 0),
			PlayerCommand:   envOrDefault("SAATHI_FFPLAY_COMMAND", "ffplay"),
			PCMSampleRate:   envOrDefaultInt("SAATHI_PCM_SAMPLE_RATE", 24000),
			PCMChannels:     envOrDefaultInt("SAATHI_PCM_CHANNELS", 1),
			ReleaseDelay:    time.Duration(envOrDefaultInt("SAATHI_RELEASE_DELAY_MS", 10000)) * time.Millisecond,
			PlaybackTimeout: time.Duration(envOrDefaultInt("SAATHI_PLAYBACK_TIMEOUT_MS", 120000)) * time.Millisecond,
		},
		Languages: LanguagesConfig{
			Path: languagesPath,
		},
		Preferences: PreferencesConfig{
			Path: preferencesPath,
		},
		Logging: LoggingConfig{
			Level:  envOrDefault("SAATHI_LOG_LEVEL", "info"),
			Format: envOrDefault("SAATHI_LOG_FORMAT", "console"),
		},
		Metrics: MetricsConfig{
			Addr: strings.TrimSpace(os.Getenv("SAATHI_METRICS_ADDR")),
		},
	}

	if cfg.Audio.Backend != AudioBackendMalgo {
		cfg.Audio.Backend = AudioBackendFFMPEG
	}
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Rules.IterationLimit <= 0 {
		cfg.Rules.IterationLimit = 30
	}
	if cfg.Capture.ChunkSize < 256 {
		cfg.Capture.ChunkSize = 4096
	}
	if cfg.Capture.MaxDuration <= 0 {
		cfg.Capture.MaxDuration = 15 * time.Second
	}
	if cfg.Deepgram.Endpointing < 0 {
		cfg.Deepgram.Endpointing = 0
	}

	switch cfg.Exchange.Mode {
	case ExchangeModeHTTP, ExchangeModeWebsocket, ExchangeModeGemini:
	default:
		return Config{}, fmt.Errorf("unknown exchange mode %q", cfg.Exchange.Mode)
	}
	if cfg.Exchange.Timeout <= 0 {
		cfg.Exchange.Timeout = 30 * time.Second
	}

	return cfg, nil
}

func firstExisting(paths ...string) string {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if len(paths) == 0 {
		return ""
	}
	return paths[0]
}

// existingOrEmpty returns path when it exists so optional files stay optional.
func existingOrEmpty(path string) string {
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// defaultExchangeEncoding picks form fields for a /tts/ endpoint, which reads
// them from the POST body, and JSON for everything else.
func defaultExchangeEncoding(endpoint string) string {
	parsed, err := url.Parse(endpoint)
	if err == nil && path.Base(strings.TrimRight(parsed.Path, "/")) == "tts" {
		return "form"
	}
	return "json"
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func firstNonNegativeInt(primary string, secondary string, fallback int) int {
	for _, key := range []string{primary, secondary} {
		value := strings.TrimSpace(os.Getenv(key))
		if value == "" {
			continue
		}
		parsed, err := strconv.Atoi(value)
		if err == nil && parsed >= 0 {
			return parsed
		}
	}
	return fallback
}
