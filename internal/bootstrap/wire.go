package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"saathi/internal/audio"
	"saathi/internal/config"
	"saathi/internal/conversation"
	"saathi/internal/exchange"
	"saathi/internal/language"
	"saathi/internal/logging"
	"saathi/internal/metrics"
	"saathi/internal/output"
	"saathi/internal/playback"
	"saathi/internal/ports"
	"saathi/internal/providers/deepgram"
	"saathi/internal/providers/gemini"
	"saathi/internal/rules"
	"saathi/internal/speech"
	"saathi/internal/store"
	"saathi/internal/synth"
	"saathi/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Session *usecase.Session
	Config  config.Config
	Metrics *metrics.Metrics
	Logger  zerolog.Logger

	closers []func() error
}

// Close shuts the session down and releases device handles.
func (s Services) Close() {
	if s.Session != nil {
		s.Session.Close()
	}
	for _, closeFn := range s.closers {
		if err := closeFn(); err != nil {
			s.Logger.Warn().Err(err).Msg("failed to release resource")
		}
	}
}

// abandon releases what a failed build already acquired.
func (s Services) abandon(err error) (Services, error) {
	s.Close()
	return Services{}, err
}

// Build wires all backend dependencies for the current runtime.
func Build(ctx context.Context, eventSink ports.EventSink) (Services, error) {
	return BuildWithOutput(ctx, eventSink, os.Stderr)
}

// BuildWithOutput is Build with an explicit log destination.
func BuildWithOutput(ctx context.Context, eventSink ports.EventSink, logOut io.Writer) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format, logOut)

	rulesEngine, err := rules.NewEngine(cfg.Rules.Path, cfg.Rules.IterationLimit)
	if err != nil {
		return Services{}, err
	}

	catalog, err := language.LoadCatalog(cfg.Languages.Path)
	if err != nil {
		return Services{}, err
	}
	languages, err := language.NewSession(catalog, preferenceStore(cfg.Preferences.Path))
	if languages == nil {
		return Services{}, err
	}
	if err != nil {
		logger.Warn().Err(err).Str("path", cfg.Preferences.Path).Msg("language preference unavailable; using default")
	}

	services := Services{Config: cfg, Metrics: metrics.New("saathi"), Logger: logger}

	var capture ports.AudioCapture
	switch cfg.Audio.Backend {
	case config.AudioBackendMalgo:
		malgoCapture := audio.NewMalgoCapture()
		services.closers = append(services.closers, malgoCapture.Close)
		capture = malgoCapture
	default:
		capture = audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand)
	}

	recognizer := speech.NewStreamingRecognizer(
		capture,
		deepgram.NewProvider(deepgram.Config{
			APIKey:      cfg.Deepgram.APIKey,
			APIBaseURL:  cfg.Deepgram.APIBaseURL,
			Model:       cfg.Deepgram.Model,
			Language:    cfg.Deepgram.Language,
			SmartFormat: cfg.Deepgram.SmartFormat,
			Endpointing: cfg.Deepgram.Endpointing,
		}, logger),
		rulesEngine,
		speech.Config{
			Audio: ports.AudioConfig{
				SampleRate:  cfg.Audio.SampleRate,
				Channels:    cfg.Audio.Channels,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
			},
			Streaming: ports.StreamingConfig{
				SampleRate:    cfg.Audio.SampleRate,
				Channels:      cfg.Audio.Channels,
				Encoding:      "linear16",
				EndpointingMS: cfg.Deepgram.Endpointing,
			},
			ChunkSize:      cfg.Capture.ChunkSize,
			StreamingGrace: cfg.Capture.StreamingGrace,
			MaxDuration:    cfg.Capture.MaxDuration,
		},
		logger,
	)

	speaker := output.NewController(
		synth.NewEspeak(synth.Config{
			Command:        cfg.Output.SynthCommand,
			WordsPerMinute: cfg.Output.WordsPerMinute,
		}),
		playback.NewRouter(
			playback.NewOtoPlayer(cfg.Output.PCMSampleRate, cfg.Output.PCMChannels),
			playback.NewFFPlay(cfg.Output.PlayerCommand),
		),
		output.Config{
			DefaultLanguage: catalog.Default,
			ReleaseDelay:    cfg.Output.ReleaseDelay,
			PlaybackTimeout: cfg.Output.PlaybackTimeout,
		},
		logger,
	)

	responder, err := buildExchange(ctx, cfg, catalog)
	if err != nil {
		return services.abandon(err)
	}
	if responder == nil {
		logger.Warn().Str("mode", cfg.Exchange.Mode).Msg("no responder configured; replies are disabled")
	}

	session, err := usecase.NewSession(usecase.Dependencies{
		Recognizer: recognizer,
		Output:     speaker,
		Exchange:   responder,
		Language:   languages,
		Log:        conversation.NewLog(),
		Events:     eventSink,
		Metrics:    services.Metrics,
		Logger:     logger,
	}, usecase.Config{
		SettleDelay:     cfg.Capture.SettleDelay,
		ExchangeTimeout: cfg.Exchange.Timeout,
	})
	if err != nil {
		return services.abandon(err)
	}
	services.Session = session
	return services, nil
}

// preferenceStore keeps preferences in memory when no file is configured.
func preferenceStore(path string) ports.PreferenceStore {
	if path == "" {
		return store.NewMemoryStore()
	}
	return store.NewFileStore(path)
}

// buildExchange returns nil when the selected responder has no credentials.
func buildExchange(ctx context.Context, cfg config.Config, catalog language.Catalog) (ports.ExchangeClient, error) {
	exchangeCfg := exchange.Config{
		Endpoint: cfg.Exchange.Endpoint,
		Encoding: cfg.Exchange.Encoding,
		Timeout:  cfg.Exchange.Timeout,
	}

	switch cfg.Exchange.Mode {
	case config.ExchangeModeWebsocket:
		client, err := exchange.NewWebsocketClient(exchangeCfg)
		if err != nil {
			return nil, err
		}
		return client, nil
	case config.ExchangeModeGemini:
		responder, err := gemini.NewResponder(ctx, gemini.Config{
			APIKey:  cfg.Gemini.APIKey,
			Model:   cfg.Gemini.Model,
			FAQPath: cfg.Gemini.FAQPath,
		}, languageLabel(catalog))
		if errors.Is(err, gemini.ErrNotConfigured) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return responder, nil
	default:
		client, err := exchange.NewHTTPClient(exchangeCfg, nil)
		if err != nil {
			return nil, fmt.Errorf("http exchange: %w", err)
		}
		return client, nil
	}
}

func languageLabel(catalog language.Catalog) func(string) string {
	return func(code string) string {
		if lang, ok := catalog.Lookup(code); ok {
			return lang.Label
		}
		return code
	}
}
