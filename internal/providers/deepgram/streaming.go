// Package deepgram transcribes one utterance at a time over Deepgram's live
// listen websocket.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"saathi/internal/domain"
	"saathi/internal/ports"
)

var ErrNotConfigured = errors.New("DEEPGRAM_API_KEY is not configured")

const (
	defaultBaseURL   = "https://api.deepgram.com/v1"
	handshakeTimeout = 10 * time.Second
	// keepAliveEvery stays under the provider's ten second idle cutoff.
	keepAliveEvery = 5 * time.Second
)

// Config controls Deepgram websocket settings. Language is the fallback used
// when a stream does not bind its own.
type Config struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Language    string
	SmartFormat bool
	Endpointing int
}

// Provider implements ports.TranscriptionProvider for Deepgram.
type Provider struct {
	cfg    Config
	dialer *websocket.Dialer
	logger zerolog.Logger
}

func NewProvider(cfg Config, logger zerolog.Logger) *Provider {
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		cfg.APIBaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	return &Provider{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		logger: logger.With().Str("component", "deepgram").Logger(),
	}
}

// Configured reports whether an API key is present.
func (p *Provider) Configured() bool {
	return strings.TrimSpace(p.cfg.APIKey) != ""
}

// StartStreaming opens a listen socket bound to the stream's language. The
// socket is torn down when ctx ends.
func (p *Provider) StartStreaming(ctx context.Context, cfg ports.StreamingConfig) (ports.StreamingSession, error) {
	if !p.Configured() {
		return nil, ErrNotConfigured
	}

	listenURL, err := buildListenURL(p.cfg, cfg)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+strings.TrimSpace(p.cfg.APIKey))

	conn, resp, err := p.dialer.DialContext(ctx, listenURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("deepgram rejected stream (%s): %w", resp.Status, err)
		}
		return nil, fmt.Errorf("failed to connect to deepgram: %w", err)
	}
	language := streamLanguage(p.cfg, cfg)
	p.logger.Debug().Str("language", language).Msg("stream opened")

	s := &stream{
		conn:   conn,
		logger: p.logger.With().Str("language", language).Logger(),
		events:   make(chan domain.TranscriptEvent, 64),
		audio:    make(chan []byte, 32),
		readDone: make(chan struct{}),
		done:     make(chan struct{}),
	}

	s.wg.Add(2)
	go s.readLoop()
	go s.writeLoop()
	go func() {
		s.wg.Wait()
		close(s.events)
		close(s.done)
		_ = conn.Close()
	}()
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()

	return s, nil
}

// stream is one live listen socket. Audio is written by writeLoop and
// provider messages are decoded by readLoop; done closes once both exit.
type stream struct {
	conn   *websocket.Conn
	logger zerolog.Logger

	events   chan domain.TranscriptEvent
	audio    chan []byte
	readDone chan struct{}
	done     chan struct{}
	wg       sync.WaitGroup

	// sendMu orders SendAudio against CloseSend so audio is never sent on a
	// closed channel.
	sendMu     sync.Mutex
	sendClosed bool

	errMu sync.Mutex
	err   error

	closeOnce sync.Once
}

func (s *stream) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.sendClosed {
		return errors.New("audio stream is already closed")
	}
	select {
	case <-s.done:
		return s.closedErr()
	default:
	}
	select {
	case s.audio <- append([]byte(nil), chunk...):
		return nil
	case <-s.done:
		return s.closedErr()
	}
}

func (s *stream) closedErr() error {
	if err := s.streamErr(); err != nil {
		return err
	}
	return errors.New("stream closed")
}

// CloseSend ends the audio; the provider flushes remaining results and
// closes the socket.
func (s *stream) CloseSend() error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if !s.sendClosed {
		s.sendClosed = true
		close(s.audio)
	}
	return nil
}

func (s *stream) Events() <-chan domain.TranscriptEvent {
	return s.events
}

func (s *stream) Wait() error {
	<-s.done
	return s.streamErr()
}

func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		// The socket goes first so a SendAudio blocked on a dead writer is
		// released by done before CloseSend takes sendMu.
		_ = s.conn.Close()
		_ = s.CloseSend()
	})
	<-s.done
	return s.streamErr()
}

func (s *stream) streamErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *stream) fail(err error) {
	if err == nil || websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return
	}
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *stream) writeLoop() {
	defer s.wg.Done()

	keepAlive := time.NewTicker(keepAliveEvery)
	defer keepAlive.Stop()

	for {
		select {
		case chunk, ok := <-s.audio:
			if !ok {
				if err := s.writeControl("CloseStream"); err != nil {
					s.fail(fmt.Errorf("failed to close stream: %w", err))
				}
				return
			}
			if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
				s.fail(fmt.Errorf("failed to send audio: %w", err))
				return
			}
			keepAlive.Reset(keepAliveEvery)
		case <-s.readDone:
			return
		case <-keepAlive.C:
			if err := s.writeControl("KeepAlive"); err != nil {
				s.fail(fmt.Errorf("failed to send keepalive: %w", err))
				return
			}
		}
	}
}

func (s *stream) writeControl(kind string) error {
	return s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"`+kind+`"}`))
}

func (s *stream) readLoop() {
	defer s.wg.Done()
	defer close(s.readDone)

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.fail(fmt.Errorf("failed to read provider event: %w", err))
			return
		}

		var msg listenMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.logger.Debug().Err(err).Msg("skipping undecodable provider message")
			continue
		}

		switch strings.ToLower(msg.Type) {
		case "error":
			detail := strings.TrimSpace(firstNonEmpty(msg.Description, msg.Message))
			if detail == "" {
				detail = "unknown provider error"
			}
			s.fail(fmt.Errorf("deepgram: %s", detail))
			return
		case "", "results":
			if event, ok := msg.event(); ok {
				s.emit(event)
			}
		}
	}
}

// emit never blocks: a recognition that was aborted stops draining events.
func (s *stream) emit(event domain.TranscriptEvent) {
	select {
	case s.events <- event:
	default:
		s.logger.Warn().Msg("dropping transcript event; consumer is not reading")
	}
}

type alternatives []struct {
	Transcript string `json:"transcript"`
}

type listenMessage struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	Description string `json:"description"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`

	Channel struct {
		Alternatives alternatives `json:"alternatives"`
	} `json:"channel"`

	Results struct {
		Channels []struct {
			Alternatives alternatives `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func (m listenMessage) transcript() string {
	if len(m.Channel.Alternatives) > 0 {
		if text := strings.TrimSpace(m.Channel.Alternatives[0].Transcript); text != "" {
			return text
		}
	}
	if len(m.Results.Channels) > 0 && len(m.Results.Channels[0].Alternatives) > 0 {
		return strings.TrimSpace(m.Results.Channels[0].Alternatives[0].Transcript)
	}
	return ""
}

func (m listenMessage) event() (domain.TranscriptEvent, bool) {
	text := m.transcript()
	if text == "" {
		return domain.TranscriptEvent{}, false
	}
	kind := domain.TranscriptKindPartial
	if m.IsFinal || m.SpeechFinal {
		kind = domain.TranscriptKindFinal
	}
	return domain.TranscriptEvent{Kind: kind, Text: text, IsSpeechFinal: m.SpeechFinal}, true
}

func buildListenURL(providerCfg Config, streamCfg ports.StreamingConfig) (string, error) {
	base := strings.TrimSpace(providerCfg.APIBaseURL)
	if base == "" {
		base = defaultBaseURL
	}
	listenURL, err := url.Parse(strings.TrimRight(base, "/") + "/listen")
	if err != nil || listenURL.Host == "" {
		return "", fmt.Errorf("invalid Deepgram API base URL %q", base)
	}
	switch listenURL.Scheme {
	case "https", "wss":
		listenURL.Scheme = "wss"
	case "http", "ws":
		listenURL.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported Deepgram URL scheme %q", listenURL.Scheme)
	}

	if streamCfg.Encoding == "" {
		streamCfg.Encoding = "linear16"
	}
	if streamCfg.SampleRate <= 0 {
		streamCfg.SampleRate = 16000
	}
	if streamCfg.Channels <= 0 {
		streamCfg.Channels = 1
	}
	endpointing := streamCfg.EndpointingMS
	if endpointing <= 0 {
		endpointing = providerCfg.Endpointing
	}

	query := listenURL.Query()
	query.Set("model", providerCfg.Model)
	query.Set("encoding", streamCfg.Encoding)
	query.Set("sample_rate", strconv.Itoa(streamCfg.SampleRate))
	query.Set("channels", strconv.Itoa(streamCfg.Channels))
	query.Set("interim_results", strconv.FormatBool(streamCfg.InterimResults))
	query.Set("smart_format", strconv.FormatBool(providerCfg.SmartFormat))
	if language := streamLanguage(providerCfg, streamCfg); language != "" {
		query.Set("language", language)
	}
	if endpointing > 0 {
		query.Set("endpointing", strconv.Itoa(endpointing))
	}
	listenURL.RawQuery = query.Encode()
	return listenURL.String(), nil
}

func streamLanguage(providerCfg Config, streamCfg ports.StreamingConfig) string {
	return firstNonEmpty(streamCfg.Language, providerCfg.Language)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
