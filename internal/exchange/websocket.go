package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"saathi/internal/domain"
	"saathi/internal/ports"
)

var _ ports.ExchangeClient = (*WebsocketClient)(nil)

// WebsocketClient sends one request frame per exchange and collects the reply.
// Text frames carry JSON {text, url, contentType, done, error}; binary frames
// are audio appended into a single payload.
type WebsocketClient struct {
	endpoint *url.URL
	dialer   *websocket.Dialer
	timeout  time.Duration
	headers  http.Header
}

func NewWebsocketClient(cfg Config) (*WebsocketClient, error) {
	endpoint, err := url.Parse(strings.TrimSpace(cfg.Endpoint))
	if err != nil || endpoint.Host == "" {
		return nil, fmt.Errorf("invalid exchange endpoint %q", cfg.Endpoint)
	}
	switch endpoint.Scheme {
	case "https":
		endpoint.Scheme = "wss"
	case "http":
		endpoint.Scheme = "ws"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported websocket scheme %q", endpoint.Scheme)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WebsocketClient{
		endpoint: endpoint,
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		timeout:  timeout,
		headers:  http.Header{},
	}, nil
}

type replyFrame struct {
	Text        string `json:"text"`
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
	Done        bool   `json:"done"`
	Error       string `json:"error"`
}

func (c *WebsocketClient) Exchange(ctx context.Context, req domain.ExchangeRequest) (domain.ExchangeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, _, err := c.dialer.DialContext(ctx, c.endpoint.String(), c.headers)
	if err != nil {
		return domain.ExchangeResult{}, fmt.Errorf("%w: failed to connect: %v", domain.ErrExchangeFailure, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := conn.WriteJSON(requestBody{Text: req.Transcript, Lang: req.Language}); err != nil {
		return domain.ExchangeResult{}, fmt.Errorf("%w: failed to send request: %v", domain.ErrExchangeFailure, err)
	}

	var (
		text        strings.Builder
		audioURL    string
		contentType string
		audio       []byte
	)
	for {
		kind, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				break
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return domain.ExchangeResult{}, fmt.Errorf("%w: %v", domain.ErrExchangeFailure, ctxErr)
			}
			return domain.ExchangeResult{}, fmt.Errorf("%w: failed to read reply: %v", domain.ErrExchangeFailure, err)
		}

		if kind == websocket.BinaryMessage {
			if len(audio)+len(payload) > maxAudioBytes {
				return domain.ExchangeResult{}, fmt.Errorf("%w: audio reply too large", domain.ErrUnsupportedResponse)
			}
			audio = append(audio, payload...)
			continue
		}

		var frame replyFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			return domain.ExchangeResult{}, fmt.Errorf("%w: malformed frame: %v", domain.ErrUnsupportedResponse, err)
		}
		if msg := strings.TrimSpace(frame.Error); msg != "" {
			return domain.ExchangeResult{}, fmt.Errorf("%w: %s", domain.ErrExchangeFailure, msg)
		}
		text.WriteString(frame.Text)
		if frame.URL != "" {
			audioURL = frame.URL
		}
		if frame.ContentType != "" {
			contentType = frame.ContentType
		}
		if frame.Done {
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			break
		}
	}

	result := domain.ExchangeResult{Text: strings.TrimSpace(text.String())}
	switch {
	case len(audio) > 0:
		if contentType == "" {
			contentType = "audio/mpeg"
		}
		result.Audio = &domain.AudioResource{Data: audio, ContentType: contentType}
	case audioURL != "":
		resolved, err := resolveURL(httpBase(c.endpoint), audioURL)
		if err != nil {
			return domain.ExchangeResult{}, fmt.Errorf("%w: %v", domain.ErrUnsupportedResponse, err)
		}
		result.Audio = &domain.AudioResource{URL: resolved, ContentType: contentType}
	}
	if result.Text == "" && result.Audio == nil {
		return domain.ExchangeResult{}, fmt.Errorf("%w: neither text nor audio", domain.ErrUnsupportedResponse)
	}
	return result, nil
}

// httpBase maps the websocket endpoint back to http(s) so relative audio URLs
// resolve to something a player can fetch.
func httpBase(endpoint *url.URL) *url.URL {
	base := *endpoint
	switch base.Scheme {
	case "wss":
		base.Scheme = "https"
	case "ws":
		base.Scheme = "http"
	}
	return &base
}
