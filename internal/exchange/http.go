// Package exchange sends transcripts to the remote responder and normalizes
// its reply into text, audio, or both.
package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"saathi/internal/domain"
	"saathi/internal/ports"
)

var _ ports.ExchangeClient = (*HTTPClient)(nil)

const (
	EncodingJSON = "json"
	EncodingForm = "form"

	maxAudioBytes = 32 << 20
)

// Config describes the responder endpoint.
type Config struct {
	Endpoint string
	Encoding string
	Timeout  time.Duration
}

// HTTPClient posts {text, lang} to the responder endpoint.
type HTTPClient struct {
	endpoint   *url.URL
	encoding   string
	client     *http.Client
	audioLimit int64
}

func NewHTTPClient(cfg Config, client *http.Client) (*HTTPClient, error) {
	endpoint, err := url.Parse(strings.TrimSpace(cfg.Endpoint))
	if err != nil || endpoint.Scheme == "" || endpoint.Host == "" {
		return nil, fmt.Errorf("invalid exchange endpoint %q", cfg.Endpoint)
	}
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	encoding := strings.ToLower(strings.TrimSpace(cfg.Encoding))
	if encoding != EncodingForm {
		encoding = EncodingJSON
	}
	return &HTTPClient{endpoint: endpoint, encoding: encoding, client: client, audioLimit: maxAudioBytes}, nil
}

type requestBody struct {
	Text string `json:"text"`
	Lang string `json:"lang"`
}

type responseBody struct {
	URL   string `json:"url"`
	Text  string `json:"text"`
	Error string `json:"error"`
}

func (c *HTTPClient) Exchange(ctx context.Context, req domain.ExchangeRequest) (domain.ExchangeResult, error) {
	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return domain.ExchangeResult{}, fmt.Errorf("%w: %v", domain.ErrExchangeFailure, err)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return domain.ExchangeResult{}, fmt.Errorf("%w: %v", domain.ErrExchangeFailure, err)
	}
	defer resp.Body.Close()

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.ExchangeResult{}, statusError(resp, mediaType)
	}

	switch {
	case mediaType == "application/json":
		return c.decodeJSON(resp.Body)
	case strings.HasPrefix(mediaType, "audio/"):
		data, err := io.ReadAll(io.LimitReader(resp.Body, c.audioLimit+1))
		if err != nil {
			return domain.ExchangeResult{}, fmt.Errorf("%w: read audio: %v", domain.ErrExchangeFailure, err)
		}
		if int64(len(data)) > c.audioLimit {
			return domain.ExchangeResult{}, fmt.Errorf("%w: audio reply too large", domain.ErrUnsupportedResponse)
		}
		if len(data) == 0 {
			return domain.ExchangeResult{}, fmt.Errorf("%w: empty audio body", domain.ErrUnsupportedResponse)
		}
		return domain.ExchangeResult{Audio: &domain.AudioResource{
			Data:        data,
			ContentType: resp.Header.Get("Content-Type"),
		}}, nil
	default:
		return domain.ExchangeResult{}, fmt.Errorf("%w: content type %q", domain.ErrUnsupportedResponse, mediaType)
	}
}

func (c *HTTPClient) newRequest(ctx context.Context, req domain.ExchangeRequest) (*http.Request, error) {
	var (
		body        io.Reader
		contentType string
	)
	if c.encoding == EncodingForm {
		form := url.Values{}
		form.Set("text", req.Transcript)
		form.Set("lang", req.Language)
		body = strings.NewReader(form.Encode())
		contentType = "application/x-www-form-urlencoded"
	} else {
		payload, err := json.Marshal(requestBody{Text: req.Transcript, Lang: req.Language})
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(payload)
		contentType = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(), body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json, audio/*")
	return httpReq, nil
}

func (c *HTTPClient) decodeJSON(r io.Reader) (domain.ExchangeResult, error) {
	var decoded responseBody
	if err := json.NewDecoder(r).Decode(&decoded); err != nil {
		return domain.ExchangeResult{}, fmt.Errorf("%w: decode response: %v", domain.ErrUnsupportedResponse, err)
	}
	return c.resultFrom(decoded.Text, decoded.URL)
}

func (c *HTTPClient) resultFrom(text string, audioURL string) (domain.ExchangeResult, error) {
	result := domain.ExchangeResult{Text: strings.TrimSpace(text)}
	if audioURL = strings.TrimSpace(audioURL); audioURL != "" {
		resolved, err := resolveURL(c.endpoint, audioURL)
		if err != nil {
			return domain.ExchangeResult{}, fmt.Errorf("%w: %v", domain.ErrUnsupportedResponse, err)
		}
		result.Audio = &domain.AudioResource{URL: resolved}
	}
	if result.Text == "" && result.Audio == nil {
		return domain.ExchangeResult{}, fmt.Errorf("%w: neither text nor audio", domain.ErrUnsupportedResponse)
	}
	return result, nil
}

func resolveURL(base *url.URL, ref string) (string, error) {
	parsed, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid audio url %q: %w", ref, err)
	}
	return base.ResolveReference(parsed).String(), nil
}

func statusError(resp *http.Response, mediaType string) error {
	detail := http.StatusText(resp.StatusCode)
	if mediaType == "application/json" {
		var decoded responseBody
		if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&decoded); err == nil && strings.TrimSpace(decoded.Error) != "" {
			detail = strings.TrimSpace(decoded.Error)
		}
	}
	return fmt.Errorf("%w: status %d: %s", domain.ErrExchangeFailure, resp.StatusCode, detail)
}
