// Package gemini answers transcripts directly with a Gemini model, replying in
// the caller's language.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"saathi/internal/domain"
	"saathi/internal/language"
	"saathi/internal/ports"
)

var _ ports.ExchangeClient = (*Responder)(nil)

var ErrNotConfigured = errors.New("GEMINI_API_KEY is not configured")

var emergencyKeywords = []string{"help", "sahayata", "madad", "emergency", "fire", "injury", "accident"}

// Config controls the Gemini responder. FAQPath optionally names a file of
// canned answers consulted before the model.
type Config struct {
	APIKey  string
	Model   string
	FAQPath string
}

// generator is the subset of *genai.Models the responder uses.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Responder implements ports.ExchangeClient. languageName maps a language code
// to the name used in prompts.
type Responder struct {
	models       generator
	model        string
	languageName func(code string) string
	faq          *FAQ
	now          func() time.Time
}

func NewResponder(ctx context.Context, cfg Config, languageName func(string) string) (*Responder, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	faq, err := LoadFAQ(cfg.FAQPath)
	if err != nil {
		return nil, err
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	responder := newResponder(client.Models, cfg.Model, languageName)
	responder.faq = faq
	return responder, nil
}

func newResponder(models generator, model string, languageName func(string) string) *Responder {
	if model == "" {
		model = "gemini-2.0-flash"
	}
	if languageName == nil {
		languageName = func(code string) string { return code }
	}
	return &Responder{models: models, model: model, languageName: languageName, now: time.Now}
}

func (r *Responder) Exchange(ctx context.Context, req domain.ExchangeRequest) (domain.ExchangeResult, error) {
	answer, prompt := r.plan(req)
	if answer != "" {
		return domain.ExchangeResult{Text: answer}, nil
	}
	resp, err := r.models.GenerateContent(ctx, r.model, genai.Text(prompt), nil)
	if err != nil {
		return domain.ExchangeResult{}, fmt.Errorf("%w: gemini: %v", domain.ErrExchangeFailure, err)
	}
	text := ""
	if resp != nil {
		text = strings.TrimSpace(resp.Text())
	}
	if text == "" {
		return domain.ExchangeResult{}, fmt.Errorf("%w: gemini returned no text", domain.ErrUnsupportedResponse)
	}
	return domain.ExchangeResult{Text: text}, nil
}

// plan returns either a ready answer or the prompt for the model. Emergencies
// go to the model first, then clock questions and canned answers are tried.
func (r *Responder) plan(req domain.ExchangeRequest) (string, string) {
	langName := r.languageName(req.Language)
	question := strings.TrimSpace(req.Transcript)

	if isEmergency(question) {
		return "", fmt.Sprintf(`You are an AI emergency assistant.
A driver has requested help.
Respond calmly, give step-by-step instructions, and stay conversational.
Reply in %s.

Driver said: %s
`, langName, question)
	}

	if fact := r.realtimeFact(question); fact != "" {
		return localized(fact, req.Language, langName)
	}
	if answer, ok := r.faq.Match(question); ok {
		return localized(answer, req.Language, langName)
	}

	return "", fmt.Sprintf(`You are a helpful assistant.
Answer the following question directly in %s.
Do not just repeat or translate the question.
Question: %s
`, langName, question)
}

// localized returns English answers as they are and asks the model to
// translate the rest.
func localized(answer string, code string, langName string) (string, string) {
	if language.PrimarySubtag(code) == "en" {
		return answer, ""
	}
	return "", fmt.Sprintf("Translate the following answer into %s. Reply with the translation only:\n\n%s", langName, answer)
}

// realtimeFact answers date and time questions locally, since the model does
// not know the current clock.
func (r *Responder) realtimeFact(question string) string {
	lowered := strings.ToLower(question)
	now := r.now()
	switch {
	case strings.Contains(lowered, "date") || strings.Contains(lowered, "tareekh"):
		return "Today's date is " + now.Format("January 02, 2006")
	case strings.Contains(lowered, "time") || strings.Contains(lowered, "samay"):
		return "The current time is " + now.Format("15:04:05")
	default:
		return ""
	}
}

func isEmergency(question string) bool {
	lowered := strings.ToLower(question)
	for _, keyword := range emergencyKeywords {
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}
