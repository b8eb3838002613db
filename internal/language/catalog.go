// Package language owns the supported-language catalog, the localized UI
// strings and the active language of a session.
package language

import (
	"errors"
	"fmt"
	"os"
	"strings"

	yaml "go.yaml.in/yaml/v2"

	"saathi/internal/domain"
)

const DefaultLanguage = "en-US"

// Catalog is the injectable list of supported languages plus their strings,
// keyed by primary subtag.
type Catalog struct {
	Default   string                      `yaml:"default"`
	Languages []domain.SupportedLanguage  `yaml:"languages"`
	Strings   map[string]domain.UIStrings `yaml:"strings"`
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() Catalog {
	return Catalog{
		Default: DefaultLanguage,
		Languages: []domain.SupportedLanguage{
			{Code: "en-US", Label: "English"},
			{Code: "hi-IN", Label: "Hindi"},
			{Code: "bn-IN", Label: "Bengali"},
			{Code: "ta-IN", Label: "Tamil"},
			{Code: "te-IN", Label: "Telugu"},
			{Code: "kn-IN", Label: "Kannada"},
		},
		Strings: map[string]domain.UIStrings{
			"en": {
				Greeting:          "👋 Welcome to Saathi Voice Assistant",
				Loading:           "Thinking…",
				LanguageConfirmed: "Language set. You can start speaking now.",
				LanguageNotice:    "Language set to {language}",
				ListeningLabel:    "Listening...",
				IdleLabel:         "Tap to Speak",
				PlaybackError:     "Could not play the reply",
				Acknowledgment:    "Okay",
				ExchangeError:     "Sorry, I could not get a reply. Please try again.",
				VoiceUnavailable:  "Voice is not available on this device",
			},
			"hi": {
				Greeting:          "👋 साथी वॉइस असिस्टेंट में आपका स्वागत है",
				Loading:           "सोच रहा हूँ…",
				LanguageConfirmed: "भाषा सेट हो गई। अब आप बोलना शुरू कर सकते हैं।",
				LanguageNotice:    "भाषा {language} पर सेट की गई",
				ListeningLabel:    "सुन रहा हूँ...",
				IdleLabel:         "बोलने के लिए टैप करें",
				PlaybackError:     "जवाब नहीं चल सका",
				Acknowledgment:    "ठीक है",
				ExchangeError:     "माफ़ कीजिए, जवाब नहीं मिल सका। कृपया फिर से कोशिश करें।",
				VoiceUnavailable:  "इस डिवाइस पर आवाज़ उपलब्ध नहीं है",
			},
		},
	}
}

// LoadCatalog reads a YAML catalog. An empty path returns the built-in catalog.
// Fields missing from the file keep their built-in values.
func LoadCatalog(path string) (Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCatalog(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read language catalog %q: %w", path, err)
	}

	var parsed Catalog
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return Catalog{}, fmt.Errorf("parse language catalog %q: %w", path, err)
	}

	catalog := DefaultCatalog()
	if len(parsed.Languages) > 0 {
		catalog.Languages = parsed.Languages
	}
	if strings.TrimSpace(parsed.Default) != "" {
		catalog.Default = strings.TrimSpace(parsed.Default)
	}
	for tag, s := range parsed.Strings {
		tag = PrimarySubtag(tag)
		catalog.Strings[tag] = mergeStrings(s, catalog.Strings[tag])
	}

	if err := catalog.Validate(); err != nil {
		return Catalog{}, fmt.Errorf("language catalog %q: %w", path, err)
	}
	return catalog, nil
}

// Validate checks that the catalog is usable.
func (c Catalog) Validate() error {
	if len(c.Languages) == 0 {
		return errors.New("catalog has no languages")
	}
	seen := make(map[string]bool, len(c.Languages))
	for _, lang := range c.Languages {
		code := strings.ToLower(strings.TrimSpace(lang.Code))
		if code == "" {
			return errors.New("catalog entry has an empty code")
		}
		if seen[code] {
			return fmt.Errorf("duplicate language %q", lang.Code)
		}
		seen[code] = true
	}
	if _, ok := c.Lookup(c.Default); !ok {
		return fmt.Errorf("default language %q is not in the catalog", c.Default)
	}
	return nil
}

// Lookup finds a catalog entry by code, ignoring case.
func (c Catalog) Lookup(code string) (domain.SupportedLanguage, bool) {
	code = strings.TrimSpace(code)
	for _, lang := range c.Languages {
		if strings.EqualFold(lang.Code, code) {
			return lang, true
		}
	}
	return domain.SupportedLanguage{}, false
}

// StringsFor returns the strings for a language code, falling back to the
// default language's subtag and then field by field to the default strings.
func (c Catalog) StringsFor(code string) domain.UIStrings {
	fallback := c.Strings[PrimarySubtag(c.Default)]
	s, ok := c.Strings[PrimarySubtag(code)]
	if !ok {
		return fallback
	}
	return mergeStrings(s, fallback)
}

// PrimarySubtag returns the lower-cased primary subtag ("hi" for "hi-IN").
func PrimarySubtag(code string) string {
	code = strings.TrimSpace(code)
	if i := strings.IndexAny(code, "-_"); i >= 0 {
		code = code[:i]
	}
	return strings.ToLower(code)
}

// FormatNotice fills the {language} placeholder of a notice template.
func FormatNotice(template string, lang domain.SupportedLanguage) string {
	label := lang.Label
	if label == "" {
		label = lang.Code
	}
	return strings.ReplaceAll(template, "{language}", label)
}

func mergeStrings(primary domain.UIStrings, fallback domain.UIStrings) domain.UIStrings {
	pick := func(a, b string) string {
		if strings.TrimSpace(a) != "" {
			return a
		}
		return b
	}
	return domain.UIStrings{
		Greeting:          pick(primary.Greeting, fallback.Greeting),
		Loading:           pick(primary.Loading, fallback.Loading),
		LanguageConfirmed: pick(primary.LanguageConfirmed, fallback.LanguageConfirmed),
		LanguageNotice:    pick(primary.LanguageNotice, fallback.LanguageNotice),
		ListeningLabel:    pick(primary.ListeningLabel, fallback.ListeningLabel),
		IdleLabel:         pick(primary.IdleLabel, fallback.IdleLabel),
		PlaybackError:     pick(primary.PlaybackError, fallback.PlaybackError),
		Acknowledgment:    pick(primary.Acknowledgment, fallback.Acknowledgment),
		ExchangeError:     pick(primary.ExchangeError, fallback.ExchangeError),
		VoiceUnavailable:  pick(primary.VoiceUnavailable, fallback.VoiceUnavailable),
	}
}
