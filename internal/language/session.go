package language

import (
	"fmt"
	"sync"

	"saathi/internal/domain"
	"saathi/internal/ports"
)

// PreferenceKey is the well-known key the active language is persisted under.
const PreferenceKey = "saathiLang"

// Session tracks the active language. It is loaded from the preference store
// once and mutated only through Select.
type Session struct {
	catalog Catalog
	store   ports.PreferenceStore

	mu             sync.RWMutex
	active         string
	needsSelection bool
}

// NewSession restores the persisted language. A missing or unsupported stored
// value falls back to the catalog default and flags that the user should pick.
func NewSession(catalog Catalog, store ports.PreferenceStore) (*Session, error) {
	if err := catalog.Validate(); err != nil {
		return nil, err
	}

	defaultLang, _ := catalog.Lookup(catalog.Default)
	s := &Session{
		catalog:        catalog,
		store:          store,
		active:         defaultLang.Code,
		needsSelection: true,
	}

	stored, ok, err := store.Get(PreferenceKey)
	if err != nil {
		return s, fmt.Errorf("read language preference: %w", err)
	}
	if ok {
		if lang, found := catalog.Lookup(stored); found {
			s.active = lang.Code
			s.needsSelection = false
		}
	}
	return s, nil
}

// Active returns the active language code.
func (s *Session) Active() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// ActiveLanguage returns the active catalog entry.
func (s *Session) ActiveLanguage() domain.SupportedLanguage {
	lang, _ := s.catalog.Lookup(s.Active())
	return lang
}

// NeedsSelection reports whether no valid preference has been stored yet.
func (s *Session) NeedsSelection() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.needsSelection
}

// Select validates and activates a language, then persists it. A persistence
// failure is returned after the in-memory switch has already happened.
func (s *Session) Select(code string) (domain.SupportedLanguage, error) {
	lang, ok := s.catalog.Lookup(code)
	if !ok {
		return domain.SupportedLanguage{}, fmt.Errorf("%w: %q", domain.ErrUnsupportedLanguage, code)
	}

	s.mu.Lock()
	s.active = lang.Code
	s.needsSelection = false
	s.mu.Unlock()

	if err := s.store.Set(PreferenceKey, lang.Code); err != nil {
		return lang, fmt.Errorf("persist language preference: %w", err)
	}
	return lang, nil
}

// Languages returns the catalog entries in order.
func (s *Session) Languages() []domain.SupportedLanguage {
	out := make([]domain.SupportedLanguage, len(s.catalog.Languages))
	copy(out, s.catalog.Languages)
	return out
}

// Default returns the catalog default language code.
func (s *Session) Default() string {
	return s.catalog.Default
}

// Strings returns the localized strings for the active language.
func (s *Session) Strings() domain.UIStrings {
	return s.catalog.StringsFor(s.Active())
}

// StringsFor returns the localized strings for a language code.
func (s *Session) StringsFor(code string) domain.UIStrings {
	return s.catalog.StringsFor(code)
}
