// Package rules rewrites recognized transcripts with deterministic
// substitutions before they reach the responder.
//
// A rules file holds one rule per line:
//
//	pull request => PR         phrase rule, whole words, case-insensitive
//	s/\bdeep\s*gram/Deepgram/g sed-style regex rule (flags g, i, m, s)
//	[hi]                       following rules apply to Hindi only
//	[*]                        following rules apply to every language
//
// Blank lines and lines starting with # are ignored.
package rules

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"saathi/internal/language"
)

// ErrNoFixedPoint is returned when rules keep rewriting each other past the
// pass limit.
var ErrNoFixedPoint = errors.New("rules did not settle")

// Engine applies substitutions until the text stops changing.
type Engine struct {
	global     []rule
	byLanguage map[string][]rule
	passLimit  int
}

// rule rewrites text once.
type rule func(string) string

// NewEngine loads rules from path. An empty path or a missing file yields an
// engine that returns text unchanged.
func NewEngine(path string, passLimit int) (*Engine, error) {
	if passLimit <= 0 {
		passLimit = 30
	}
	engine := &Engine{byLanguage: make(map[string][]rule), passLimit: passLimit}
	if strings.TrimSpace(path) == "" {
		return engine, nil
	}

	contents, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return engine, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file %q: %w", path, err)
	}
	if err := engine.load(string(contents)); err != nil {
		return nil, fmt.Errorf("failed to parse rules file %q: %w", path, err)
	}
	return engine, nil
}

// Apply rewrites text with the global rules followed by the rules of lang's
// primary subtag.
func (e *Engine) Apply(text string, lang string) (string, error) {
	active := e.rulesFor(lang)
	if len(active) == 0 {
		return text, nil
	}

	result := text
	for pass := 0; pass < e.passLimit; pass++ {
		before := result
		for _, r := range active {
			result = r(result)
		}
		if result == before {
			return result, nil
		}
	}
	return "", fmt.Errorf("%w after %d passes on %q", ErrNoFixedPoint, e.passLimit, text)
}

func (e *Engine) rulesFor(lang string) []rule {
	scoped := e.byLanguage[language.PrimarySubtag(lang)]
	if len(scoped) == 0 {
		return e.global
	}
	out := make([]rule, 0, len(e.global)+len(scoped))
	out = append(out, e.global...)
	return append(out, scoped...)
}

func (e *Engine) load(contents string) error {
	section := "*"
	for index, raw := range strings.Split(contents, "\n") {
		lineNo := index + 1
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			name := strings.TrimSpace(line[1 : len(line)-1])
			if name == "" {
				return fmt.Errorf("line %d: empty section name", lineNo)
			}
			if name != "*" {
				name = language.PrimarySubtag(name)
			}
			section = name
			continue
		}

		r, err := parseLine(line)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		if section == "*" {
			e.global = append(e.global, r)
		} else {
			e.byLanguage[section] = append(e.byLanguage[section], r)
		}
	}
	return nil
}

func parseLine(line string) (rule, error) {
	if isRegexRule(line) {
		return parseRegexRule(line)
	}
	if from, to, ok := strings.Cut(line, "=>"); ok {
		return parsePhraseRule(strings.TrimSpace(from), strings.TrimSpace(to))
	}
	return nil, errors.New("unsupported rule format")
}

// isRegexRule matches s<delim>... where the delimiter is punctuation, so a
// phrase such as "solid => SOLID" stays a phrase rule.
func isRegexRule(line string) bool {
	if len(line) < 2 || line[0] != 's' {
		return false
	}
	delim, _ := utf8.DecodeRuneInString(line[1:])
	return delim != utf8.RuneError && !isWordRune(delim) && !unicode.IsSpace(delim)
}

// parsePhraseRule replaces whole-word occurrences of from. Word edges are
// judged on letters, marks and digits of any script, which keeps a Hindi
// phrase from matching inside a longer Devanagari word.
func parsePhraseRule(from string, to string) (rule, error) {
	if from == "" {
		return nil, errors.New("phrase rule source cannot be empty")
	}
	re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(from))
	if err != nil {
		return nil, fmt.Errorf("invalid phrase: %w", err)
	}

	return func(input string) string {
		matches := re.FindAllStringIndex(input, -1)
		if len(matches) == 0 {
			return input
		}
		var b strings.Builder
		last := 0
		for _, m := range matches {
			if !atWordEdge(input, m[0], m[1]) {
				continue
			}
			b.WriteString(input[last:m[0]])
			b.WriteString(to)
			last = m[1]
		}
		if last == 0 {
			return input
		}
		b.WriteString(input[last:])
		return b.String()
	}, nil
}

func atWordEdge(s string, start int, end int) bool {
	if start > 0 {
		if r, _ := utf8.DecodeLastRuneInString(s[:start]); isWordRune(r) {
			return false
		}
	}
	if end < len(s) {
		if r, _ := utf8.DecodeRuneInString(s[end:]); isWordRune(r) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) || r == '_'
}

// parseRegexRule compiles s/pattern/replacement/flags. Matching is
// case-insensitive unless the pattern sets its own flags; without g only the
// first match is replaced.
func parseRegexRule(line string) (rule, error) {
	delim, size := utf8.DecodeRuneInString(line[1:])
	rest := line[1+size:]

	pattern, rest, err := splitDelimited(rest, delim, true)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern: %w", err)
	}
	replacement, rest, err := splitDelimited(rest, delim, false)
	if err != nil {
		return nil, fmt.Errorf("invalid regex replacement: %w", err)
	}

	inline := "i"
	global := false
	for _, flag := range strings.TrimSpace(rest) {
		switch flag {
		case 'g':
			global = true
		case 'i':
		case 'm', 's':
			inline += string(flag)
		default:
			return nil, fmt.Errorf("unsupported regex flag %q", flag)
		}
	}

	re, err := regexp.Compile("(?" + inline + ")" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}

	if global {
		return func(input string) string {
			return re.ReplaceAllString(input, replacement)
		}, nil
	}
	return func(input string) string {
		loc := re.FindStringSubmatchIndex(input)
		if loc == nil {
			return input
		}
		expanded := re.ExpandString(nil, replacement, input, loc)
		return input[:loc[0]] + string(expanded) + input[loc[1]:]
	}, nil
}

// splitDelimited returns the text up to the next unescaped delim and the
// remainder after it. Patterns keep every escape so an escaped delimiter stays
// literal; replacements drop the escape in front of the delimiter.
func splitDelimited(s string, delim rune, pattern bool) (string, string, error) {
	var b strings.Builder
	escaped := false
	for i, r := range s {
		switch {
		case escaped:
			if pattern || r != delim {
				b.WriteRune('\\')
			}
			b.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == delim:
			return b.String(), s[i+utf8.RuneLen(r):], nil
		default:
			b.WriteRune(r)
		}
	}
	return "", "", errors.New("unterminated expression")
}
