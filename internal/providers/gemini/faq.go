package gemini

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	yaml "go.yaml.in/yaml/v2"
)

// faqThreshold is the minimum similarity, out of 100, for a canned answer.
const faqThreshold = 80

// FAQ holds canned answers matched against transcripts by edit distance.
type FAQ struct {
	entries []faqEntry
}

type faqEntry struct {
	question string
	answer   string
}

// LoadFAQ reads a question-to-answer mapping. JSON objects and YAML maps are
// both accepted. An empty path yields no FAQ.
func LoadFAQ(path string) (*FAQ, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read faq file %q: %w", path, err)
	}
	var answers map[string]string
	if err := yaml.Unmarshal(data, &answers); err != nil {
		return nil, fmt.Errorf("failed to parse faq file %q: %w", path, err)
	}
	if len(answers) == 0 {
		return nil, errors.New("faq file has no entries")
	}
	return NewFAQ(answers), nil
}

func NewFAQ(answers map[string]string) *FAQ {
	faq := &FAQ{}
	for question, answer := range answers {
		question = strings.ToLower(strings.TrimSpace(question))
		answer = strings.TrimSpace(answer)
		if question == "" || answer == "" {
			continue
		}
		faq.entries = append(faq.entries, faqEntry{question: question, answer: answer})
	}
	sort.Slice(faq.entries, func(i, j int) bool { return faq.entries[i].question < faq.entries[j].question })
	return faq
}

// Match returns the answer whose question is closest to question, if it is
// close enough.
func (f *FAQ) Match(question string) (string, bool) {
	if f == nil {
		return "", false
	}
	question = strings.ToLower(strings.TrimSpace(question))
	if question == "" {
		return "", false
	}

	best, bestScore := "", -1
	for _, entry := range f.entries {
		if score := similarity(question, entry.question); score > bestScore {
			best, bestScore = entry.answer, score
		}
	}
	return best, bestScore >= faqThreshold
}

func similarity(a string, b string) int {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 100
	}
	return 100 * (longest - levenshtein.ComputeDistance(a, b)) / longest
}
