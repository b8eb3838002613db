package speech

import (
	"strings"
	"sync"

	"saathi/internal/domain"
	"saathi/internal/ports"
)

// utterance collects the finalized segments of one capture. Interim results
// are off, so a partial only stands in when no segment was finalized.
type utterance struct {
	mu       sync.Mutex
	segments []string
	fallback string
}

func (u *utterance) add(event domain.TranscriptEvent) {
	text := strings.TrimSpace(event.Text)
	if text == "" {
		return
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if event.Kind != domain.TranscriptKindFinal {
		u.fallback = text
		return
	}
	// Endpointing can finalize the same segment twice.
	if n := len(u.segments); n > 0 && u.segments[n-1] == text {
		return
	}
	u.segments = append(u.segments, text)
}

func (u *utterance) text() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.segments) == 0 {
		return u.fallback
	}
	return strings.Join(u.segments, " ")
}

// collect drains the stream's events until the provider closes them, calling
// endOfSpeech for every segment the provider marks as the end of speech.
func (u *utterance) collect(stream ports.StreamingSession, endOfSpeech func()) {
	for event := range stream.Events() {
		u.add(event)
		if event.IsSpeechFinal && event.Kind == domain.TranscriptKindFinal && strings.TrimSpace(event.Text) != "" {
			endOfSpeech()
		}
	}
}
