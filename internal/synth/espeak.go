// Package synth speaks text locally through espeak-ng.
package synth

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"saathi/internal/domain"
	"saathi/internal/ports"
)

var _ ports.Synthesizer = (*Espeak)(nil)

// Config controls the espeak-ng invocation.
type Config struct {
	Command string
	// WordsPerMinute is passed as -s when positive.
	WordsPerMinute int
}

// Espeak implements ports.Synthesizer by running espeak-ng once per utterance.
type Espeak struct {
	cfg Config
}

func NewEspeak(cfg Config) *Espeak {
	if cfg.Command == "" {
		cfg.Command = "espeak-ng"
	}
	return &Espeak{cfg: cfg}
}

// Available reports whether the espeak-ng binary can be found.
func (e *Espeak) Available() bool {
	_, err := exec.LookPath(e.cfg.Command)
	return err == nil
}

// Voices lists installed voices.
func (e *Espeak) Voices(ctx context.Context) ([]domain.Voice, error) {
	cmd := exec.CommandContext(ctx, e.cfg.Command, "--voices")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list espeak voices: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return parseVoices(out), nil
}

// Speak blocks until the utterance finishes. Cancelling ctx stops speech.
func (e *Espeak) Speak(ctx context.Context, text string, voice *domain.Voice, language string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	args := make([]string, 0, 5)
	if voice != nil && voice.ID != "" {
		args = append(args, "-v", voice.ID)
	}
	if e.cfg.WordsPerMinute > 0 {
		args = append(args, "-s", strconv.Itoa(e.cfg.WordsPerMinute))
	}
	args = append(args, "--stdin")

	cmd := exec.CommandContext(ctx, e.cfg.Command, args...)
	cmd.Stdin = strings.NewReader(text)
	cmd.WaitDelay = time.Second
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("espeak-ng failed for %s: %s", language, strings.TrimSpace(stderr.String()))
		}
		return fmt.Errorf("failed to run espeak-ng: %w", err)
	}
	return nil
}

// parseVoices reads the "Pty Language Age/Gender VoiceName File" table.
func parseVoices(out []byte) []domain.Voice {
	var voices []domain.Voice
	scanner := bufio.NewScanner(bytes.NewReader(out))
	header := true
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if header {
			header = false
			if len(fields) > 0 && strings.EqualFold(fields[0], "Pty") {
				continue
			}
		}
		if len(fields) < 5 {
			continue
		}
		voices = append(voices, domain.Voice{
			ID:       fields[1],
			Name:     strings.ReplaceAll(fields[3], "_", " "),
			Language: fields[1],
		})
	}
	return voices
}
