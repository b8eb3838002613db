// Package output produces audible replies through local synthesis or remote
// audio playback, with at most one playback active at a time.
package output

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"saathi/internal/domain"
	"saathi/internal/language"
	"saathi/internal/ports"
)

// Config controls playback bookkeeping.
type Config struct {
	DefaultLanguage string
	ReleaseDelay    time.Duration
	PlaybackTimeout time.Duration
	TempDir         string
}

// Controller plays one output at a time. Starting a new output supersedes the
// one in flight, whose call returns domain.ErrSuperseded.
type Controller struct {
	synth  ports.Synthesizer
	player ports.AudioPlayer
	cfg    Config
	logger zerolog.Logger

	mu       sync.Mutex
	seq      uint64
	cancel   context.CancelFunc
	done     chan struct{}
	closed   bool
	voices   []domain.Voice
	releases map[*time.Timer]func()
}

func NewController(synth ports.Synthesizer, player ports.AudioPlayer, cfg Config, logger zerolog.Logger) *Controller {
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = language.DefaultLanguage
	}
	if cfg.ReleaseDelay <= 0 {
		cfg.ReleaseDelay = 10 * time.Second
	}
	if cfg.PlaybackTimeout <= 0 {
		cfg.PlaybackTimeout = 2 * time.Minute
	}
	return &Controller{
		synth:    synth,
		player:   player,
		cfg:      cfg,
		logger:   logger.With().Str("component", "output").Logger(),
		releases: make(map[*time.Timer]func()),
	}
}

// CanSpeak reports whether local synthesis is available.
func (c *Controller) CanSpeak() bool {
	return c.synth != nil && c.synth.Available()
}

// CanPlay reports whether remote audio playback is available.
func (c *Controller) CanPlay() bool {
	return c.player != nil && c.player.Available()
}

// SpeakText synthesizes text locally with the best voice for language.
func (c *Controller) SpeakText(ctx context.Context, text string, lang string) error {
	if !c.CanSpeak() {
		return domain.ErrNotSupported
	}
	voice := c.voiceFor(ctx, lang)
	return c.run(ctx, func(runCtx context.Context) error {
		return c.synth.Speak(runCtx, text, voice, lang)
	})
}

// PlayAudio plays a pre-rendered resource. lang is metadata only.
func (c *Controller) PlayAudio(ctx context.Context, resource *domain.AudioResource, lang string) error {
	if resource.Empty() {
		return fmt.Errorf("%w: empty audio resource", domain.ErrPlaybackFailure)
	}
	if !c.CanPlay() {
		return domain.ErrNotSupported
	}

	clip := ports.AudioClip{
		Location:    resource.URL,
		Data:        resource.Data,
		ContentType: resource.ContentType,
	}

	var release func()
	if clip.Location == "" {
		path, err := c.materialize(resource)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrPlaybackFailure, err)
		}
		clip.Location = path
		release = func() {
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				c.logger.Warn().Err(err).Str("path", path).Msg("failed to release audio file")
			}
		}
	}

	// A call that never starts playing releases its file on return.
	scheduled := false
	defer func() {
		if release != nil && !scheduled {
			release()
		}
	}()

	c.logger.Debug().Str("language", lang).Str("content_type", clip.ContentType).Msg("playing audio")
	return c.run(ctx, func(runCtx context.Context) error {
		if release != nil {
			c.scheduleRelease(release)
			scheduled = true
		}
		return c.player.Play(runCtx, clip)
	})
}

// Close cancels any playback and releases pending temporary resources.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	cancel, done := c.cancel, c.done
	releases := c.releases
	c.releases = make(map[*time.Timer]func())
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	for timer, release := range releases {
		if timer.Stop() {
			release()
		}
	}
}

func (c *Controller) run(ctx context.Context, play func(context.Context) error) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrSessionClosed
	}
	previousCancel, previousDone := c.cancel, c.done
	c.seq++
	mine := c.seq
	runCtx, cancel := context.WithTimeout(ctx, c.cfg.PlaybackTimeout)
	done := make(chan struct{})
	c.cancel, c.done = cancel, done
	c.mu.Unlock()

	defer func() {
		cancel()
		c.mu.Lock()
		if c.seq == mine {
			c.cancel, c.done = nil, nil
		}
		c.mu.Unlock()
		close(done)
	}()

	if previousCancel != nil {
		previousCancel()
		<-previousDone
	}

	var err error
	if runCtx.Err() == nil {
		err = play(runCtx)
	}

	switch {
	case c.superseded(mine):
		return domain.ErrSuperseded
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		return fmt.Errorf("%w: playback did not finish within %s", domain.ErrPlaybackFailure, c.cfg.PlaybackTimeout)
	case ctx.Err() != nil:
		return ctx.Err()
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrPlaybackFailure), errors.Is(err, domain.ErrNotSupported):
		return err
	default:
		return fmt.Errorf("%w: %v", domain.ErrPlaybackFailure, err)
	}
}

func (c *Controller) superseded(mine uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq != mine
}

// scheduleRelease frees a temporary resource a bounded delay after playback
// starts, so slow player startup never races the cleanup.
func (c *Controller) scheduleRelease(release func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		release()
		return
	}
	var timer *time.Timer
	timer = time.AfterFunc(c.cfg.ReleaseDelay, func() {
		c.mu.Lock()
		delete(c.releases, timer)
		c.mu.Unlock()
		release()
	})
	c.releases[timer] = release
}

func (c *Controller) materialize(resource *domain.AudioResource) (string, error) {
	ext := ".audio"
	if mediaType, _, err := mime.ParseMediaType(resource.ContentType); err == nil {
		if exts, _ := mime.ExtensionsByType(mediaType); len(exts) > 0 {
			ext = exts[0]
		}
	}

	file, err := os.CreateTemp(c.cfg.TempDir, "saathi-reply-*"+ext)
	if err != nil {
		return "", fmt.Errorf("create audio file: %w", err)
	}
	if _, err := file.Write(resource.Data); err != nil {
		_ = file.Close()
		_ = os.Remove(file.Name())
		return "", fmt.Errorf("write audio file: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(file.Name())
		return "", fmt.Errorf("close audio file: %w", err)
	}
	return file.Name(), nil
}

func (c *Controller) voiceFor(ctx context.Context, lang string) *domain.Voice {
	c.mu.Lock()
	voices := c.voices
	c.mu.Unlock()

	if len(voices) == 0 {
		loaded, err := c.synth.Voices(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Msg("failed to list synthesis voices")
		}
		c.mu.Lock()
		c.voices = loaded
		c.mu.Unlock()
		voices = loaded
	}
	return SelectVoice(voices, lang, c.cfg.DefaultLanguage)
}

// SelectVoice picks the first voice sharing lang's primary subtag, then one
// sharing the default language's subtag. nil means the platform default.
func SelectVoice(voices []domain.Voice, lang string, defaultLang string) *domain.Voice {
	for _, tag := range []string{language.PrimarySubtag(lang), language.PrimarySubtag(defaultLang)} {
		if tag == "" {
			continue
		}
		for i := range voices {
			if strings.EqualFold(language.PrimarySubtag(voices[i].Language), tag) {
				voice := voices[i]
				return &voice
			}
		}
	}
	return nil
}
