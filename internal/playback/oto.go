package playback

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"saathi/internal/domain"
	"saathi/internal/ports"
)

var _ ports.AudioPlayer = (*OtoPlayer)(nil)

// OtoPlayer plays raw 16-bit little-endian PCM straight to the sound device.
// The device is opened once with a fixed format; clips in another format are
// rejected.
type OtoPlayer struct {
	sampleRate int
	channels   int

	once    sync.Once
	ctx     *oto.Context
	initErr error
}

func NewOtoPlayer(sampleRate int, channels int) *OtoPlayer {
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	if channels <= 0 {
		channels = 1
	}
	return &OtoPlayer{sampleRate: sampleRate, channels: channels}
}

// Available opens the sound device on first use.
func (p *OtoPlayer) Available() bool {
	return p.init() == nil
}

func (p *OtoPlayer) init() error {
	p.once.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   p.sampleRate,
			ChannelCount: p.channels,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   100 * time.Millisecond,
		})
		if err != nil {
			p.initErr = fmt.Errorf("failed to init speaker: %w", err)
			return
		}
		<-ready
		p.ctx = ctx
	})
	return p.initErr
}

// Accepts reports whether clip is PCM in the device's format.
func (p *OtoPlayer) Accepts(clip ports.AudioClip) bool {
	rate, channels, ok := pcmFormat(clip.ContentType)
	return ok && len(clip.Data) > 0 && rate == p.sampleRate && channels == p.channels
}

func (p *OtoPlayer) Play(ctx context.Context, clip ports.AudioClip) error {
	if !p.Accepts(clip) {
		return fmt.Errorf("%w: unsupported pcm clip %q", domain.ErrPlaybackFailure, clip.ContentType)
	}
	if err := p.init(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrAutoplayBlocked, err)
	}

	player := p.ctx.NewPlayer(bytes.NewReader(clip.Data))
	defer player.Close()
	player.Play()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return player.Err()
}
