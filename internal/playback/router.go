package playback

import (
	"context"

	"saathi/internal/domain"
	"saathi/internal/ports"
)

// PCMPlayer is a player restricted to raw PCM clips it accepts.
type PCMPlayer interface {
	ports.AudioPlayer
	Accepts(clip ports.AudioClip) bool
}

// Router sends PCM clips to a direct device player when it accepts them and
// everything else to a general player. Clips no usable player takes fail with
// domain.ErrNotSupported.
type Router struct {
	pcm     PCMPlayer
	general ports.AudioPlayer
}

func NewRouter(pcm PCMPlayer, general ports.AudioPlayer) *Router {
	return &Router{pcm: pcm, general: general}
}

func (r *Router) Available() bool {
	return (r.general != nil && r.general.Available()) || (r.pcm != nil && r.pcm.Available())
}

func (r *Router) Play(ctx context.Context, clip ports.AudioClip) error {
	if r.pcm != nil && r.pcm.Accepts(clip) && r.pcm.Available() {
		return r.pcm.Play(ctx, clip)
	}
	if r.general == nil || !r.general.Available() {
		return domain.ErrNotSupported
	}
	return r.general.Play(ctx, clip)
}
