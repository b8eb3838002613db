// Package playback plays reply audio through ffplay or directly through the
// sound device.
package playback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"saathi/internal/domain"
	"saathi/internal/ports"
)

var _ ports.AudioPlayer = (*FFPlay)(nil)

var blockedOutputMarkers = []string{
	"could not open audio device",
	"no available audio device",
	"sdl_openaudio",
	"audio open failed",
}

// FFPlay plays a URL or file with ffplay and exits when playback ends.
type FFPlay struct {
	command  string
	logLevel string
}

func NewFFPlay(command string) *FFPlay {
	if command == "" {
		command = "ffplay"
	}
	return &FFPlay{command: command, logLevel: "error"}
}

// Available reports whether the ffplay binary can be found.
func (p *FFPlay) Available() bool {
	_, err := exec.LookPath(p.command)
	return err == nil
}

// Play blocks until ffplay exits or ctx is cancelled.
func (p *FFPlay) Play(ctx context.Context, clip ports.AudioClip) error {
	if strings.TrimSpace(clip.Location) == "" {
		return fmt.Errorf("%w: ffplay needs a location", domain.ErrPlaybackFailure)
	}

	args := []string{
		"-hide_banner",
		"-loglevel", p.logLevel,
		"-nostats",
		"-nodisp",
		"-autoexit",
	}
	if rate, channels, ok := pcmFormat(clip.ContentType); ok {
		layout := "mono"
		if channels == 2 {
			layout = "stereo"
		}
		args = append(args, "-f", "s16le", "-ch_layout", layout, "-ar", strconv.Itoa(rate))
	}
	args = append(args, "-i", clip.Location)

	cmd := exec.CommandContext(ctx, p.command, args...)
	cmd.WaitDelay = time.Second
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		detail := strings.TrimSpace(stderr.String())
		if outputBlocked(detail) {
			return fmt.Errorf("%w: %s", domain.ErrAutoplayBlocked, detail)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%w: ffplay exited: %s", domain.ErrPlaybackFailure, detail)
		}
		return fmt.Errorf("%w: failed to run ffplay: %v", domain.ErrPlaybackFailure, err)
	}
	return nil
}

func outputBlocked(stderr string) bool {
	lowered := strings.ToLower(stderr)
	for _, marker := range blockedOutputMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

// pcmFormat reports the sample rate and channel count of a raw 16-bit PCM
// content type such as "audio/L16;rate=24000".
func pcmFormat(contentType string) (int, int, bool) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return 0, 0, false
	}
	switch mediaType {
	case "audio/l16", "audio/pcm", "audio/x-pcm":
	default:
		return 0, 0, false
	}

	rate := 24000
	if value, err := strconv.Atoi(params["rate"]); err == nil && value > 0 {
		rate = value
	}
	channels := 1
	if value, err := strconv.Atoi(params["channels"]); err == nil && value > 0 {
		channels = value
	}
	return rate, channels, true
}
