// Package audio records microphone PCM for one utterance at a time.
package audio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"saathi/internal/ports"
)

var _ ports.AudioCapture = (*FFMPEGCapture)(nil)

const (
	// readyTimeout bounds how long Start waits for the first audio bytes.
	readyTimeout = 400 * time.Millisecond
	stopTimeout  = 1200 * time.Millisecond
	stderrTail   = 2048
)

// FFMPEGCapture records the microphone through an ffmpeg subprocess that
// writes signed 16-bit little-endian PCM to stdout.
type FFMPEGCapture struct {
	command string
	goos    string
}

func NewFFMPEGCapture(command string) *FFMPEGCapture {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFMPEGCapture{command: command, goos: runtime.GOOS}
}

// Available reports whether the ffmpeg binary can be found.
func (c *FFMPEGCapture) Available() bool {
	_, err := exec.LookPath(c.command)
	return err == nil
}

// Start launches the recorder and returns once audio is flowing or the
// recorder is still running after a short wait.
func (c *FFMPEGCapture) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	cmd := exec.CommandContext(ctx, c.command, recorderArgs(c.goos, cfg)...)
	stderr := &tailBuffer{limit: stderrTail}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open recorder output: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start recorder: %w", err)
	}

	exited := make(chan error, 1)
	go func() {
		exited <- cmd.Wait()
		close(exited)
	}()

	reader := bufio.NewReaderSize(stdout, 8192)
	primed := make(chan struct{})
	var peekErr error
	go func() {
		_, peekErr = reader.Peek(1)
		close(primed)
	}()

	session := &ffmpegSession{
		primed:  primed,
		reader:  reader,
		stdout:  stdout,
		stderr:  stderr,
		process: cmd.Process,
		exited:  exited,
	}

	select {
	case <-primed:
	case <-time.After(readyTimeout):
		return session, nil
	}
	if peekErr == nil {
		return session, nil
	}

	// The output closed before any audio arrived.
	var waitErr error
	select {
	case waitErr = <-exited:
	case <-time.After(stopTimeout):
		_ = cmd.Process.Kill()
		waitErr = <-exited
	}
	if waitErr != nil {
		return nil, fmt.Errorf("recorder exited before capture started: %w: %s", waitErr, stderr.String())
	}
	return nil, errors.New("recorder exited before capture started")
}

// recorderArgs builds the ffmpeg command line. The input format defaults to
// the native audio server of the host platform.
func recorderArgs(goos string, cfg ports.AudioConfig) []string {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	format, device := cfg.InputFormat, cfg.InputDevice
	if format == "" {
		switch goos {
		case "darwin":
			format = "avfoundation"
		case "windows":
			format = "dshow"
		default:
			format = "pulse"
		}
	}
	if device == "" || device == "default" {
		switch format {
		case "avfoundation":
			device = ":default"
		case "dshow":
			device = "audio=default"
		default:
			device = "default"
		}
	}

	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", format,
		"-i", device,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	}
}

type ffmpegSession struct {
	primed  <-chan struct{}
	reader  *bufio.Reader
	stdout  io.ReadCloser
	stderr  *tailBuffer
	process *os.Process
	exited  <-chan error

	stopOnce sync.Once
	stopErr  error
}

// Read waits for the startup peek so the buffered reader has one owner.
func (s *ffmpegSession) Read(p []byte) (int, error) {
	<-s.primed
	return s.reader.Read(p)
}

func (s *ffmpegSession) Close() error {
	return s.Stop()
}

// Stop interrupts the recorder so it flushes buffered audio, and kills it if
// it does not exit in time.
func (s *ffmpegSession) Stop() error {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		var waitErr error
		select {
		case waitErr = <-s.exited:
		case <-time.After(stopTimeout):
			if s.process != nil {
				_ = s.process.Kill()
			}
			waitErr = <-s.exited
		}
		s.stopErr = interruptedExit(waitErr)

		if err := s.stdout.Close(); err != nil && !errors.Is(err, os.ErrClosed) && s.stopErr == nil {
			s.stopErr = err
		}
		if s.stopErr != nil {
			if tail := s.stderr.String(); tail != "" {
				s.stopErr = fmt.Errorf("%w: %s", s.stopErr, tail)
			}
		}
	})
	return s.stopErr
}

// interruptedExit drops the non-zero exit status ffmpeg reports when it is
// interrupted; only failures to wait on the process are kept.
func interruptedExit(err error) error {
	var exitErr *exec.ExitError
	if err == nil || errors.As(err, &exitErr) {
		return nil
	}
	return err
}

// tailBuffer keeps the last limit bytes written to it. It is written by the
// exec copier goroutine and read by Start and Stop.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(string(b.buf))
}
