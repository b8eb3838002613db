package speech

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"saathi/internal/ports"
)

// streamWriter adapts a provider stream to io.Writer so captured audio can be
// copied into it.
type streamWriter struct {
	stream ports.StreamingSession
}

func (w streamWriter) Write(p []byte) (int, error) {
	if err := w.stream.SendAudio(p); err != nil {
		return 0, sendError{err: err}
	}
	return len(p), nil
}

type sendError struct {
	err error
}

func (e sendError) Error() string { return e.err.Error() }

func (e sendError) Unwrap() error { return e.err }

// forwardAudio copies captured audio into the stream in chunkSize reads until
// the capture ends. A capture closed by Stop ends the copy cleanly.
func forwardAudio(audio io.Reader, stream ports.StreamingSession, chunkSize int) error {
	if chunkSize < 256 {
		chunkSize = 4096
	}
	// Wrapping audio hides any WriterTo so every send stays within chunkSize.
	source := struct{ io.Reader }{audio}
	_, err := io.CopyBuffer(streamWriter{stream: stream}, source, make([]byte, chunkSize))

	var send sendError
	switch {
	case errors.As(err, &send):
		return fmt.Errorf("failed to stream audio: %w", send.err)
	case err == nil, errors.Is(err, os.ErrClosed):
		return nil
	default:
		return fmt.Errorf("audio capture error: %w", err)
	}
}

// awaitStream waits for the provider to flush its last results. A stream that
// outlives timeout is closed.
func awaitStream(stream ports.StreamingSession, timeout time.Duration) error {
	flushed := make(chan error, 1)
	go func() { flushed <- stream.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-flushed:
		return err
	case <-timer.C:
		_ = stream.Close()
		return <-flushed
	}
}
