package audio

import (
	"errors"
	"io"
	"testing"
	"time"
)

func TestPCMBufferReadBlocksUntilWrite(t *testing.T) {
	t.Parallel()

	buffer := newPCMBuffer(16)
	got := make(chan string, 1)
	go func() {
		p := make([]byte, 8)
		n, _ := buffer.Read(p)
		got <- string(p[:n])
	}()

	select {
	case early := <-got:
		t.Fatalf("read returned before any samples: %q", early)
	case <-time.After(20 * time.Millisecond):
	}

	buffer.Write([]byte("pcm"))
	select {
	case value := <-got:
		if value != "pcm" {
			t.Fatalf("unexpected samples: %q", value)
		}
	case <-time.After(time.Second):
		t.Fatalf("read never woke up")
	}
}

func TestPCMBufferDrainsThenEOF(t *testing.T) {
	t.Parallel()

	buffer := newPCMBuffer(16)
	buffer.Write([]byte("abcdef"))
	buffer.Close()
	buffer.Write([]byte("ignored"))

	p := make([]byte, 4)
	n, err := buffer.Read(p)
	if err != nil || string(p[:n]) != "abcd" {
		t.Fatalf("unexpected first read: %q %v", p[:n], err)
	}
	n, err = buffer.Read(p)
	if err != nil || string(p[:n]) != "ef" {
		t.Fatalf("unexpected second read: %q %v", p[:n], err)
	}
	if _, err := buffer.Read(p); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF after close, got %v", err)
	}
}

func TestPCMBufferCloseWakesReader(t *testing.T) {
	t.Parallel()

	buffer := newPCMBuffer(16)
	done := make(chan error, 1)
	go func() {
		_, err := buffer.Read(make([]byte, 4))
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	buffer.Close()

	select {
	case err := <-done:
		if !errors.Is(err, io.EOF) {
			t.Fatalf("expected EOF, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("close did not wake reader")
	}
}
