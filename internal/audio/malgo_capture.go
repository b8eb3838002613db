package audio

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/gen2brain/malgo"

	"saathi/internal/ports"
)

var _ ports.AudioCapture = (*MalgoCapture)(nil)

// MalgoCapture reads microphone PCM through miniaudio without an external
// process.
type MalgoCapture struct {
	once      sync.Once
	ctx       *malgo.AllocatedContext
	initErr   error
	available bool
}

func NewMalgoCapture() *MalgoCapture {
	return &MalgoCapture{}
}

// Available reports whether a capture device exists.
func (c *MalgoCapture) Available() bool {
	if err := c.init(); err != nil {
		return false
	}
	return c.available
}

func (c *MalgoCapture) init() error {
	c.once.Do(func() {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{ThreadPriority: malgo.ThreadPriorityRealtime}, nil)
		if err != nil {
			c.initErr = fmt.Errorf("failed to init audio context: %w", err)
			return
		}
		c.ctx = ctx
		devices, err := ctx.Devices(malgo.Capture)
		c.available = err == nil && len(devices) > 0
	})
	return c.initErr
}

func (c *MalgoCapture) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	if err := c.init(); err != nil {
		return nil, err
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}

	buffer := newPCMBuffer(cfg.SampleRate * 2 * cfg.Channels)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	device, err := malgo.InitDevice(c.ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			buffer.Write(input)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init microphone: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("failed to start microphone: %w", err)
	}

	session := &malgoSession{device: device, buffer: buffer}
	go func() {
		<-ctx.Done()
		_ = session.Stop()
	}()
	return session, nil
}

// Close releases the audio context.
func (c *MalgoCapture) Close() error {
	if c.ctx == nil {
		return nil
	}
	err := c.ctx.Uninit()
	c.ctx.Free()
	c.ctx = nil
	return err
}

type malgoSession struct {
	device *malgo.Device
	buffer *pcmBuffer

	stopOnce sync.Once
	stopErr  error
}

func (s *malgoSession) Read(p []byte) (int, error) {
	return s.buffer.Read(p)
}

func (s *malgoSession) Close() error {
	return s.Stop()
}

func (s *malgoSession) Stop() error {
	s.stopOnce.Do(func() {
		s.stopErr = s.device.Stop()
		s.device.Uninit()
		s.buffer.Close()
	})
	return s.stopErr
}

// pcmBuffer hands device callback samples to a blocking reader. Read returns
// io.EOF once closed and drained.
type pcmBuffer struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	closed bool
}

func newPCMBuffer(capacity int) *pcmBuffer {
	b := &pcmBuffer{buf: make([]byte, 0, capacity)}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *pcmBuffer) Write(samples []byte) {
	b.mu.Lock()
	if !b.closed {
		b.buf = append(b.buf, samples...)
	}
	b.mu.Unlock()
	b.cond.Signal()
}

func (b *pcmBuffer) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.buf) == 0 && !b.closed {
		b.cond.Wait()
	}
	if len(b.buf) == 0 {
		return 0, io.EOF
	}

	n := copy(p, b.buf)
	b.buf = b.buf[n:]
	return n, nil
}

func (b *pcmBuffer) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.cond.Broadcast()
}
