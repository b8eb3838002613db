package ports

import (
	"context"
	"io"

	"saathi/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Available() bool
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// StreamingConfig describes provider-agnostic streaming settings.
// Language is bound when the stream starts and cannot change afterwards.
type StreamingConfig struct {
	SampleRate     int
	Channels       int
	Encoding       string
	Language       string
	InterimResults bool
	EndpointingMS  int
}

// StreamingSession is an active provider websocket session.
type StreamingSession interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Events() <-chan domain.TranscriptEvent
	Wait() error
	Close() error
}

// TranscriptionProvider starts streaming transcription sessions.
type TranscriptionProvider interface {
	Configured() bool
	StartStreaming(ctx context.Context, cfg StreamingConfig) (StreamingSession, error)
}

// RulesEngine rewrites transcripts using deterministic rules.
type RulesEngine interface {
	Apply(text string, language string) (string, error)
}

// Recognition is one in-flight single-shot capture.
// Result yields exactly one value and is then closed.
type Recognition interface {
	Result() <-chan domain.RecognitionResult
	Stop()
	Abort()
}

// SpeechRecognizer is the host speech-to-text capability. The language is bound
// at Start; changing it requires a new Recognition.
type SpeechRecognizer interface {
	Available() bool
	Start(ctx context.Context, language string) (Recognition, error)
}

// Synthesizer is the host text-to-speech capability. Speak blocks until the
// utterance finishes or ctx is cancelled. A nil voice uses the platform default.
type Synthesizer interface {
	Available() bool
	Voices(ctx context.Context) ([]domain.Voice, error)
	Speak(ctx context.Context, text string, voice *domain.Voice, language string) error
}

// AudioClip is a playable payload handed to an AudioPlayer. Location is a URL or
// a local file path; Data carries the raw payload when one was received.
type AudioClip struct {
	Location    string
	Data        []byte
	ContentType string
}

// AudioPlayer plays audio clips. Play blocks until playback finishes or ctx is
// cancelled.
type AudioPlayer interface {
	Available() bool
	Play(ctx context.Context, clip AudioClip) error
}

// ExchangeClient sends a transcript to the remote responder.
type ExchangeClient interface {
	Exchange(ctx context.Context, req domain.ExchangeRequest) (domain.ExchangeResult, error)
}

// PreferenceStore is a get/set key-value store.
type PreferenceStore interface {
	Get(key string) (string, bool, error)
	Set(key string, value string) error
}

// EventSink emits backend state/events to the UI.
type EventSink interface {
	SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason)
	TurnAppended(turn domain.Turn)
	TurnReplaced(turn domain.Turn)
	LanguageChanged(language domain.SupportedLanguage)
	SessionError(code domain.ErrorCode, detail string)
}
