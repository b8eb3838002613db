package domain

import "time"

// Phase models the voice interaction lifecycle.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseListening  Phase = "listening"
	PhaseExchanging Phase = "exchanging"
	PhaseSpeaking   Phase = "speaking"
)

// SessionStateReason provides a structured reason for phase transitions.
type SessionStateReason string

const (
	SessionReasonReady            SessionStateReason = "ready"
	SessionReasonListening        SessionStateReason = "listening"
	SessionReasonCaptureRestarted SessionStateReason = "capture_restarted"
	SessionReasonNoTranscript     SessionStateReason = "no_transcript"
	SessionReasonCaptureFailed    SessionStateReason = "capture_failed"
	SessionReasonCaptureAborted   SessionStateReason = "capture_aborted"
	SessionReasonExchanging       SessionStateReason = "exchanging"
	SessionReasonExchangeFailed   SessionStateReason = "exchange_failed"
	SessionReasonSpeaking         SessionStateReason = "speaking"
	SessionReasonPlaybackFinished SessionStateReason = "playback_finished"
	SessionReasonPlaybackFailed   SessionStateReason = "playback_failed"
	SessionReasonLanguageNotice   SessionStateReason = "language_notice"
	SessionReasonClosed           SessionStateReason = "closed"
)

// ErrorCode identifies non-fatal and fatal backend errors surfaced to the UI.
type ErrorCode string

const (
	ErrorCodeStartup          ErrorCode = "startup"
	ErrorCodeVoiceUnavailable ErrorCode = "voice_unavailable"
	ErrorCodeTranscription    ErrorCode = "transcription"
	ErrorCodeRules            ErrorCode = "rules"
	ErrorCodeExchange         ErrorCode = "exchange"
	ErrorCodePlayback         ErrorCode = "playback"
	ErrorCodeLanguage         ErrorCode = "language"
)

// Role attributes a turn to a speaker.
type Role string

const (
	RoleUser         Role = "user"
	RoleAssistant    Role = "assistant"
	RoleSystemNotice Role = "system-notice"
)

// RenderState marks whether a turn may still be replaced.
type RenderState string

const (
	RenderFinal   RenderState = "final"
	RenderPending RenderState = "pending"
)

// Turn is one utterance in the conversation.
type Turn struct {
	ID          string      `json:"id"`
	Role        Role        `json:"role"`
	Text        string      `json:"text"`
	Timestamp   time.Time   `json:"timestamp"`
	Language    string      `json:"language"`
	RenderState RenderState `json:"renderState"`
}

// Pending reports whether the turn is a placeholder awaiting replacement.
func (t Turn) Pending() bool {
	return t.RenderState == RenderPending
}

// SupportedLanguage is one entry of the language catalog.
type SupportedLanguage struct {
	Code  string `json:"code" yaml:"code"`
	Label string `json:"label" yaml:"label"`
}

// UIStrings holds the localized strings for one language.
type UIStrings struct {
	Greeting          string `json:"greeting" yaml:"greeting"`
	Loading           string `json:"loading" yaml:"loading"`
	LanguageConfirmed string `json:"languageConfirmed" yaml:"languageConfirmed"`
	LanguageNotice    string `json:"languageNotice" yaml:"languageNotice"`
	ListeningLabel    string `json:"listeningLabel" yaml:"listeningLabel"`
	IdleLabel         string `json:"idleLabel" yaml:"idleLabel"`
	PlaybackError     string `json:"playbackError" yaml:"playbackError"`
	Acknowledgment    string `json:"acknowledgment" yaml:"acknowledgment"`
	ExchangeError     string `json:"exchangeError" yaml:"exchangeError"`
	VoiceUnavailable  string `json:"voiceUnavailable" yaml:"voiceUnavailable"`
}

// SessionState is the single source of truth the UI renders from.
type SessionState struct {
	Phase          Phase  `json:"phase"`
	ActiveLanguage string `json:"activeLanguage"`
	PendingTurnID  string `json:"pendingTurnId,omitempty"`
	LastError      string `json:"lastError,omitempty"`
}

// VoiceCapability is resolved once at startup.
type VoiceCapability struct {
	Capture   bool `json:"capture"`
	Synthesis bool `json:"synthesis"`
	Playback  bool `json:"playback"`
	Remote    bool `json:"remote"`
}

// Output reports whether any audible output path exists.
func (c VoiceCapability) Output() bool {
	return c.Synthesis || c.Playback
}

// Unavailable reports the fatal construction-time condition: nothing can listen,
// nothing can speak and there is no responder to fall back on.
func (c VoiceCapability) Unavailable() bool {
	return !c.Capture && !c.Output() && !c.Remote
}

// CaptureOutcome identifies how a single capture ended.
type CaptureOutcome string

const (
	CaptureTranscript CaptureOutcome = "transcript"
	CaptureEmpty      CaptureOutcome = "empty"
	CaptureError      CaptureOutcome = "error"
	CaptureAborted    CaptureOutcome = "aborted"
)

// RecognitionResult is the single result a capture produces.
type RecognitionResult struct {
	Outcome CaptureOutcome
	Text    string
	Err     error
}

// TranscriptKind identifies whether a stream event is partial or final text.
type TranscriptKind string

const (
	TranscriptKindPartial TranscriptKind = "partial"
	TranscriptKindFinal   TranscriptKind = "final"
)

// TranscriptEvent represents incremental transcription output from a provider.
type TranscriptEvent struct {
	Kind          TranscriptKind `json:"kind"`
	Text          string         `json:"text"`
	IsSpeechFinal bool           `json:"isSpeechFinal"`
}

// AudioResource is a playable reply: a URL, an in-memory payload, or both.
type AudioResource struct {
	URL         string `json:"url,omitempty"`
	Data        []byte `json:"-"`
	ContentType string `json:"contentType,omitempty"`
}

// Empty reports whether the resource has nothing to play.
func (r *AudioResource) Empty() bool {
	return r == nil || (r.URL == "" && len(r.Data) == 0)
}

// ExchangeRequest is sent to the remote responder.
type ExchangeRequest struct {
	Transcript string
	Language   string
}

// ExchangeResult is the responder's reply.
type ExchangeResult struct {
	Text  string
	Audio *AudioResource
}

// Voice is a synthesis voice reported by the host.
type Voice struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language"`
}
