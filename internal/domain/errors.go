package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotSupported        = errors.New("voice capability not supported")
	ErrBusy                = errors.New("session is busy")
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrExchangeFailure     = errors.New("exchange failed")
	ErrUnsupportedResponse = fmt.Errorf("%w: unsupported response", ErrExchangeFailure)
	ErrPlaybackFailure     = errors.New("playback failed")
	ErrAutoplayBlocked     = fmt.Errorf("%w: audio output blocked", ErrPlaybackFailure)
	ErrSuperseded          = fmt.Errorf("%w: superseded by a newer playback", ErrPlaybackFailure)
	ErrAlreadyActive       = errors.New("capture already active")
	ErrSessionClosed       = errors.New("session closed")
	ErrTurnNotFound        = errors.New("turn not found")
	ErrTurnFinal           = errors.New("turn is final")
	ErrRulesFailure        = errors.New("rules processing failed")
)
