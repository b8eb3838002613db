// Package conversation keeps the ordered record of turns for one session.
package conversation

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"saathi/internal/domain"
)

// Log is an append-only record of turns. Only pending turns may be replaced,
// and only in place.
type Log struct {
	mu    sync.RWMutex
	turns []domain.Turn
	index map[string]int

	now   func() time.Time
	newID func() string
}

// Option customizes a Log.
type Option func(*Log)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// WithIDGenerator overrides turn ID generation.
func WithIDGenerator(newID func() string) Option {
	return func(l *Log) { l.newID = newID }
}

func NewLog(opts ...Option) *Log {
	l := &Log{
		index: make(map[string]int),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append records a final turn.
func (l *Log) Append(role domain.Role, text string, language string) domain.Turn {
	return l.append(role, text, language, domain.RenderFinal)
}

// AppendPending records a placeholder turn that must later be replaced.
func (l *Log) AppendPending(role domain.Role, text string, language string) domain.Turn {
	return l.append(role, text, language, domain.RenderPending)
}

func (l *Log) append(role domain.Role, text string, language string, state domain.RenderState) domain.Turn {
	l.mu.Lock()
	defer l.mu.Unlock()

	turn := domain.Turn{
		ID:          l.newID(),
		Role:        role,
		Text:        text,
		Timestamp:   l.now(),
		Language:    language,
		RenderState: state,
	}
	l.index[turn.ID] = len(l.turns)
	l.turns = append(l.turns, turn)
	return turn
}

// Replace finalizes a pending turn in place, keeping its ID and position.
func (l *Log) Replace(id string, role domain.Role, text string, language string) (domain.Turn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.index[id]
	if !ok {
		return domain.Turn{}, fmt.Errorf("%w: %s", domain.ErrTurnNotFound, id)
	}
	if !l.turns[pos].Pending() {
		return domain.Turn{}, fmt.Errorf("%w: %s", domain.ErrTurnFinal, id)
	}

	turn := domain.Turn{
		ID:          id,
		Role:        role,
		Text:        text,
		Timestamp:   l.now(),
		Language:    language,
		RenderState: domain.RenderFinal,
	}
	l.turns[pos] = turn
	return turn, nil
}

// Get returns the turn with the given ID.
func (l *Log) Get(id string) (domain.Turn, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.index[id]
	if !ok {
		return domain.Turn{}, false
	}
	return l.turns[pos], true
}

// Turns returns a copy of all turns in order.
func (l *Log) Turns() []domain.Turn {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Turn, len(l.turns))
	copy(out, l.turns)
	return out
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.turns)
}
