// Package play records the state of one play-writing session: the brief the
// agents were given, each completed writer/director exchange and the final
// script.
//
// A Session is written by the goroutine driving the discussion and may be read
// concurrently (for example by an HTTP status handler) through [Session.Snapshot].
package play

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// DefaultMaxRounds is the round cap used when none is configured.
const DefaultMaxRounds = 5

// ErrAlreadyFinal is returned by [Session.Finalize] when a final script has
// already been recorded.
var ErrAlreadyFinal = errors.New("play: final script already recorded")

// Round is one completed exchange in the discussion.
type Round struct {
	// Number is 1-based.
	Number       int    `json:"number"`
	WriterDraft  string `json:"writer_draft"`
	DirectorNote string `json:"director_note"`
}

// Session holds the full state of a single play-writing session.
// The zero value is not usable; construct with [New].
type Session struct {
	mu          sync.RWMutex
	genre       string
	theme       string
	tone        string
	language    string
	maxRounds   int
	rounds      []Round
	finalScript string
	final       bool
}

// Brief is the creative brief a session was started with.
type Brief struct {
	Genre     string `json:"genre"`
	Theme     string `json:"theme"`
	Tone      string `json:"tone"`
	Language  string `json:"language"`
	MaxRounds int    `json:"max_rounds"`
}

// New creates an empty session for b. A MaxRounds below 1 is replaced with
// [DefaultMaxRounds].
func New(b Brief) *Session {
	if b.MaxRounds < 1 {
		b.MaxRounds = DefaultMaxRounds
	}
	return &Session{
		genre:     b.Genre,
		theme:     b.Theme,
		tone:      b.Tone,
		language:  b.Language,
		maxRounds: b.MaxRounds,
	}
}

// AddRound appends a completed exchange.
func (s *Session) AddRound(number int, writerDraft, directorNote string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rounds = append(s.rounds, Round{Number: number, WriterDraft: writerDraft, DirectorNote: directorNote})
}

// Finalize records the polished script. It may be called once.
func (s *Session) Finalize(script string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.final {
		return ErrAlreadyFinal
	}
	s.finalScript = script
	s.final = true
	return nil
}

// FinalScript returns the recorded final script and whether one exists.
func (s *Session) FinalScript() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.finalScript, s.final
}

// Snapshot is a point-in-time copy of a [Session].
type Snapshot struct {
	Brief
	Rounds      []Round `json:"rounds"`
	FinalScript string  `json:"final_script,omitempty"`
}

// Snapshot returns a copy of the session state that is safe to retain.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rounds := make([]Round, len(s.rounds))
	copy(rounds, s.rounds)
	return Snapshot{
		Brief: Brief{
			Genre:     s.genre,
			Theme:     s.theme,
			Tone:      s.tone,
			Language:  s.language,
			MaxRounds: s.maxRounds,
		},
		Rounds:      rounds,
		FinalScript: s.finalScript,
	}
}

// Summary returns a brief plain-text description of the session.
func (s *Session) Summary() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lines := []string{
		"Genre : " + s.genre,
		"Theme : " + s.theme,
		"Tone  : " + s.tone,
		fmt.Sprintf("Rounds: %d / %d", len(s.rounds), s.maxRounds),
	}
	return strings.Join(lines, "\n")
}
