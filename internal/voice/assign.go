// Package voice assigns TTS voices to the speakers of a script.
//
// The narrator always reads with one fixed voice. Every other speaker is given
// the next voice from a fixed pool the first time it speaks, wrapping around
// when the pool is exhausted, and keeps that voice for the rest of the play.
package voice

import (
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/curtaincall/internal/script"
)

// Assigner hands out voices to speakers. It is safe for concurrent use.
type Assigner struct {
	mu       sync.Mutex
	narrator string
	pool     []string
	next     int
	assigned map[string]string
}

// New returns an Assigner. The narrator voice is removed from pool so that no
// character sounds like the narrator; if that leaves the pool empty every
// character falls back to the narrator voice.
func New(narrator string, pool []string) *Assigner {
	filtered := make([]string, 0, len(pool))
	for _, v := range pool {
		if v != narrator && v != "" {
			filtered = append(filtered, v)
		}
	}
	return &Assigner{
		narrator: narrator,
		pool:     filtered,
		assigned: make(map[string]string),
	}
}

// Narrator returns the narrator voice.
func (a *Assigner) Narrator() string { return a.narrator }

// Voice returns the voice for speaker, assigning one on first sight.
func (a *Assigner) Voice(speaker string) string {
	if speaker == script.Narrator {
		return a.narrator
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if v, ok := a.assigned[speaker]; ok {
		return v
	}
	v := a.narrator
	if len(a.pool) > 0 {
		v = a.pool[a.next%len(a.pool)]
		a.next++
	}
	a.assigned[speaker] = v
	return v
}

// Map returns a copy of the character assignments made so far. The narrator
// is not included.
func (a *Assigner) Map() map[string]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return maps.Clone(a.assigned)
}

// Cast pre-assigns voices for every dialogue speaker in segments, in order of
// first appearance, and returns the resulting map.
func (a *Assigner) Cast(segments []script.Segment) map[string]string {
	for _, s := range script.Speakers(segments) {
		a.Voice(s)
	}
	return a.Map()
}

// Pool returns the effective character pool after narrator filtering.
func (a *Assigner) Pool() []string {
	return slices.Clone(a.pool)
}
