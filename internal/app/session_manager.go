package app

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/curtaincall/internal/agent"
	"github.com/MrWong99/curtaincall/internal/config"
	"github.com/MrWong99/curtaincall/internal/play"
	"github.com/MrWong99/curtaincall/internal/render"
)

var (
	// ErrSessionNotFound is returned when no session has the requested id.
	ErrSessionNotFound = errors.New("app: session not found")

	// ErrAlreadyWritten is returned when writing is requested a second time.
	ErrAlreadyWritten = errors.New("app: play already written or in progress")

	// ErrNotWritten is returned when audio is requested before a final script
	// exists.
	ErrNotWritten = errors.New("app: play has no final script yet")

	// ErrRenderBusy is returned when a render is already running for the
	// session.
	ErrRenderBusy = errors.New("app: audio render already in progress")

	// ErrNoAudio is returned when no finished audio exists for the session.
	ErrNoAudio = errors.New("app: no audio rendered yet")
)

// Status is the writing state of a session.
type Status string

const (
	StatusPending Status = "pending"
	StatusWriting Status = "writing"
	StatusWritten Status = "written"
	StatusFailed  Status = "failed"
)

// AudioStatus is the rendering state of a session.
type AudioStatus string

const (
	AudioNone      AudioStatus = "none"
	AudioRendering AudioStatus = "rendering"
	AudioReady     AudioStatus = "ready"
	AudioFailed    AudioStatus = "failed"
)

// Session is one play: its request, the rounds recorded so far, the final
// script and the most recent audio render. All methods are safe for
// concurrent use.
type Session struct {
	ID        string
	Request   Request
	CreatedAt time.Time

	mu       sync.RWMutex
	status   Status
	err      error
	record   *play.Session
	warnings []string

	// pending holds the text of the round in progress until its closing
	// event arrives: the writer draft for discussions, the critique for
	// one-acts.
	pending string

	audioStatus AudioStatus
	audioErr    error
	audio       render.Result
	solo        bool
}

func newSession(req Request) *Session {
	maxRounds := req.Rounds
	if req.Mode == config.ModeOneAct {
		maxRounds = req.CritiqueRounds
	}
	return &Session{
		ID:        uuid.NewString(),
		Request:   req,
		CreatedAt: time.Now().UTC(),
		status:    StatusPending,
		record: play.New(play.Brief{
			Genre:     req.Genre,
			Theme:     req.Theme,
			Tone:      req.Tone,
			Language:  req.Language,
			MaxRounds: maxRounds,
		}),
		audioStatus: AudioNone,
	}
}

// CheckWrite reports whether writing could start now. It changes nothing;
// [App.Write] makes the same check atomically.
func (s *Session) CheckWrite() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.status != StatusPending {
		return ErrAlreadyWritten
	}
	return nil
}

// CheckRender reports whether a render could start now. It changes nothing;
// [App.Render] makes the same check atomically.
func (s *Session) CheckRender() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.status != StatusWritten {
		return ErrNotWritten
	}
	if s.audioStatus == AudioRendering {
		return ErrRenderBusy
	}
	return nil
}

func (s *Session) beginWriting() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusPending {
		return ErrAlreadyWritten
	}
	s.status = StatusWriting
	return nil
}

// observe records ev on the session.
func (s *Session) observe(ev agent.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch ev.Kind {
	case agent.KindWriterDone, agent.KindCritiqueDone:
		s.pending = ev.Text
	case agent.KindDirectorDone:
		s.record.AddRound(ev.Round, s.pending, ev.Text)
		s.pending = ""
	case agent.KindRevisionDone:
		s.record.AddRound(ev.Round, ev.Text, s.pending)
		s.pending = ""
	case agent.KindWarning:
		s.warnings = append(s.warnings, ev.Text)
	case agent.KindFinalDone:
		_ = s.record.Finalize(ev.Text)
		s.status = StatusWritten
	case agent.KindError:
		s.status = StatusFailed
		s.err = ev.Err
	}
}

// abort marks a session whose stream ended without a terminal event.
func (s *Session) abort(err error) {
	if err == nil {
		err = errors.New("writing stopped before the play was finished")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusWriting {
		s.status = StatusFailed
		s.err = err
	}
}

// Script returns the final script once writing has succeeded.
func (s *Session) Script() (string, bool) {
	return s.record.FinalScript()
}

// Record returns the underlying play record.
func (s *Session) Record() *play.Session { return s.record }

func (s *Session) beginRendering(solo bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusWritten {
		return ErrNotWritten
	}
	if s.audioStatus == AudioRendering {
		return ErrRenderBusy
	}
	s.audioStatus = AudioRendering
	s.audioErr = nil
	s.solo = solo
	return nil
}

func (s *Session) endRendering(res render.Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.audioStatus = AudioFailed
		s.audioErr = err
		return
	}
	s.audioStatus = AudioReady
	s.audio = res
}

// Audio returns the most recent successful render.
func (s *Session) Audio() (render.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.audioStatus != AudioReady {
		return render.Result{}, ErrNoAudio
	}
	return s.audio, nil
}

// SessionInfo is a point-in-time view of a [Session].
type SessionInfo struct {
	ID        string       `json:"id"`
	Request   Request      `json:"request"`
	CreatedAt time.Time    `json:"created_at"`
	Status    Status       `json:"status"`
	Error     string       `json:"error,omitempty"`
	Rounds    []play.Round `json:"rounds"`
	Warnings  []string     `json:"warnings,omitempty"`
	Script    string       `json:"script,omitempty"`
	Summary   string       `json:"summary"`

	Audio AudioInfo `json:"audio"`
}

// AudioInfo describes the audio state of a session.
type AudioInfo struct {
	Status     AudioStatus       `json:"status"`
	Error      string            `json:"error,omitempty"`
	Solo       bool              `json:"solo,omitempty"`
	Bytes      int               `json:"bytes,omitempty"`
	DurationMS int64             `json:"duration_ms,omitempty"`
	VoiceMap   map[string]string `json:"voice_map,omitempty"`
}

// Snapshot returns a copy of the session state.
func (s *Session) Snapshot() SessionInfo {
	snap := s.record.Snapshot()
	s.mu.RLock()
	defer s.mu.RUnlock()
	info := SessionInfo{
		ID:        s.ID,
		Request:   s.Request,
		CreatedAt: s.CreatedAt,
		Status:    s.status,
		Rounds:    snap.Rounds,
		Warnings:  slices.Clone(s.warnings),
		Script:    snap.FinalScript,
		Summary:   s.record.Summary(),
		Audio:     AudioInfo{Status: s.audioStatus, Solo: s.solo},
	}
	if s.err != nil {
		info.Error = s.err.Error()
	}
	if s.audioErr != nil {
		info.Audio.Error = s.audioErr.Error()
	}
	if s.audioStatus == AudioReady {
		info.Audio.Bytes = len(s.audio.WAV)
		info.Audio.DurationMS = s.audio.Duration.Milliseconds()
		info.Audio.VoiceMap = s.audio.VoiceMap
	}
	return info
}

// SessionManager is the in-memory session store. Sessions are lost on
// restart. All exported methods are safe for concurrent use.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionManager returns an empty store.
func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[string]*Session)}
}

// Create stores a new pending session for req. req must already be
// normalised.
func (sm *SessionManager) Create(req Request) *Session {
	s := newSession(req)
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.sessions[s.ID] = s
	return s
}

// Get returns the session with id.
func (sm *SessionManager) Get(id string) (*Session, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	s, ok := sm.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// List returns snapshots of all sessions, newest first.
func (sm *SessionManager) List() []SessionInfo {
	sm.mu.RLock()
	all := make([]*Session, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		all = append(all, s)
	}
	sm.mu.RUnlock()

	slices.SortFunc(all, func(a, b *Session) int { return b.CreatedAt.Compare(a.CreatedAt) })
	out := make([]SessionInfo, len(all))
	for i, s := range all {
		out[i] = s.Snapshot()
	}
	return out
}

// Delete removes the session with id.
func (sm *SessionManager) Delete(id string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if _, ok := sm.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	delete(sm.sessions, id)
	return nil
}

// Len returns the number of stored sessions.
func (sm *SessionManager) Len() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}
