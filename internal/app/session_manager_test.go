package app

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/curtaincall/internal/agent"
	"github.com/MrWong99/curtaincall/internal/config"
	"github.com/MrWong99/curtaincall/internal/play"
	"github.com/MrWong99/curtaincall/internal/render"
)

func TestSessionManager(t *testing.T) {
	t.Parallel()
	sm := NewSessionManager()
	first := sm.Create(Request{Mode: config.ModeDiscussion, Theme: "a", Rounds: 2})
	second := sm.Create(Request{Mode: config.ModeOneAct, Theme: "b"})

	if first.ID == second.ID || len(first.ID) != 36 {
		t.Errorf("ids = %q, %q", first.ID, second.ID)
	}
	got, err := sm.Get(first.ID)
	if err != nil || got != first {
		t.Errorf("Get = %v, %v", got, err)
	}
	if list := sm.List(); len(list) != 2 {
		t.Errorf("List = %d entries", len(list))
	}
	if err := sm.Delete(first.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := sm.Get(first.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get after delete err = %v", err)
	}
	if err := sm.Delete("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Delete missing err = %v", err)
	}
	if sm.Len() != 1 {
		t.Errorf("Len = %d", sm.Len())
	}
}

func TestSessionManager_ListNewestFirst(t *testing.T) {
	t.Parallel()
	sm := NewSessionManager()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	var want []string
	for i := range 3 {
		s := sm.Create(Request{Mode: config.ModeOneAct, Theme: fmt.Sprint(i)})
		s.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		want = append([]string{s.ID}, want...)
	}
	var got []string
	for _, info := range sm.List() {
		got = append(got, info.ID)
	}
	if !slices.Equal(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestSessionManager_Concurrent(t *testing.T) {
	t.Parallel()
	sm := NewSessionManager()
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := sm.Create(Request{Mode: config.ModeOneAct, Theme: "t"})
			if _, err := sm.Get(s.ID); err != nil {
				t.Errorf("Get: %v", err)
			}
			_ = sm.List()
		}()
	}
	wg.Wait()
	if sm.Len() != 20 {
		t.Errorf("Len = %d, want 20", sm.Len())
	}
}

func TestSession_ObserveDiscussion(t *testing.T) {
	t.Parallel()
	s := newSession(Request{Mode: config.ModeDiscussion, Theme: "t", Rounds: 2})
	if err := s.beginWriting(); err != nil {
		t.Fatal(err)
	}
	if err := s.beginWriting(); !errors.Is(err, ErrAlreadyWritten) {
		t.Errorf("second beginWriting err = %v", err)
	}

	for _, ev := range []agent.Event{
		{Kind: agent.KindWriterDone, Round: 1, Text: "draft one"},
		{Kind: agent.KindDirectorDone, Round: 1, Text: "note one"},
		{Kind: agent.KindWarning, Text: "continuation limit reached"},
		{Kind: agent.KindFinalDone, Text: "FINAL"},
	} {
		s.observe(ev)
	}

	info := s.Snapshot()
	if info.Status != StatusWritten || info.Script != "FINAL" {
		t.Errorf("status = %s, script = %q", info.Status, info.Script)
	}
	want := []play.Round{{Number: 1, WriterDraft: "draft one", DirectorNote: "note one"}}
	if !slices.Equal(info.Rounds, want) {
		t.Errorf("rounds = %+v, want %+v", info.Rounds, want)
	}
	if !slices.Equal(info.Warnings, []string{"continuation limit reached"}) {
		t.Errorf("warnings = %v", info.Warnings)
	}
	if script, ok := s.Script(); !ok || script != "FINAL" {
		t.Errorf("Script = %q, %v", script, ok)
	}
}

func TestSession_ObserveOneAct(t *testing.T) {
	t.Parallel()
	s := newSession(Request{Mode: config.ModeOneAct, Theme: "t", CritiqueRounds: 3})
	_ = s.beginWriting()
	s.observe(agent.Event{Kind: agent.KindCritiqueDone, Round: 1, Text: "too long"})
	s.observe(agent.Event{Kind: agent.KindRevisionDone, Round: 1, Text: "shorter"})

	info := s.Snapshot()
	want := []play.Round{{Number: 1, WriterDraft: "shorter", DirectorNote: "too long"}}
	if !slices.Equal(info.Rounds, want) {
		t.Errorf("rounds = %+v, want %+v", info.Rounds, want)
	}
	if info.Status != StatusWriting {
		t.Errorf("status = %s, want writing", info.Status)
	}
	if s.Record().Snapshot().MaxRounds != 3 {
		t.Errorf("max rounds = %d, want critique rounds", s.Record().Snapshot().MaxRounds)
	}
}

func TestSession_Failures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		apply   func(s *Session)
		wantErr string
	}{
		{"error event", func(s *Session) {
			s.observe(agent.Event{Kind: agent.KindError, Err: errors.New("llm down")})
		}, "llm down"},
		{"abort without cause", func(s *Session) { s.abort(nil) }, "writing stopped before the play was finished"},
		{"abort with cause", func(s *Session) { s.abort(errors.New("client left")) }, "client left"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := newSession(Request{Mode: config.ModeOneAct, Theme: "t"})
			_ = s.beginWriting()
			tt.apply(s)
			info := s.Snapshot()
			if info.Status != StatusFailed || info.Error != tt.wantErr {
				t.Errorf("status = %s, error = %q", info.Status, info.Error)
			}
		})
	}
}

func TestSession_AbortKeepsWritten(t *testing.T) {
	t.Parallel()
	s := newSession(Request{Mode: config.ModeOneAct, Theme: "t"})
	_ = s.beginWriting()
	s.observe(agent.Event{Kind: agent.KindFinalDone, Text: "done"})
	s.abort(errors.New("late"))
	if info := s.Snapshot(); info.Status != StatusWritten || info.Error != "" {
		t.Errorf("status = %s, error = %q", info.Status, info.Error)
	}
}

func TestSession_RenderLifecycle(t *testing.T) {
	t.Parallel()
	s := newSession(Request{Mode: config.ModeOneAct, Theme: "t"})
	if err := s.beginRendering(false); !errors.Is(err, ErrNotWritten) {
		t.Fatalf("render before writing err = %v", err)
	}
	if err := s.CheckRender(); !errors.Is(err, ErrNotWritten) {
		t.Errorf("CheckRender before writing err = %v", err)
	}
	if err := s.CheckWrite(); err != nil {
		t.Errorf("CheckWrite on pending session: %v", err)
	}
	_ = s.beginWriting()
	if err := s.CheckWrite(); !errors.Is(err, ErrAlreadyWritten) {
		t.Errorf("CheckWrite while writing err = %v", err)
	}
	s.observe(agent.Event{Kind: agent.KindFinalDone, Text: "done"})

	if err := s.beginRendering(true); err != nil {
		t.Fatal(err)
	}
	if err := s.beginRendering(false); !errors.Is(err, ErrRenderBusy) {
		t.Errorf("concurrent render err = %v", err)
	}
	if err := s.CheckRender(); !errors.Is(err, ErrRenderBusy) {
		t.Errorf("CheckRender while rendering err = %v", err)
	}
	s.endRendering(render.Result{}, errors.New("tts quota"))
	if _, err := s.Audio(); !errors.Is(err, ErrNoAudio) {
		t.Errorf("Audio after failure err = %v", err)
	}
	if info := s.Snapshot().Audio; info.Status != AudioFailed || info.Error != "tts quota" || !info.Solo {
		t.Errorf("audio = %+v", info)
	}

	if err := s.beginRendering(false); err != nil {
		t.Fatalf("retry: %v", err)
	}
	res := render.Result{WAV: make([]byte, 100), VoiceMap: map[string]string{"A": "alloy"}, Duration: 1500 * time.Millisecond}
	s.endRendering(res, nil)

	got, err := s.Audio()
	if err != nil || len(got.WAV) != 100 {
		t.Errorf("Audio = %d bytes, %v", len(got.WAV), err)
	}
	info := s.Snapshot().Audio
	if info.Status != AudioReady || info.Bytes != 100 || info.DurationMS != 1500 || info.VoiceMap["A"] != "alloy" || info.Solo || info.Error != "" {
		t.Errorf("audio = %+v", info)
	}
}
