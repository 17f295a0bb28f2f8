package discussion

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/curtaincall/internal/agent"
	"github.com/MrWong99/curtaincall/internal/observe"
	"github.com/MrWong99/curtaincall/pkg/provider/llm"
	"github.com/MrWong99/curtaincall/pkg/provider/llm/mock"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

func newController(t *testing.T, p *mock.Provider) *agent.Controller {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return &agent.Controller{LLM: p, Provider: "mock", Metrics: m}
}

func collect(ch <-chan agent.Event) []agent.Event {
	var out []agent.Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func ofKind(events []agent.Event, k agent.Kind) []agent.Event {
	var out []agent.Event
	for _, ev := range events {
		if ev.Kind == k {
			out = append(out, ev)
		}
	}
	return out
}

func stop(text string) mock.Response {
	return mock.Response{Text: text, FinishReason: llm.FinishStop}
}

func TestRun_ThreeRounds(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Responses: []mock.Response{
		stop("W1"), stop("D1"),
		stop("W2"), stop("D2"),
		stop("W3"), stop("D3"),
		stop("FINAL SCRIPT"),
	}}
	s := New(Config{Genre: "Comedy", Theme: "AI bakery", Tone: "absurd", Language: "English", MaxRounds: 3}, newController(t, p))

	events := collect(s.Run(context.Background()))

	starts := ofKind(events, agent.KindRoundStart)
	if len(starts) != 3 {
		t.Fatalf("got %d round_start events, want 3", len(starts))
	}
	for i, ev := range starts {
		if ev.Round != i+1 || ev.Total != 3 {
			t.Errorf("round_start %d = %+v", i, ev)
		}
	}
	if n := len(ofKind(events, agent.KindWriterDone)); n != 3 {
		t.Errorf("writer_done = %d, want 3", n)
	}
	if n := len(ofKind(events, agent.KindDirectorDone)); n != 3 {
		t.Errorf("director_done = %d, want 3", n)
	}
	finals := ofKind(events, agent.KindFinalDone)
	if len(finals) != 1 || finals[0].Text != "FINAL SCRIPT" {
		t.Fatalf("final_done = %+v", finals)
	}
	if last := events[len(events)-1]; last.Kind != agent.KindFinalDone {
		t.Errorf("last event = %s, want final_done", last.Kind)
	}
	if got, want := p.CallCount(), 2*3+1; got != want {
		t.Errorf("calls = %d, want %d", got, want)
	}

	snap := s.Play().Snapshot()
	if len(snap.Rounds) != 3 || snap.Rounds[1].WriterDraft != "W2" || snap.Rounds[1].DirectorNote != "D2" {
		t.Errorf("rounds = %+v", snap.Rounds)
	}
	if snap.FinalScript != "FINAL SCRIPT" {
		t.Errorf("FinalScript = %q", snap.FinalScript)
	}
}

func TestRun_HistoriesCrossFeed(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Responses: []mock.Response{
		stop("W1"), stop("D1"),
		stop("W2"), stop("D2"),
		stop("FINAL"),
	}}
	s := New(Config{Genre: "Drama", Theme: "a lighthouse", Tone: "bleak", Language: "Hindi", MaxRounds: 2}, newController(t, p))
	collect(s.Run(context.Background()))

	// Writer, round 2.
	w2 := p.Request(2).Messages
	if len(w2) != 4 {
		t.Fatalf("writer round 2 has %d messages, want 4", len(w2))
	}
	if !strings.Contains(w2[0].Content, "Theme: a lighthouse") || w2[1].Content != "W1" {
		t.Errorf("writer history = %+v", w2[:2])
	}
	if w2[2].Role != llm.RoleUser || w2[2].Content != "[Director's feedback]\nD1" {
		t.Errorf("director feedback message = %+v", w2[2])
	}
	if !strings.HasPrefix(w2[3].Content, "Round 2 of 2.") || !strings.Contains(w2[3].Content, "Hindi") {
		t.Errorf("revise prompt = %q", w2[3].Content)
	}

	// Director, round 2.
	d2 := p.Request(3).Messages
	wantRoles := []string{llm.RoleUser, llm.RoleAssistant, llm.RoleUser, llm.RoleUser}
	if len(d2) != len(wantRoles) {
		t.Fatalf("director round 2 has %d messages, want %d", len(d2), len(wantRoles))
	}
	for i, r := range wantRoles {
		if d2[i].Role != r {
			t.Errorf("director message %d role = %s, want %s", i, d2[i].Role, r)
		}
	}
	if d2[2].Content != "W2" || !strings.HasPrefix(d2[3].Content, "[Round 2 of 2]") || !strings.Contains(d2[3].Content, "\n\nW2\n\n") {
		t.Errorf("director messages = %+v", d2[2:])
	}

	// Final call uses the director history plus the final-round prompt.
	final := p.Request(4)
	if len(final.Messages) != 5 || final.Messages[3].Content != "D2" {
		t.Errorf("final messages = %+v", final.Messages)
	}
	if !strings.Contains(final.Messages[4].Content, "FINAL round") {
		t.Errorf("final prompt = %q", final.Messages[4].Content)
	}
	if final.MaxTokens != DefaultMaxTokensFinal {
		t.Errorf("final MaxTokens = %d", final.MaxTokens)
	}
}

func TestRun_FinalContinuation(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Responses: []mock.Response{
		stop("W1"), stop("D1"),
		stop("W2"), stop("D2"),
		{Text: "ACT ONE ", FinishReason: llm.FinishMaxTokens},
		{Text: "ACT TWO ", FinishReason: llm.FinishMaxTokens},
		stop("CURTAIN"),
	}}
	s := New(Config{MaxRounds: 2}, newController(t, p))
	events := collect(s.Run(context.Background()))

	if got, want := p.CallCount(), 2*2+3; got != want {
		t.Errorf("calls = %d, want %d", got, want)
	}
	finals := ofKind(events, agent.KindFinalDone)
	if len(finals) != 1 || finals[0].Text != "ACT ONE ACT TWO CURTAIN" {
		t.Errorf("final_done = %+v", finals)
	}
	if n := len(ofKind(events, agent.KindWarning)); n != 2 {
		t.Errorf("warnings = %d, want 2", n)
	}
}

func TestRun_RoundTruncationWarns(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Responses: []mock.Response{
		{Text: "W1", FinishReason: llm.FinishLength},
		{Text: "D1", FinishReason: llm.FinishLength},
		stop("FINAL"),
	}}
	s := New(Config{MaxRounds: 1}, newController(t, p))
	events := collect(s.Run(context.Background()))

	warnings := ofKind(events, agent.KindWarning)
	if len(warnings) != 2 {
		t.Fatalf("warnings = %+v", warnings)
	}
	if !strings.HasPrefix(warnings[0].Text, "Round 1 Writer response was truncated") {
		t.Errorf("writer warning = %q", warnings[0].Text)
	}
	if warnings[1].Text != "Round 1 Director response was truncated." {
		t.Errorf("director warning = %q", warnings[1].Text)
	}
	if p.CallCount() != 3 {
		t.Errorf("round responses must not be continued, calls = %d", p.CallCount())
	}
}

func TestRun_ProviderErrorStops(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		responses []mock.Response
		prefix    string
		calls     int
	}{
		{
			name:      "writer",
			responses: []mock.Response{{StartErr: errors.New("rate limited")}},
			prefix:    "Writer error:",
			calls:     1,
		},
		{
			name:      "director",
			responses: []mock.Response{stop("W1"), {Text: "partial", StreamErr: "overloaded"}},
			prefix:    "Director error:",
			calls:     2,
		},
		{
			name:      "final",
			responses: []mock.Response{stop("W1"), stop("D1"), {StartErr: errors.New("boom")}},
			prefix:    "Final script error:",
			calls:     3,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := &mock.Provider{Responses: tc.responses}
			s := New(Config{MaxRounds: 1}, newController(t, p))
			events := collect(s.Run(context.Background()))

			last := events[len(events)-1]
			if last.Kind != agent.KindError {
				t.Fatalf("last event = %+v, want error", last)
			}
			if !strings.HasPrefix(last.Err.Error(), tc.prefix) {
				t.Errorf("error = %q, want prefix %q", last.Err, tc.prefix)
			}
			var perr *agent.ProviderError
			if !errors.As(last.Err, &perr) {
				t.Errorf("error %v does not wrap *agent.ProviderError", last.Err)
			}
			if n := len(ofKind(events, agent.KindError)); n != 1 {
				t.Errorf("error events = %d, want 1", n)
			}
			if len(ofKind(events, agent.KindFinalDone)) != 0 {
				t.Error("final_done emitted after error")
			}
			if p.CallCount() != tc.calls {
				t.Errorf("calls = %d, want %d", p.CallCount(), tc.calls)
			}
		})
	}
}

func TestRun_Cancelled(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Responses: []mock.Response{stop("x")}}
	s := New(Config{MaxRounds: 3}, newController(t, p))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	events := collect(s.Run(ctx))
	if len(events) != 0 {
		t.Errorf("cancelled run produced events: %+v", events)
	}
	if p.CallCount() != 0 {
		t.Errorf("cancelled run made %d calls", p.CallCount())
	}
}

func TestRun_SingleUse(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Responses: []mock.Response{stop("x")}}
	s := New(Config{MaxRounds: 1}, newController(t, p))
	collect(s.Run(context.Background()))

	events := collect(s.Run(context.Background()))
	if len(events) != 1 || !errors.Is(events[0].Err, ErrAlreadyRun) {
		t.Errorf("second run events = %+v", events)
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	s := New(Config{}, &agent.Controller{LLM: &mock.Provider{}})
	if s.cfg.MaxRounds != 5 || s.cfg.Language != "English" {
		t.Errorf("cfg = %+v", s.cfg)
	}
}
