package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/curtaincall/pkg/audio"
	"github.com/MrWong99/curtaincall/pkg/provider/tts"
)

func newTestServer(t *testing.T, status int, captured *map[string]any) *httptest.Server {
	t.Helper()
	wav, err := audio.EncodeWAV(audio.Clip{PCM: make([]byte, 480), Format: audio.Output})
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/speech") {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization header: got %q", got)
		}
		if captured != nil {
			_ = json.NewDecoder(r.Body).Decode(captured)
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"boom"}}`))
			return
		}
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(wav)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSynthesize(t *testing.T) {
	var body map[string]any
	srv := newTestServer(t, http.StatusOK, &body)

	p, err := New("sk-test", WithBaseURL(srv.URL+"/v1/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	clip, err := p.Synthesize(context.Background(), tts.Request{Text: "To be.", Voice: VoiceFable})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if clip.Format != audio.Output || len(clip.PCM) != 480 {
		t.Errorf("unexpected clip: %s, %d bytes", clip.Format, len(clip.PCM))
	}

	for key, want := range map[string]string{
		"model":           "tts-1",
		"voice":           "fable",
		"input":           "To be.",
		"response_format": "wav",
	} {
		if got, _ := body[key].(string); got != want {
			t.Errorf("request %s: got %q, want %q", key, got, want)
		}
	}
}

func TestSynthesize_ServerError(t *testing.T) {
	srv := newTestServer(t, http.StatusInternalServerError, nil)
	p, _ := New("sk-test", WithBaseURL(srv.URL+"/v1/"))
	if _, err := p.Synthesize(context.Background(), tts.Request{Text: "x", Voice: VoiceNova}); err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestSynthesize_Validation(t *testing.T) {
	p, _ := New("sk-test", WithBaseURL("http://127.0.0.1:0/"))
	tests := []struct {
		name string
		req  tts.Request
	}{
		{"empty text", tts.Request{Voice: VoiceNova}},
		{"too long", tts.Request{Text: strings.Repeat("a", maxChars+1), Voice: VoiceNova}},
		{"unknown voice", tts.Request{Text: "hi", Voice: "kabir"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := p.Synthesize(context.Background(), tt.req); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestCasting(t *testing.T) {
	p, _ := New("sk-test")
	c := p.Casting()
	if c.Narrator != "fable" {
		t.Errorf("narrator: got %q", c.Narrator)
	}
	if len(c.Characters) != 5 {
		t.Errorf("character pool: got %v", c.Characters)
	}
	for _, v := range c.Characters {
		if v == c.Narrator {
			t.Errorf("narrator %q must not be in the character pool", v)
		}
	}
	if len(c.Soloists) != 6 {
		t.Errorf("soloists: got %v", c.Soloists)
	}
	if p.MaxChars() != 4000 {
		t.Errorf("MaxChars: got %d", p.MaxChars())
	}
	voices, err := p.ListVoices(context.Background())
	if err != nil || len(voices) != 6 {
		t.Fatalf("ListVoices: %v, %d voices", err, len(voices))
	}
}

func TestNew_EmptyKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty api key")
	}
}
