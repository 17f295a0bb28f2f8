package coqui

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"github.com/MrWong99/curtaincall/pkg/audio"
	"github.com/MrWong99/curtaincall/pkg/provider/tts"
)

var mono22k = audio.Format{SampleRate: 22050, Channels: 1, BitsPerSample: 16}

func wavBytes(t *testing.T, samples int) []byte {
	t.Helper()
	wav, err := audio.EncodeWAV(audio.Clip{PCM: make([]byte, samples*2), Format: mono22k})
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	return wav
}

func TestNew_RequiresURL(t *testing.T) {
	t.Parallel()
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty serverURL")
	}
}

func TestParseAPIMode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    APIMode
		wantErr bool
	}{
		{"", APIModeStandard, false},
		{"standard", APIModeStandard, false},
		{"XTTS", APIModeXTTS, false},
		{"piper", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseAPIMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseAPIMode(%q) err = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseAPIMode(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if APIModeXTTS.String() != "xtts" || APIMode(7).String() != "APIMode(7)" {
		t.Error("unexpected APIMode.String output")
	}
}

func TestSynthesize_Standard(t *testing.T) {
	t.Parallel()
	wav := wavBytes(t, 220)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/tts" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("text") != "To be." || q.Get("speaker_id") != "p225" || q.Get("language_id") != "hi" {
			t.Errorf("query = %v", q)
		}
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(wav)
	}))
	defer srv.Close()

	p, err := New(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	clip, err := p.Synthesize(context.Background(), tts.Request{Text: "To be.", Voice: "p225", Language: "Hindi (हिंदी)"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if clip.Format != mono22k || len(clip.PCM) != 440 {
		t.Errorf("clip = %s, %d bytes", clip.Format, len(clip.PCM))
	}
}

func TestSynthesize_XTTS(t *testing.T) {
	t.Parallel()
	wav := wavBytes(t, 10)
	var got xttsBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/tts_to_audio/" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_, _ = w.Write(wav)
	}))
	defer srv.Close()

	p, err := New(srv.URL, WithAPIMode(APIModeXTTS), WithLanguage("de"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Synthesize(context.Background(), tts.Request{Text: "Sein.", Voice: "Damien Black", Language: "English"}); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	want := xttsBody{Text: "Sein.", SpeakerWav: "Damien Black", Language: "de"}
	if got != want {
		t.Errorf("body = %+v, want %+v", got, want)
	}
}

func TestSynthesize_Errors(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("text") {
		case "fail":
			http.Error(w, "model not loaded", http.StatusInternalServerError)
		default:
			_, _ = w.Write([]byte("not a wav"))
		}
	}))
	defer srv.Close()

	std, _ := New(srv.URL)
	xtts, _ := New(srv.URL, WithAPIMode(APIModeXTTS))

	tests := []struct {
		name    string
		p       *Provider
		req     tts.Request
		wantErr string
	}{
		{"status", std, tts.Request{Text: "fail"}, "status 500"},
		{"bad wav", std, tts.Request{Text: "hello"}, "coqui:"},
		{"empty text", std, tts.Request{}, "must not be empty"},
		{"too long", std, tts.Request{Text: strings.Repeat("a", maxChars+1)}, "limit"},
		{"xtts without voice", xtts, tts.Request{Text: "hello"}, "requires a voice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.p.Synthesize(context.Background(), tt.req)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestListVoices_Standard(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		details detailsResponse
		wantIDs []string
	}{
		{"multi speaker", detailsResponse{ModelName: "tts_models/en/vctk/vits", Speakers: []string{"p243", "p225"}}, []string{"p225", "p243"}},
		{"single speaker", detailsResponse{ModelName: "tts_models/en/ljspeech/vits"}, []string{""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/details" {
					t.Errorf("path = %s", r.URL.Path)
				}
				_ = json.NewEncoder(w).Encode(tt.details)
			}))
			defer srv.Close()

			p, _ := New(srv.URL)
			voices, err := p.ListVoices(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			var ids []string
			for _, v := range voices {
				ids = append(ids, v.ID)
				if v.Provider != "coqui" || v.Metadata["model_name"] != tt.details.ModelName {
					t.Errorf("voice = %+v", v)
				}
			}
			if !slices.Equal(ids, tt.wantIDs) {
				t.Errorf("ids = %q, want %q", ids, tt.wantIDs)
			}
		})
	}
}

func TestListVoices_XTTS(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/studio_speakers" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"Viktor Eka":{"speaker_embedding":[0.1]},"Andrew Chipper":{"speaker_embedding":[0.2]}}`))
	}))
	defer srv.Close()

	p, _ := New(srv.URL, WithAPIMode(APIModeXTTS))
	voices, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(voices) != 2 || voices[0].ID != "Andrew Chipper" || voices[1].ID != "Viktor Eka" {
		t.Errorf("voices = %+v", voices)
	}
}

func TestListVoices_ServerError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p, _ := New(srv.URL)
	if _, err := p.ListVoices(context.Background()); err == nil || !strings.Contains(err.Error(), "502") {
		t.Errorf("err = %v, want status 502", err)
	}
}

func TestCasting(t *testing.T) {
	t.Parallel()
	std, _ := New("http://localhost:5002")
	if c := std.Casting(); c.Narrator != "p226" || slices.Contains(c.Characters, "p226") {
		t.Errorf("standard casting = %+v", c)
	}

	xtts, _ := New("http://localhost:5002", WithAPIMode(APIModeXTTS), WithNarrator("Viktor Eka"))
	c := xtts.Casting()
	if c.Narrator != "Viktor Eka" || slices.Contains(c.Characters, "Viktor Eka") {
		t.Errorf("xtts casting = %+v", c)
	}
	if len(c.Characters) != len(xttsCasting.Characters)-1 {
		t.Errorf("characters = %d, want %d", len(c.Characters), len(xttsCasting.Characters)-1)
	}

	custom, _ := New("http://localhost:5002", WithNarrator("n"), WithCharacters([]string{"b", "a", "n"}))
	c = custom.Casting()
	if !slices.Equal(c.Characters, []string{"b", "a"}) || !slices.Equal(c.Soloists, []string{"a", "b", "n"}) {
		t.Errorf("custom casting = %+v", c)
	}
	if custom.MaxChars() != maxChars {
		t.Errorf("MaxChars = %d", custom.MaxChars())
	}
}
