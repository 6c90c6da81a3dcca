package openai

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/MrWong99/signbridge/pkg/provider/stt"
)

func TestBaseLanguage(t *testing.T) {
	tests := []struct {
		lang, fallback, want string
	}{
		{"en-US", "", "en"},
		{"de_DE", "", "de"},
		{"", "fr", "fr"},
		{"", "", ""},
		{"EN", "", "en"},
	}
	for _, tt := range tests {
		if got := baseLanguage(tt.lang, tt.fallback); got != tt.want {
			t.Errorf("baseLanguage(%q, %q) = %q, want %q", tt.lang, tt.fallback, got, tt.want)
		}
	}
}

func TestKeywordPrompt(t *testing.T) {
	got := keywordPrompt([]stt.KeywordBoost{{Keyword: "Ingrid"}, {Keyword: ""}, {Keyword: "Brno"}})
	if got != "Ingrid, Brno" {
		t.Errorf("keywordPrompt = %q", got)
	}
	if keywordPrompt(nil) != "" {
		t.Error("expected empty prompt for no keywords")
	}
}

func TestNew_RequiresKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty api key")
	}
}

func TestTranscribe_AgainstCompatibleServer(t *testing.T) {
	var (
		mu       sync.Mutex
		gotModel string
		gotLang  string
		gotFile  []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(f)
		mu.Lock()
		gotModel = r.FormValue("model")
		gotLang = r.FormValue("language")
		gotFile = data
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text":"  hello there  "}`)
	}))
	defer srv.Close()

	p, err := New("sk-test", WithBaseURL(srv.URL), WithModel("whisper-large"))
	if err != nil {
		t.Fatal(err)
	}
	pcm := make([]byte, 3200)
	tr, err := p.Transcribe(context.Background(), stt.Request{Audio: pcm, SampleRate: 16000, Channels: 1, Language: "en-GB"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "hello there" {
		t.Errorf("Text = %q, want %q", tr.Text, "hello there")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotModel != "whisper-large" {
		t.Errorf("model = %q", gotModel)
	}
	if gotLang != "en" {
		t.Errorf("language = %q, want en", gotLang)
	}
	if stt.DetectFormat(gotFile) != stt.FormatWAV {
		t.Errorf("uploaded clip format = %q, want wav", stt.DetectFormat(gotFile))
	}
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	p, _ := New("sk-test", WithBaseURL("http://127.0.0.1:1"))
	tr, err := p.Transcribe(context.Background(), stt.Request{})
	if err != nil || tr.Text != "" {
		t.Errorf("Transcribe(empty) = %+v, %v", tr, err)
	}
}
