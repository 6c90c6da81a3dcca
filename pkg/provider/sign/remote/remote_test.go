package remote

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func classifier(t *testing.T, respond func(frame []byte) (int, string)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != predictEndpoint {
			http.NotFound(w, r)
			return
		}
		var req predictRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		frame, err := base64.StdEncoding.DecodeString(req.Frame)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		status, body := respond(frame)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPredict(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		body      string
		minConf   float64
		wantLabel string
		wantOK    bool
	}{
		{"label", `{"prediction":"H","confidence":0.93}`, 0, "H", true},
		{"no confidence field", `{"prediction":"A"}`, 0.5, "A", true},
		{"no hands", `{"prediction":"No hands detected"}`, 0, "", false},
		{"empty", `{"prediction":""}`, 0, "", false},
		{"below threshold", `{"prediction":"B","confidence":0.4}`, 0.6, "", false},
		{"at threshold", `{"prediction":"B","confidence":0.6}`, 0.6, "B", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := classifier(t, func([]byte) (int, string) { return http.StatusOK, tt.body })
			p, err := New(srv.URL, WithMinConfidence(tt.minConf))
			if err != nil {
				t.Fatal(err)
			}
			label, ok, err := p.Predict(context.Background(), []byte("jpeg"))
			if err != nil {
				t.Fatalf("Predict: %v", err)
			}
			if label != tt.wantLabel || ok != tt.wantOK {
				t.Errorf("Predict = %q, %v; want %q, %v", label, ok, tt.wantLabel, tt.wantOK)
			}
		})
	}
}

func TestPredict_SendsFrame(t *testing.T) {
	t.Parallel()

	got := make(chan []byte, 1)
	srv := classifier(t, func(frame []byte) (int, string) {
		got <- frame
		return http.StatusOK, `{"prediction":"C"}`
	})
	p, _ := New(srv.URL + "/")
	if _, _, err := p.Predict(context.Background(), []byte{0xFF, 0xD8, 0xFF}); err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if f := <-got; string(f) != "\xFF\xD8\xFF" {
		t.Errorf("server received %x", f)
	}
}

func TestPredict_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, "model not loaded"},
		{"bad json", http.StatusOK, "{"},
		{"error field", http.StatusOK, `{"error":"invalid image"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := classifier(t, func([]byte) (int, string) { return tt.status, tt.body })
			p, _ := New(srv.URL)
			if _, _, err := p.Predict(context.Background(), []byte("x")); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestPredict_EmptyFrame(t *testing.T) {
	t.Parallel()

	p, _ := New("http://127.0.0.1:1")
	label, ok, err := p.Predict(context.Background(), nil)
	if label != "" || ok || err != nil {
		t.Errorf("Predict(nil) = %q, %v, %v", label, ok, err)
	}
}

func TestNew_EmptyURL(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty base URL")
	}
}
