package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/signbridge/internal/resilience"
)

func serve(ctx context.Context, t *testing.T, h *Handler, path string) (int, result) {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)
	req := httptest.NewRequest("GET", path, nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return rec.Code, body
}

func ok(name string) Checker {
	return Checker{Name: name, Check: func(context.Context) error { return nil }}
}

func failing(name, msg string) Checker {
	return Checker{Name: name, Check: func(context.Context) error { return errors.New(msg) }}
}

// ─── /healthz ────────────────────────────────────────────────────────────────

func TestHealthz_AlwaysOK(t *testing.T) {
	t.Parallel()

	code, body := serve(context.Background(), t, New(WithChecker(failing("sign", "down"))), "/healthz")
	if code != http.StatusOK || body.Status != "ok" {
		t.Errorf("got %d %q, want 200 ok", code, body.Status)
	}
	if body.Stats != nil {
		t.Errorf("stats = %v, want omitted", body.Stats)
	}
}

func TestHealthz_ReportsStats(t *testing.T) {
	t.Parallel()

	h := New(WithStats(func() any {
		return map[string]int{"rooms": 2, "members": 3}
	}))
	_, body := serve(context.Background(), t, h, "/healthz")

	stats, isMap := body.Stats.(map[string]any)
	if !isMap {
		t.Fatalf("stats = %T, want object", body.Stats)
	}
	if stats["rooms"] != float64(2) || stats["members"] != float64(3) {
		t.Errorf("stats = %v", stats)
	}
}

// ─── /readyz ─────────────────────────────────────────────────────────────────

func TestReadyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		checkers   []Checker
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name:       "all pass",
			checkers:   []Checker{ok("rooms"), ok("sign")},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"rooms": "ok", "sign": "ok"},
		},
		{
			name:       "one fails",
			checkers:   []Checker{ok("rooms"), failing("sign", "connection refused")},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{"rooms": "ok", "sign": "fail: connection refused"},
		},
		{
			name:       "all fail",
			checkers:   []Checker{failing("stt", "timeout"), failing("tts", "quota")},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{"stt": "fail: timeout", "tts": "fail: quota"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			opts := make([]Option, 0, len(tt.checkers))
			for _, c := range tt.checkers {
				opts = append(opts, WithChecker(c))
			}
			code, body := serve(context.Background(), t, New(opts...), "/readyz")
			if code != tt.wantCode || body.Status != tt.wantStatus {
				t.Errorf("got %d %q, want %d %q", code, body.Status, tt.wantCode, tt.wantStatus)
			}
			for name, want := range tt.wantChecks {
				if got := body.Checks[name]; got != want {
					t.Errorf("check %q = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestReadyz_ChecksRunConcurrently(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	wait := func(context.Context) error {
		<-release
		return nil
	}
	started := make(chan struct{}, 2)
	signal := func(ctx context.Context) error {
		started <- struct{}{}
		return wait(ctx)
	}
	h := New(
		WithChecker(Checker{Name: "a", Check: signal}),
		WithChecker(Checker{Name: "b", Check: signal}),
	)

	go func() {
		for range 2 {
			select {
			case <-started:
			case <-time.After(2 * time.Second):
			}
		}
		close(release)
	}()

	code, _ := serve(context.Background(), t, h, "/readyz")
	if code != http.StatusOK {
		t.Errorf("status = %d, want 200", code)
	}
}

func TestReadyz_RespectsContextCancellation(t *testing.T) {
	t.Parallel()

	h := New(WithChecker(Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	code, _ := serve(ctx, t, h, "/readyz")
	if code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", code, http.StatusServiceUnavailable)
	}
}

// ─── BreakerChecker ──────────────────────────────────────────────────────────

type fakeGroup struct {
	healthy bool
	status  []resilience.EntryStatus
}

func (g fakeGroup) Healthy() bool                    { return g.healthy }
func (g fakeGroup) Status() []resilience.EntryStatus { return g.status }

func TestBreakerChecker(t *testing.T) {
	t.Parallel()

	status := []resilience.EntryStatus{
		{Name: "remote", State: resilience.StateOpen},
		{Name: "openai", State: resilience.StateOpen},
	}

	if err := BreakerChecker("sign", fakeGroup{healthy: true, status: status}).Check(context.Background()); err != nil {
		t.Errorf("healthy group: err = %v", err)
	}

	c := BreakerChecker("sign", fakeGroup{status: status})
	if c.Name != "sign" {
		t.Errorf("Name = %q", c.Name)
	}
	err := c.Check(context.Background())
	if err == nil || !strings.Contains(err.Error(), "remote, openai") {
		t.Errorf("err = %v, want open providers listed", err)
	}
}
