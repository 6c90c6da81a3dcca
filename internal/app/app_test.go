package app_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/signbridge/internal/app"
	"github.com/MrWong99/signbridge/internal/config"
	"github.com/MrWong99/signbridge/internal/observe"
	"github.com/MrWong99/signbridge/pkg/provider/sign"
	signmock "github.com/MrWong99/signbridge/pkg/provider/sign/mock"
	"github.com/MrWong99/signbridge/pkg/provider/stt"
	sttmock "github.com/MrWong99/signbridge/pkg/provider/stt/mock"
	ttsmock "github.com/MrWong99/signbridge/pkg/provider/tts/mock"
)

// ─── helpers ──────────────────────────────────────────────────────────────────

func testConfig() *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Server.ListenAddr = "127.0.0.1:0"
	return cfg
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func newApp(t *testing.T, cfg *config.Config, ps *app.Providers, opts ...app.Option) *app.App {
	t.Helper()
	opts = append([]app.Option{
		app.WithLogger(slog.New(slog.DiscardHandler)),
		app.WithMetrics(testMetrics(t)),
	}, opts...)
	a, err := app.New(cfg, ps, opts...)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	return a
}

type client struct {
	t  *testing.T
	ws *websocket.Conn
}

func dial(t *testing.T, baseURL string) *client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ws, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(baseURL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.CloseNow() })
	return &client{t: t, ws: ws}
}

func (c *client) send(v any) {
	c.t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		c.t.Fatalf("marshal: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.ws.Write(ctx, websocket.MessageText, b); err != nil {
		c.t.Fatalf("write: %v", err)
	}
}

func (c *client) next() map[string]any {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, b, err := c.ws.Read(ctx)
	if err != nil {
		c.t.Fatalf("read: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		c.t.Fatalf("decode %s: %v", b, err)
	}
	return m
}

func (c *client) expectType(want string) map[string]any {
	c.t.Helper()
	m := c.next()
	if m["type"] != want {
		c.t.Fatalf("message type = %v, want %q (msg %v)", m["type"], want, m)
	}
	return m
}

// pairClients joins a normal and an accessibility client to roomID.
func pairClients(t *testing.T, baseURL, roomID string) (normal, access *client) {
	t.Helper()
	normal = dial(t, baseURL)
	normal.send(map[string]string{"type": "join", "roomId": roomID, "role": "normal"})
	normal.expectType("connected")

	access = dial(t, baseURL)
	access.send(map[string]string{"type": "join", "roomId": roomID, "role": "accessibility"})
	if got := access.expectType("connected"); got["ready"] != true {
		t.Fatalf("second connected = %v, want ready", got)
	}
	normal.expectType("user_joined")
	return normal, access
}

func get(t *testing.T, url string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
	return resp.StatusCode, body
}

// ─── construction ─────────────────────────────────────────────────────────────

func TestNew_NilConfig(t *testing.T) {
	t.Parallel()
	if _, err := app.New(nil, nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestNew_NoProviders(t *testing.T) {
	t.Parallel()
	a := newApp(t, testConfig(), nil)
	if a.Hub() == nil || a.Registry() == nil {
		t.Fatal("hub and registry must be wired")
	}
}

// ─── HTTP surface ─────────────────────────────────────────────────────────────

func TestHandler_HealthzReportsRoomStats(t *testing.T) {
	t.Parallel()

	a := newApp(t, testConfig(), nil)
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	pairClients(t, srv.URL, "call-1")

	code, body := get(t, srv.URL+"/healthz")
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	stats, ok := body["stats"].(map[string]any)
	if !ok {
		t.Fatalf("stats missing: %v", body)
	}
	if stats["rooms"] != float64(1) || stats["members"] != float64(2) || stats["full_rooms"] != float64(1) {
		t.Errorf("stats = %v, want 1 room, 2 members, 1 full", stats)
	}
}

func TestHandler_ReadyzFailsWhenProvidersOpen(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Providers.Sign = config.ProviderEntry{Name: "broken"}
	cfg.Resilience.MaxFailures = 1

	reg := config.NewRegistry()
	reg.RegisterSign("broken", func(config.ProviderEntry) (sign.Provider, error) {
		return &signmock.Provider{Err: errors.New("model offline")}, nil
	})
	ps, err := app.BuildProviders(cfg, reg, testMetrics(t), slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("BuildProviders: %v", err)
	}

	a := newApp(t, cfg, ps)
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	if code, body := get(t, srv.URL+"/readyz"); code != http.StatusOK {
		t.Fatalf("readyz before failure = %d (%v), want 200", code, body)
	}

	_, _, _ = ps.Sign.Predict(context.Background(), []byte("frame"))

	code, body := get(t, srv.URL+"/readyz")
	if code != http.StatusServiceUnavailable {
		t.Fatalf("readyz after failure = %d, want 503", code)
	}
	checks, _ := body["checks"].(map[string]any)
	if s, _ := checks["sign"].(string); !strings.HasPrefix(s, "fail") {
		t.Errorf("sign check = %q, want failure", s)
	}
	if checks["rooms"] != "ok" {
		t.Errorf("rooms check = %v, want ok", checks["rooms"])
	}
}

func TestHandler_MetricsRoute(t *testing.T) {
	t.Parallel()

	without := httptest.NewServer(newApp(t, testConfig(), nil).Handler())
	t.Cleanup(without.Close)
	resp, err := http.Get(without.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("metrics without handler = %d, want 404", resp.StatusCode)
	}

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "# metrics\n")
	})
	with := httptest.NewServer(newApp(t, testConfig(), nil, app.WithMetricsHandler(metrics)).Handler())
	t.Cleanup(with.Close)
	resp, err = http.Get(with.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(b) != "# metrics\n" {
		t.Errorf("metrics = %d %q", resp.StatusCode, b)
	}
}

// ─── end to end ───────────────────────────────────────────────────────────────

func TestEndToEnd_SignalingAndSignInterpretation(t *testing.T) {
	t.Parallel()

	signs := &signmock.Provider{Label: "A"}
	voice := &ttsmock.Provider{Audio: []byte("pcm")}
	ps := &app.Providers{Sign: signs, TTS: voice}

	a := newApp(t, testConfig(), ps)
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	normal, access := pairClients(t, srv.URL, "call-1")

	access.send(map[string]string{"type": "offer", "sdp": "v=0"})
	if got := normal.expectType("offer"); got["sdp"] != "v=0" {
		t.Errorf("offer = %v, want sdp forwarded", got)
	}

	access.send(map[string]string{"type": "video_frame", "data": base64.StdEncoding.EncodeToString([]byte("jpeg"))})
	got := normal.expectType("interpretation")
	if got["text"] != "A" {
		t.Errorf("text = %v, want A", got["text"])
	}
	if got["audio"] != base64.StdEncoding.EncodeToString([]byte("pcm")) {
		t.Errorf("audio = %v, want base64 of synthesized speech", got["audio"])
	}
	if n := signs.CallCount(); n != 1 {
		t.Errorf("predict calls = %d, want 1", n)
	}
}

func TestEndToEnd_SpeechToText(t *testing.T) {
	t.Parallel()

	ps := &app.Providers{STT: &sttmock.Provider{Result: stt.Transcript{Text: " good morning "}}}
	a := newApp(t, testConfig(), ps)
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	normal, access := pairClients(t, srv.URL, "call-1")
	normal.send(map[string]string{"type": "audio", "data": base64.StdEncoding.EncodeToString([]byte{1, 2, 3, 4})})

	got := access.expectType("interpretation")
	if got["text"] != "good morning" {
		t.Errorf("text = %q, want %q", got["text"], "good morning")
	}
	if got["audio"] != nil {
		t.Errorf("audio = %v, want null without tts", got["audio"])
	}
}

func TestEndToEnd_PartnerLeaves(t *testing.T) {
	t.Parallel()

	a := newApp(t, testConfig(), nil)
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	normal, access := pairClients(t, srv.URL, "call-1")
	_ = access.ws.Close(websocket.StatusNormalClosure, "bye")

	normal.expectType("user_left")
	if n := a.Registry().Stats().Members; n != 1 {
		t.Errorf("members after leave = %d, want 1", n)
	}
}

// ─── lifecycle ────────────────────────────────────────────────────────────────

func TestServe_GracefulShutdownEndsSessions(t *testing.T) {
	t.Parallel()

	a := newApp(t, testConfig(), nil, app.WithShutdownTimeout(3*time.Second))
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, ln) }()

	c := dial(t, "http://"+ln.Addr().String())
	c.send(map[string]string{"type": "join", "roomId": "call-1", "role": "normal"})
	c.expectType("connected")

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	readCtx, readCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer readCancel()
	if _, _, err := c.ws.Read(readCtx); err == nil {
		t.Error("expected session to be closed by shutdown")
	}
	if n := a.Registry().Stats().Members; n != 0 {
		t.Errorf("members after shutdown = %d, want 0", n)
	}
}

// ─── hot reload ───────────────────────────────────────────────────────────────

func TestApplyConfig_HotReloadable(t *testing.T) {
	t.Parallel()

	old := testConfig()
	old.Interpretation.Vocabulary = []string{"Anna"}
	var level slog.LevelVar
	a := newApp(t, old, nil, app.WithLevelVar(&level))

	next := testConfig()
	next.Server.LogLevel = config.LogDebug
	next.Interpretation.StableFrames = 4
	next.Interpretation.Vocabulary = []string{"Anna", "Boston"}

	a.ApplyConfig(old, next)

	if level.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", level.Level())
	}
	if got := a.Hub().StableFrames(); got != 4 {
		t.Errorf("stable frames = %d, want 4", got)
	}
}

func TestApplyConfig_RestartOnlyChangesLeaveRuntimeAlone(t *testing.T) {
	t.Parallel()

	old := testConfig()
	old.Interpretation.StableFrames = 2
	a := newApp(t, old, nil)

	next := testConfig()
	next.Interpretation.StableFrames = 2
	next.Server.ListenAddr = "127.0.0.1:9999"

	a.ApplyConfig(old, next)
	if got := a.Hub().StableFrames(); got != 2 {
		t.Errorf("stable frames = %d, want unchanged 2", got)
	}
}

func TestLogLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   config.LogLevel
		want slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := app.LogLevel(tt.in); got != tt.want {
			t.Errorf("LogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// lockedBuffer is an io.Writer safe for concurrent log handlers.
type lockedBuffer struct {
	mu sync.Mutex
	b  strings.Builder
}

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Write(p)
}

func (l *lockedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.String()
}

func TestHandler_JoinRejectionIsNotASessionFailure(t *testing.T) {
	t.Parallel()

	var logs lockedBuffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	a := newApp(t, testConfig(), nil, app.WithLogger(logger))
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	pairClients(t, srv.URL, "call-1")
	mark := len(logs.String())

	third := dial(t, srv.URL)
	third.send(map[string]string{"type": "join", "roomId": "call-1", "role": "normal"})
	if got := third.expectType("error"); got["message"] != "room is full" {
		t.Errorf("rejection = %v", got)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, _, err := third.ws.Read(ctx); err == nil {
		t.Fatal("rejected connection still open")
	}

	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(logs.String(), "join rejected") {
		if time.Now().After(deadline) {
			t.Fatalf("rejection not logged:\n%s", logs.String())
		}
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)
	if out := logs.String()[mark:]; strings.Contains(out, "session ended with error") || strings.Contains(out, "level=WARN") {
		t.Errorf("rejection logged as a failure:\n%s", out)
	}
}
