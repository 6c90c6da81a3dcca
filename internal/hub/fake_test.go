package hub_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/signbridge/internal/hub"
	"github.com/MrWong99/signbridge/internal/room"
)

const waitTimeout = 2 * time.Second

// ─── fake connection ─────────────────────────────────────────────────────────

// fakeConn is an in-memory hub.Conn. Tests push inbound messages with push and
// read outbound messages with next.
type fakeConn struct {
	id  string
	in  chan []byte
	out chan []byte

	closeOnce sync.Once
	closed    chan struct{}

	mu      sync.Mutex
	sendErr error
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{
		id:     id,
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(_ context.Context, msg []byte) error {
	c.mu.Lock()
	err := c.sendErr
	c.mu.Unlock()
	if err != nil {
		return err
	}
	select {
	case <-c.closed:
		return fmt.Errorf("fake %s: %w", c.id, room.ErrTransport)
	default:
	}
	cp := make([]byte, len(msg))
	copy(cp, msg)
	c.out <- cp
	return nil
}

func (c *fakeConn) Close(string) error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case m := <-c.in:
		return m, nil
	case <-c.closed:
		return nil, fmt.Errorf("fake %s: %w", c.id, room.ErrTransport)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) failSends(err error) {
	c.mu.Lock()
	c.sendErr = err
	c.mu.Unlock()
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) push(t *testing.T, v any) {
	t.Helper()
	switch m := v.(type) {
	case string:
		c.in <- []byte(m)
	case []byte:
		c.in <- m
	default:
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		c.in <- b
	}
}

// nextRaw waits for the next outbound message.
func (c *fakeConn) nextRaw(t *testing.T) []byte {
	t.Helper()
	select {
	case m := <-c.out:
		return m
	case <-time.After(waitTimeout):
		t.Fatalf("%s: timed out waiting for message", c.id)
		return nil
	}
}

// next waits for the next outbound message and decodes it.
func (c *fakeConn) next(t *testing.T) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(c.nextRaw(t), &m); err != nil {
		t.Fatalf("%s: decode: %v", c.id, err)
	}
	return m
}

// expectType waits for the next message and asserts its type.
func (c *fakeConn) expectType(t *testing.T, want string) map[string]any {
	t.Helper()
	m := c.next(t)
	if m["type"] != want {
		t.Fatalf("%s: message type = %v, want %q (msg %v)", c.id, m["type"], want, m)
	}
	return m
}

// expectNone asserts no message arrives within a short window.
func (c *fakeConn) expectNone(t *testing.T) {
	t.Helper()
	select {
	case m := <-c.out:
		t.Fatalf("%s: unexpected message %s", c.id, m)
	case <-time.After(100 * time.Millisecond):
	}
}

func (c *fakeConn) waitClosed(t *testing.T) {
	t.Helper()
	select {
	case <-c.closed:
	case <-time.After(waitTimeout):
		t.Fatalf("%s: connection not closed", c.id)
	}
}

// ─── fake collaborators ──────────────────────────────────────────────────────

type fakePredictor struct {
	mu     sync.Mutex
	labels []string // consumed in order; the last one repeats
	err    error
	calls  int
	frames [][]byte
}

func (p *fakePredictor) Predict(_ context.Context, image []byte) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.frames = append(p.frames, image)
	if p.err != nil {
		return "", false, p.err
	}
	if len(p.labels) == 0 {
		return "", false, nil
	}
	l := p.labels[0]
	if len(p.labels) > 1 {
		p.labels = p.labels[1:]
	}
	return l, true, nil
}

func (p *fakePredictor) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type fakeCodec struct {
	transcript string
	sttErr     error
	audio      []byte
	ttsErr     error
	ttsOnly    bool

	mu       sync.Mutex
	spoken   []string
	sttCalls int
}

func (c *fakeCodec) SpeechToText(context.Context, []byte) (string, error) {
	c.mu.Lock()
	c.sttCalls++
	c.mu.Unlock()
	return c.transcript, c.sttErr
}

func (c *fakeCodec) HasSTT() bool { return !c.ttsOnly }

func (c *fakeCodec) transcriptions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sttCalls
}

func (c *fakeCodec) TextToSpeech(_ context.Context, text string) ([]byte, error) {
	c.mu.Lock()
	c.spoken = append(c.spoken, text)
	c.mu.Unlock()
	return c.audio, c.ttsErr
}

// gatedPredictor blocks every Predict until a label is released or ctx ends.
type gatedPredictor struct {
	entered chan struct{}
	release chan string
}

func newGatedPredictor() *gatedPredictor {
	return &gatedPredictor{entered: make(chan struct{}, 4), release: make(chan string, 4)}
}

func (p *gatedPredictor) Predict(ctx context.Context, _ []byte) (string, bool, error) {
	p.entered <- struct{}{}
	select {
	case l := <-p.release:
		return l, true, nil
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
}

// waitEntered blocks until a Predict call is in flight.
func (p *gatedPredictor) waitEntered(t *testing.T) {
	t.Helper()
	select {
	case <-p.entered:
	case <-time.After(waitTimeout):
		t.Fatal("predictor was not called")
	}
}

type upperCorrector struct{ fixes map[string]string }

func (c upperCorrector) Correct(_ context.Context, text string) (string, error) {
	if v, ok := c.fixes[text]; ok {
		return v, nil
	}
	return text, nil
}

// ─── harness ─────────────────────────────────────────────────────────────────

func newHub(reg *room.Registry, opts ...hub.Option) *hub.Hub {
	opts = append([]hub.Option{hub.WithLogger(slog.New(slog.DiscardHandler))}, opts...)
	return hub.New(reg, opts...)
}

// serve runs h.Serve for c and returns a channel that yields its result.
func serve(t *testing.T, h *hub.Hub, c *fakeConn) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	finished := make(chan struct{})
	go func() {
		done <- h.Serve(context.Background(), c)
		close(finished)
	}()
	t.Cleanup(func() {
		_ = c.Close("test done")
		select {
		case <-finished:
		case <-time.After(waitTimeout):
			t.Errorf("%s: Serve did not return", c.id)
		}
	})
	return done
}

// joinAs starts serving c and completes the join handshake.
func joinAs(t *testing.T, h *hub.Hub, c *fakeConn, roomID string, role room.Role) map[string]any {
	t.Helper()
	serve(t, h, c)
	c.push(t, hub.JoinRequest{Type: hub.TypeJoin, RoomID: roomID, Role: string(role)})
	return c.expectType(t, hub.TypeConnected)
}

// pair joins a normal and an accessibility member into roomID.
func pair(t *testing.T, h *hub.Hub, roomID string) (normal, access *fakeConn) {
	t.Helper()
	normal = newFakeConn("normal-" + roomID)
	access = newFakeConn("access-" + roomID)
	joinAs(t, h, normal, roomID, room.RoleNormal)
	joinAs(t, h, access, roomID, room.RoleAccessibility)
	normal.expectType(t, hub.TypeUserJoined)
	return normal, access
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before timeout")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

var errBoom = errors.New("boom")
