package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeRealtime speaks just enough of the realtime protocol to drive the
// stream channel: it acknowledges session.update and answers each
// response.create using the reply function.
type fakeRealtime struct {
	upgrader websocket.Upgrader
	reply    func(n int) []string
	sessions atomic.Int32
	requests atomic.Int32
}

func (f *fakeRealtime) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := f.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var ev map[string]any
			if err := json.Unmarshal(raw, &ev); err != nil {
				t.Errorf("server: bad client event: %v", err)
				return
			}
			switch ev["type"] {
			case "session.update":
				f.sessions.Add(1)
				conn.WriteJSON(map[string]any{"type": "session.updated"})
			case "conversation.item.create":
				// Label is produced on response.create.
			case "response.create":
				n := int(f.requests.Add(1))
				for _, out := range f.reply(n) {
					if d, ok := strings.CutPrefix(out, "sleep:"); ok {
						pause, err := time.ParseDuration(d)
						if err != nil {
							t.Errorf("server: bad sleep %q: %v", out, err)
							return
						}
						time.Sleep(pause)
						continue
					}
					var msg map[string]any
					if err := json.Unmarshal([]byte(out), &msg); err != nil {
						t.Errorf("server: bad scripted event %q: %v", out, err)
						return
					}
					conn.WriteJSON(msg)
				}
			}
		}
	}
}

func newTestStream(t *testing.T, f *fakeRealtime, timeout time.Duration) *StreamChannel {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	ch := NewStreamChannel(StreamConfig{
		URL:             "ws" + strings.TrimPrefix(srv.URL, "http"),
		APIKey:          "test-key",
		Model:           "test-realtime",
		ResponseTimeout: timeout,
	}, nil)
	t.Cleanup(func() { ch.Close() })
	return ch
}

func TestStreamClassifyChunk(t *testing.T) {
	f := &fakeRealtime{reply: func(int) []string {
		return []string{
			`{"type":"response.text.delta","delta":"key "}`,
			`{"type":"response.text.delta","delta":"thesis"}`,
			`{"type":"response.text.done","text":"key thesis"}`,
			`{"type":"response.done"}`,
		}
	}}
	ch := newTestStream(t, f, 5*time.Second)

	label, err := ch.ClassifyChunk(context.Background(), ChunkRequest{ID: "c1", Text: "Central claim.", Topic: "essays"})
	if err != nil {
		t.Fatalf("ClassifyChunk: %v", err)
	}
	if label != "key thesis" {
		t.Errorf("label = %q, want %q", label, "key thesis")
	}
	if f.sessions.Load() != 1 {
		t.Errorf("sessions = %d, want 1", f.sessions.Load())
	}
}

func TestStreamSessionReuseAndTopicChange(t *testing.T) {
	f := &fakeRealtime{reply: func(int) []string {
		return []string{
			`{"type":"response.text.done","text":"noise"}`,
			`{"type":"response.done"}`,
		}
	}}
	ch := newTestStream(t, f, 5*time.Second)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := ch.ClassifyChunk(ctx, ChunkRequest{ID: "a", Text: "x", Topic: "first"}); err != nil {
			t.Fatalf("ClassifyChunk: %v", err)
		}
	}
	if f.sessions.Load() != 1 {
		t.Fatalf("same topic must reuse the session, got %d sessions", f.sessions.Load())
	}

	if _, err := ch.ClassifyChunk(ctx, ChunkRequest{ID: "b", Text: "y", Topic: "second"}); err != nil {
		t.Fatalf("ClassifyChunk after topic change: %v", err)
	}
	if f.sessions.Load() != 2 {
		t.Errorf("topic change must open a new session, got %d sessions", f.sessions.Load())
	}
}

func TestStreamLateResponseDoneDoesNotResolveNextRequest(t *testing.T) {
	// The server closes each response with response.text.done followed by
	// response.done. When the trailing response.done lags, it must not be
	// taken as the answer to a request registered in the meantime.
	f := &fakeRealtime{reply: func(n int) []string {
		if n == 1 {
			return []string{
				`{"type":"response.text.done","text":"topic shift"}`,
				"sleep:300ms",
				`{"type":"response.done"}`,
			}
		}
		return []string{
			`{"type":"response.text.delta","delta":"key thesis"}`,
			`{"type":"response.text.done","text":"key thesis"}`,
			`{"type":"response.done"}`,
		}
	}}
	ch := newTestStream(t, f, 5*time.Second)
	ctx := context.Background()

	first, err := ch.ClassifyChunk(ctx, ChunkRequest{ID: "c1", Text: "a", Topic: "t"})
	if err != nil {
		t.Fatalf("first ClassifyChunk: %v", err)
	}
	if first != "topic shift" {
		t.Errorf("first label = %q, want %q", first, "topic shift")
	}

	second, err := ch.ClassifyChunk(ctx, ChunkRequest{ID: "c2", Text: "b", Topic: "t"})
	if err != nil {
		t.Fatalf("second ClassifyChunk: %v", err)
	}
	if second != "key thesis" {
		t.Errorf("second label = %q, want %q", second, "key thesis")
	}
}

func TestStreamResponseTimeout(t *testing.T) {
	f := &fakeRealtime{reply: func(int) []string { return nil }}
	ch := newTestStream(t, f, 100*time.Millisecond)

	_, err := ch.ClassifyChunk(context.Background(), ChunkRequest{ID: "c1", Text: "x", Topic: "t"})
	if KindOf(err) != KindTimeout {
		t.Fatalf("err = %v, want timeout kind", err)
	}
	if !FallbackEligible(err) {
		t.Error("stream timeout must be fallback eligible")
	}
}

func TestStreamServerErrorEvent(t *testing.T) {
	f := &fakeRealtime{reply: func(int) []string {
		return []string{`{"type":"error","error":{"type":"invalid_request_error","code":"conflict","message":"conversation already has an active response"}}`}
	}}
	ch := newTestStream(t, f, 5*time.Second)

	_, err := ch.ClassifyChunk(context.Background(), ChunkRequest{ID: "c1", Text: "x", Topic: "t"})
	if err == nil {
		t.Fatal("expected error")
	}
	if KindOf(err) != KindProtocol {
		t.Errorf("err kind = %v, want protocol", KindOf(err))
	}
	if !FallbackEligible(err) {
		t.Error("protocol errors must be fallback eligible")
	}
}

func TestStreamDialFailure(t *testing.T) {
	ch := NewStreamChannel(StreamConfig{
		URL:             "ws://127.0.0.1:1",
		ResponseTimeout: time.Second,
	}, nil)
	defer ch.Close()

	_, err := ch.ClassifyChunk(context.Background(), ChunkRequest{ID: "c1", Text: "x", Topic: "t"})
	if KindOf(err) != KindConnection {
		t.Fatalf("err = %v, want connection kind", err)
	}
}

func TestStreamClosedChannel(t *testing.T) {
	f := &fakeRealtime{reply: func(int) []string { return nil }}
	ch := newTestStream(t, f, time.Second)
	ch.Close()

	_, err := ch.ClassifyChunk(context.Background(), ChunkRequest{ID: "c1", Text: "x", Topic: "t"})
	var te *Error
	if !errors.As(err, &te) || te.Kind != KindConnection {
		t.Fatalf("err = %v, want connection kind", err)
	}
}
