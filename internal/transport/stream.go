package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hyperjump/kaiseki/internal/classify"
)

// Stream defaults. The response timeout bounds the wait for one label, not
// the connection lifetime.
const (
	DefaultStreamTimeout    = 15 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	streamWriteDeadline     = 5 * time.Second
	realtimeBetaHeader      = "realtime=v1"
	streamTemperature       = 0.6
)

// StreamConfig configures the persistent WebSocket channel.
type StreamConfig struct {
	URL             string
	APIKey          string
	Model           string
	ResponseTimeout time.Duration
}

// Outbound realtime events.
type sessionUpdateEvent struct {
	Type    string        `json:"type"`
	Session sessionParams `json:"session"`
}

type sessionParams struct {
	Model             string         `json:"model,omitempty"`
	Instructions      string         `json:"instructions"`
	Temperature       float64        `json:"temperature"`
	Modalities        []string       `json:"modalities"`
	InputAudioFormat  string         `json:"input_audio_format"`
	OutputAudioFormat string         `json:"output_audio_format"`
	TurnDetection     *turnDetection `json:"turn_detection"`
}

type turnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMS   int     `json:"prefix_padding_ms"`
	SilenceDurationMS int     `json:"silence_duration_ms"`
	CreateResponse    bool    `json:"create_response"`
}

type itemCreateEvent struct {
	Type string           `json:"type"`
	Item conversationItem `json:"item"`
}

type conversationItem struct {
	Type    string        `json:"type"`
	Role    string        `json:"role"`
	Content []itemContent `json:"content"`
}

type itemContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type responseCreateEvent struct {
	Type     string         `json:"type"`
	Response responseParams `json:"response"`
}

type responseParams struct {
	Modalities   []string `json:"modalities"`
	Instructions string   `json:"instructions"`
}

// Inbound realtime events. Only the fields the channel reacts to are
// decoded.
type serverEvent struct {
	Type  string       `json:"type"`
	Delta string       `json:"delta,omitempty"`
	Text  string       `json:"text,omitempty"`
	Error *serverError `json:"error,omitempty"`
}

type serverError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type streamResult struct {
	text string
	err  error
}

type pendingReply struct {
	id   string
	done chan streamResult
}

// StreamChannel classifies paragraphs over a persistent realtime WebSocket
// session. The session carries the topic-bound instructions, so one
// connection serves one topic; changing topic reconnects. The protocol does
// not echo request ids, so requests are serialized and responses resolve
// the oldest pending request.
type StreamChannel struct {
	cfg    StreamConfig
	logger *zap.Logger

	reqMu sync.Mutex

	mu           sync.Mutex
	conn         *websocket.Conn
	gen          int
	topic        string
	ready        chan struct{}
	sessionReady bool
	closed       bool
	pending      []*pendingReply
	deltas       strings.Builder
}

// NewStreamChannel creates the channel without connecting. The connection
// is established lazily on the first request.
func NewStreamChannel(cfg StreamConfig, logger *zap.Logger) *StreamChannel {
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = DefaultStreamTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamChannel{cfg: cfg, logger: logger}
}

func (s *StreamChannel) Name() string { return "stream" }

// Topic returns the topic bound to the current connection, or "" when
// disconnected.
func (s *StreamChannel) Topic() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ""
	}
	return s.topic
}

// ClassifyChunk classifies one paragraph over the stream session. Requests
// are serialized; concurrent callers queue on the request mutex.
func (s *StreamChannel) ClassifyChunk(ctx context.Context, req ChunkRequest) (string, error) {
	s.reqMu.Lock()
	defer s.reqMu.Unlock()

	conn, err := s.ensureSession(ctx, req.Topic)
	if err != nil {
		return "", err
	}

	reply := &pendingReply{id: req.ID, done: make(chan streamResult, 1)}
	s.mu.Lock()
	s.pending = append(s.pending, reply)
	s.deltas.Reset()
	s.mu.Unlock()

	item := itemCreateEvent{
		Type: "conversation.item.create",
		Item: conversationItem{
			Type: "message",
			Role: "user",
			Content: []itemContent{{Type: "input_text", Text: classify.ChunkMessage(req.Text)}},
		},
	}
	if err := s.writeEvent(conn, item); err != nil {
		s.dropPending(reply)
		s.disconnect(conn, err)
		return "", Classify("stream.send", err)
	}
	create := responseCreateEvent{
		Type: "response.create",
		Response: responseParams{
			Modalities:   []string{"text"},
			Instructions: "Answer only with the discourse role name from the provided list, with no extra explanations.",
		},
	}
	if err := s.writeEvent(conn, create); err != nil {
		s.dropPending(reply)
		s.disconnect(conn, err)
		return "", Classify("stream.send", err)
	}

	timer := time.NewTimer(s.cfg.ResponseTimeout)
	defer timer.Stop()
	select {
	case res := <-reply.done:
		if res.err != nil {
			return "", res.err
		}
		return classify.ParseChunkResponse(res.text), nil
	case <-timer.C:
		s.dropPending(reply)
		return "", NewError(KindTimeout, "stream.classify",
			fmt.Errorf("chunk %s: no response within %s", req.ID, s.cfg.ResponseTimeout))
	case <-ctx.Done():
		s.dropPending(reply)
		return "", ctx.Err()
	}
}

// ensureSession returns a connection with an initialized session for topic,
// dialing or re-dialing as needed. Called with reqMu held.
func (s *StreamChannel) ensureSession(ctx context.Context, topic string) (*websocket.Conn, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, NewError(KindConnection, "stream.dial", errors.New("channel closed"))
	}
	if s.conn != nil && s.topic == topic {
		conn, ready := s.conn, s.ready
		s.mu.Unlock()
		return conn, s.awaitReady(ctx, ready)
	}
	old := s.conn
	s.mu.Unlock()
	if old != nil {
		// Topic changed: the old session's instructions no longer apply.
		s.disconnect(old, errors.New("topic changed"))
	}

	dialer := websocket.Dialer{HandshakeTimeout: defaultHandshakeTimeout}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	header.Set("OpenAI-Beta", realtimeBetaHeader)
	url := s.cfg.URL
	if s.cfg.Model != "" && !strings.Contains(url, "model=") {
		sep := "?"
		if strings.Contains(url, "?") {
			sep = "&"
		}
		url += sep + "model=" + s.cfg.Model
	}
	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, NewError(KindConnection, "stream.dial", err)
	}

	ready := make(chan struct{})
	s.mu.Lock()
	s.conn = conn
	s.gen++
	gen := s.gen
	s.topic = topic
	s.ready = ready
	s.sessionReady = false
	s.mu.Unlock()

	go s.readLoop(conn, gen)

	update := sessionUpdateEvent{
		Type: "session.update",
		Session: sessionParams{
			Model:             s.cfg.Model,
			Instructions:      classify.SessionInstructions(topic),
			Temperature:       streamTemperature,
			Modalities:        []string{"text"},
			InputAudioFormat:  "pcm16",
			OutputAudioFormat: "pcm16",
			TurnDetection: &turnDetection{
				Type:              "server_vad",
				Threshold:         0.5,
				PrefixPaddingMS:   300,
				SilenceDurationMS: 200,
				CreateResponse:    false,
			},
		},
	}
	if err := s.writeEvent(conn, update); err != nil {
		s.disconnect(conn, err)
		return nil, Classify("stream.session", err)
	}
	s.logger.Debug("stream session initializing", zap.String("topic", topic))

	if err := s.awaitReady(ctx, ready); err != nil {
		s.disconnect(conn, err)
		return nil, err
	}
	return conn, nil
}

func (s *StreamChannel) awaitReady(ctx context.Context, ready chan struct{}) error {
	timer := time.NewTimer(s.cfg.ResponseTimeout)
	defer timer.Stop()
	select {
	case <-ready:
		return nil
	case <-timer.C:
		return NewError(KindProtocol, "stream.session",
			fmt.Errorf("session not initialized within %s", s.cfg.ResponseTimeout))
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *StreamChannel) writeEvent(conn *websocket.Conn, v any) error {
	conn.SetWriteDeadline(time.Now().Add(streamWriteDeadline))
	return conn.WriteJSON(v)
}

// readLoop decodes inbound events until the connection dies. gen guards
// against a loop outliving its connection after a reconnect.
func (s *StreamChannel) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			if s.gen != gen {
				s.mu.Unlock()
				return
			}
			s.mu.Unlock()
			s.disconnect(conn, err)
			return
		}

		var ev serverEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			s.logger.Warn("stream: undecodable event", zap.Error(err))
			continue
		}

		switch ev.Type {
		case "session.created", "session.updated":
			s.mu.Lock()
			if s.gen == gen && !s.sessionReady {
				s.sessionReady = true
				close(s.ready)
			}
			s.mu.Unlock()

		case "response.text.delta":
			s.mu.Lock()
			if s.gen == gen {
				s.deltas.WriteString(ev.Delta)
			}
			s.mu.Unlock()

		case "response.text.done":
			// Carries the full text but is not terminal: the server still
			// sends response.done for the same response, and resolving on
			// both would let the trailing frame consume the next request.
			s.mu.Lock()
			if s.gen == gen && s.deltas.Len() == 0 {
				s.deltas.WriteString(ev.Text)
			}
			s.mu.Unlock()

		case "response.done":
			s.mu.Lock()
			if s.gen != gen || len(s.pending) == 0 {
				// The reply already timed out or failed.
				s.mu.Unlock()
				continue
			}
			reply := s.pending[0]
			s.pending = s.pending[1:]
			text := s.deltas.String()
			if text == "" {
				text = ev.Text
			}
			s.deltas.Reset()
			s.mu.Unlock()
			reply.done <- streamResult{text: text}

		case "error":
			msg := "stream error"
			if ev.Error != nil {
				msg = fmt.Sprintf("%s (%s): %s", ev.Error.Type, ev.Error.Code, ev.Error.Message)
			}
			s.failPending(gen, Classify("stream.event", errors.New(msg)))
		}
	}
}

// dropPending removes a reply the caller gave up on, so a late response
// cannot resolve the wrong request.
func (s *StreamChannel) dropPending(reply *pendingReply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.pending {
		if p == reply {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
}

// failPending rejects every in-flight request on the given connection
// generation.
func (s *StreamChannel) failPending(gen int, err error) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	pending := s.pending
	s.pending = nil
	s.deltas.Reset()
	s.mu.Unlock()
	for _, p := range pending {
		p.done <- streamResult{err: err}
	}
}

// disconnect tears down conn and rejects its in-flight requests.
func (s *StreamChannel) disconnect(conn *websocket.Conn, cause error) {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conn = nil
	s.sessionReady = false
	pending := s.pending
	s.pending = nil
	s.deltas.Reset()
	s.mu.Unlock()

	conn.Close()
	terr := Classify("stream.connection", cause)
	if terr.Kind == KindUnknown {
		terr = NewError(KindConnection, "stream.connection", cause)
	}
	for _, p := range pending {
		p.done <- streamResult{err: terr}
	}
	s.logger.Debug("stream disconnected", zap.Error(cause))
}

// Close shuts the channel down permanently.
func (s *StreamChannel) Close() error {
	s.mu.Lock()
	s.closed = true
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		s.disconnect(conn, errors.New("channel closed"))
	}
	return nil
}
