package voice

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// wsConfigFrame opens a streaming-recognition session.
type wsConfigFrame struct {
	Type     string `json:"type"`
	Language string `json:"language,omitempty"`
	Format   string `json:"format,omitempty"`
}

// wsControlFrame carries stop requests to the recognition server.
type wsControlFrame struct {
	Type string `json:"type"`
}

// wsServerFrame is one message from the recognition server.
type wsServerFrame struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Message string `json:"message,omitempty"`
}

// WSRecognizer streams audio frames to a recognition endpoint over a
// websocket and relays incremental results as recognizer events.
type WSRecognizer struct {
	url      string
	language string
	dialer   *websocket.Dialer
	logger   *zap.Logger

	events  chan Event
	writeMu sync.Mutex
	conn    *websocket.Conn // guarded by writeMu; nil until Start dials

	stopOnce sync.Once
	stopped  atomic.Bool
}

// NewWSRecognizerFactory builds recognizers for the given endpoint. An
// empty endpoint yields a nil factory, which the pipeline reports as an
// unsupported platform.
func NewWSRecognizerFactory(url, language string, logger *zap.Logger) RecognizerFactory {
	if url == "" {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(_ context.Context) (Recognizer, error) {
		return &WSRecognizer{
			url:      url,
			language: language,
			dialer: &websocket.Dialer{
				HandshakeTimeout: 30 * time.Second,
			},
			logger: logger,
			events: make(chan Event, 16),
		}, nil
	}
}

// Start dials the endpoint, sends the session config and begins the
// read loop. The Started event begins the recorder upstream.
func (r *WSRecognizer) Start(ctx context.Context) error {
	conn, _, err := r.dialer.DialContext(ctx, r.url, nil)
	if err != nil {
		close(r.events)
		return fmt.Errorf("recognition endpoint dial failed: %w", err)
	}
	r.writeMu.Lock()
	r.conn = conn
	r.writeMu.Unlock()

	cfg := wsConfigFrame{Type: "config", Language: r.language, Format: "webm"}
	if err := r.writeJSON(cfg); err != nil {
		_ = conn.Close()
		close(r.events)
		return fmt.Errorf("recognition handshake failed: %w", err)
	}

	r.events <- Event{Kind: EventStarted}
	go r.readLoop()
	return nil
}

// Feed streams one audio chunk. Chunks arriving before the session is
// live or after a stop are dropped; the session outcome is decided by
// the event channel.
func (r *WSRecognizer) Feed(chunk []byte) error {
	if r.stopped.Load() {
		return nil
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if r.conn == nil {
		return nil
	}
	return r.conn.WriteMessage(websocket.BinaryMessage, chunk)
}

// Stop asks the server to finish the session. Safe to call repeatedly;
// a read deadline guarantees the read loop ends even if the server
// never replies.
func (r *WSRecognizer) Stop() {
	r.stopOnce.Do(func() {
		r.stopped.Store(true)
		r.writeMu.Lock()
		conn := r.conn
		r.writeMu.Unlock()
		if conn == nil {
			return
		}
		if err := r.writeJSON(wsControlFrame{Type: "stop"}); err != nil {
			r.logger.Debug("recognizer stop frame failed", zap.Error(err))
		}
		_ = conn.SetReadDeadline(time.Now().Add(stopGrace))
	})
}

// Events exposes the recognizer lifecycle stream.
func (r *WSRecognizer) Events() <-chan Event {
	return r.events
}

func (r *WSRecognizer) writeJSON(v any) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return r.conn.WriteJSON(v)
}

func (r *WSRecognizer) readLoop() {
	defer close(r.events)
	defer func() { _ = r.conn.Close() }()

	for {
		var frame wsServerFrame
		if err := r.conn.ReadJSON(&frame); err != nil {
			if r.stopped.Load() {
				r.events <- Event{Kind: EventEnd}
			} else {
				r.events <- Event{Kind: EventError, Err: err}
			}
			return
		}

		switch frame.Type {
		case "partial", "result":
			r.events <- Event{Kind: EventResult, Text: frame.Text}
		case "error":
			r.events <- Event{Kind: EventError, Err: fmt.Errorf("recognition server: %s", frame.Message)}
			return
		case "end":
			r.events <- Event{Kind: EventEnd}
			return
		default:
			r.logger.Debug("unknown recognition frame", zap.String("type", frame.Type))
		}
	}
}
