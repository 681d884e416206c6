package devserver

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type recognizeClientFrame struct {
	Type     string `json:"type"`
	Language string `json:"language,omitempty"`
	Format   string `json:"format,omitempty"`
}

type recognizeServerFrame struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Message string `json:"message,omitempty"`
}

// handleRecognize serves the streaming-recognition websocket the live
// recognizer connects to. It accepts a config frame, consumes binary
// audio frames, and replies with a result and an end frame once the
// client sends stop or closes.
func (s *Server) handleRecognize(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("recognize upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	var configured bool
	var received int

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			// Client gone; nothing left to report to.
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			if !configured {
				s.writeRecognizeError(conn, "config frame must precede audio")
				return
			}
			received += len(data)

		case websocket.TextMessage:
			var frame recognizeClientFrame
			if err := json.Unmarshal(data, &frame); err != nil {
				s.writeRecognizeError(conn, "malformed control frame")
				return
			}

			switch frame.Type {
			case "config":
				configured = true
			case "stop":
				s.finishRecognition(conn, received)
				return
			default:
				s.writeRecognizeError(conn, "unknown control frame: "+frame.Type)
				return
			}
		}
	}
}

func (s *Server) finishRecognition(conn *websocket.Conn, received int) {
	if received > 0 {
		_ = conn.WriteJSON(recognizeServerFrame{Type: "result", Text: s.cfg.Transcript})
	}
	_ = conn.WriteJSON(recognizeServerFrame{Type: "end"})
}

func (s *Server) writeRecognizeError(conn *websocket.Conn, message string) {
	_ = conn.WriteJSON(recognizeServerFrame{Type: "error", Message: message})
}
