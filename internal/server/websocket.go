package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket upgrader with reasonable defaults.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ExtractWSRequest is one extraction request over the socket. Image carries
// the raw encoded file; encoding/json transports []byte as base64.
type ExtractWSRequest struct {
	Doc       string `json:"doc"`
	Image     []byte `json:"image"`
	RequestID string `json:"request_id,omitempty"`
}

// ExtractWSResponse streams extraction progress back to the client.
type ExtractWSResponse struct {
	Status    string           `json:"status"` // "processing", "completed", "error"
	Progress  float64          `json:"progress,omitempty"`
	Result    *ExtractResponse `json:"result,omitempty"`
	Error     string           `json:"error,omitempty"`
	RequestID string           `json:"request_id,omitempty"`
}

// extractWebSocketHandler serves extraction requests over a persistent
// connection, reporting progress between the pipeline phases.
func (s *Server) extractWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	slog.Info("WebSocket connection established", "remote_addr", r.RemoteAddr)
	s.handleWebSocketConnection(conn)
}

func (s *Server) handleWebSocketConnection(conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("WebSocket error", "error", err)
			}
			return
		}
		websocketMessagesTotal.WithLabelValues("received").Inc()

		if messageType == websocket.TextMessage {
			s.handleWebSocketMessage(conn, data)
		}
	}
}

func (s *Server) handleWebSocketMessage(conn *websocket.Conn, data []byte) {
	var req ExtractWSRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendWebSocketResponse(conn, ExtractWSResponse{Status: "error", Error: "invalid request"})
		return
	}

	dp, err := s.pipelineFor(req.Doc)
	if err != nil {
		s.sendWebSocketResponse(conn, ExtractWSResponse{Status: "error", Error: err.Error(), RequestID: req.RequestID})
		return
	}

	s.sendWebSocketResponse(conn, ExtractWSResponse{Status: "processing", Progress: 0.1, RequestID: req.RequestID})

	img, _, err := image.Decode(bytes.NewReader(req.Image))
	if err != nil {
		s.sendWebSocketResponse(conn, ExtractWSResponse{Status: "error", Error: "invalid image format", RequestID: req.RequestID})
		return
	}

	s.sendWebSocketResponse(conn, ExtractWSResponse{Status: "processing", Progress: 0.3, RequestID: req.RequestID})

	ctx := context.Background()
	if s.timeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.timeoutSec)*time.Second)
		defer cancel()
	}

	start := time.Now()
	payload, err := dp.extract(ctx, img)
	elapsed := time.Since(start)
	if err != nil {
		extractRequestsTotal.WithLabelValues(req.Doc, "error").Inc()
		s.sendWebSocketResponse(conn, ExtractWSResponse{Status: "error", Error: err.Error(), RequestID: req.RequestID})
		return
	}

	extractRequestsTotal.WithLabelValues(req.Doc, "success").Inc()
	extractDuration.WithLabelValues(req.Doc).Observe(elapsed.Seconds())
	fieldsConfirmed.WithLabelValues(req.Doc).Observe(float64(len(payload.Confirmed())))

	s.sendWebSocketResponse(conn, ExtractWSResponse{
		Status:    "completed",
		Progress:  1.0,
		RequestID: req.RequestID,
		Result: &ExtractResponse{
			Doc:       req.Doc,
			Fields:    payload,
			Confirmed: len(payload.Confirmed()),
			Total:     len(payload),
			ElapsedMs: elapsed.Milliseconds(),
		},
	})
}

func (s *Server) sendWebSocketResponse(conn *websocket.Conn, resp ExtractWSResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		slog.Error("Failed to marshal WebSocket response", "error", err)
		return
	}
	websocketMessagesTotal.WithLabelValues("sent").Inc()
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Error("Failed to write WebSocket message", "error", err)
	}
}
