package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sakif/code-sandbox/internal/apperror"
	"github.com/sakif/code-sandbox/internal/executor"
)

const wsWriteTimeout = 10 * time.Second

// wsIncoming is a message from the client.
type wsIncoming struct {
	Type     string `json:"type"`
	Language string `json:"language"`
	Code     string `json:"code"`
	Input    string `json:"input"`
}

// wsOutgoing is a message to the client.
type wsOutgoing struct {
	Type    string           `json:"type"`
	Result  *ExecuteResponse `json:"result,omitempty"`
	Error   string           `json:"error,omitempty"`
	Message string           `json:"message,omitempty"`
}

// StreamHandler runs executions requested over a websocket, one at a time
// per connection.
type StreamHandler struct {
	exec     executor.Executor
	upgrader websocket.Upgrader
	maxBytes int64
	logger   *slog.Logger
}

// NewStreamHandler creates a StreamHandler. allowedOrigins follows the CORS
// setting: "*" accepts any origin. maxBytes caps a single client message.
func NewStreamHandler(exec executor.Executor, allowedOrigins []string, maxBytes int64, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{
		exec:     exec,
		maxBytes: maxBytes,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || slices.Contains(allowed, "*") {
			return true
		}
		return slices.Contains(allowed, origin)
	}
}

// HandleStream upgrades the connection and serves execute messages.
//
// HTTP: GET /api/execute/ws
//
// Each {"type":"execute", ...} message is answered with {"type":"accepted"}
// and then {"type":"result", "result": {...}} or {"type":"error", ...}.
// Closing the connection cancels the execution in flight.
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()
	if h.maxBytes > 0 {
		conn.SetReadLimit(h.maxBytes)
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The reader runs on its own so a disconnect is noticed while an
	// execution is still in progress.
	messages := make(chan []byte)
	go func() {
		defer cancel()
		defer close(messages)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					h.logger.Debug("websocket read ended", slog.String("error", err.Error()))
				}
				return
			}
			select {
			case messages <- data:
			case <-ctx.Done():
				return
			}
		}
	}()

	for data := range messages {
		if !h.serve(ctx, conn, data) {
			return
		}
	}
}

// serve handles one client message and reports whether the connection is
// still usable.
func (h *StreamHandler) serve(ctx context.Context, conn *websocket.Conn, data []byte) bool {
	var msg wsIncoming
	if err := json.Unmarshal(data, &msg); err != nil {
		return h.send(conn, wsOutgoing{Type: "error", Error: "validation_error", Message: "message is not valid JSON"})
	}
	if msg.Type != "execute" {
		return h.send(conn, wsOutgoing{Type: "error", Error: "validation_error", Message: "unknown message type"})
	}
	if !h.send(conn, wsOutgoing{Type: "accepted"}) {
		return false
	}

	result, err := h.exec.Execute(ctx, executor.ExecutionRequest{
		Language: msg.Language,
		Code:     msg.Code,
		Stdin:    msg.Input,
	})
	if err != nil {
		out := wsOutgoing{Type: "error", Error: "internal_error", Message: "An internal error occurred"}
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			out.Message = appErr.Message
			switch {
			case errors.Is(err, apperror.ErrUnsupportedLanguage):
				out.Error = "unsupported_language"
			case errors.Is(err, apperror.ErrValidation):
				out.Error = "validation_error"
			}
		}
		return h.send(conn, out)
	}

	resp := NewExecuteResponse(result)
	return h.send(conn, wsOutgoing{Type: "result", Result: &resp})
}

func (h *StreamHandler) send(conn *websocket.Conn, msg wsOutgoing) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		h.logger.Debug("websocket write failed", slog.String("error", err.Error()))
		return false
	}
	return true
}
