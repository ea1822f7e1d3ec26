package http

import (
	"log/slog"
	"net/http"
	"time"

	"forum-quiz-service/internal/domain"
	"github.com/gorilla/websocket"
)

// ProgressSource is the subscribe side of app.ProgressHub.
type ProgressSource interface {
	Subscribe(importID string) (<-chan domain.ImportEvent, func())
}

// ProgressHandler streams import progress events over a websocket.
type ProgressHandler struct {
	source   ProgressSource
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewProgressHandler(source ProgressSource, logger *slog.Logger) *ProgressHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProgressHandler{
		source: source,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type subscribedPayload struct {
	ImportID string `json:"importId,omitempty"`
}

const writeWait = 10 * time.Second

// ServeWS follows one import (?importId=...) or every import when the
// parameter is absent. Clients only listen; anything they send is discarded.
func (h *ProgressHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	importID := r.URL.Query().Get("importId")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events, cancel := h.source.Subscribe(importID)
	defer cancel()

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	if err := h.write(conn, outboundMessage[subscribedPayload]{Type: "subscribed", Payload: subscribedPayload{ImportID: importID}}); err != nil {
		return
	}
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := h.write(conn, outboundMessage[domain.ImportEvent]{Type: event.Type, Payload: event}); err != nil {
				h.logger.Debug("ws write error", "error", err)
				return
			}
		case <-readerDone:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (h *ProgressHandler) write(conn *websocket.Conn, msg any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}
