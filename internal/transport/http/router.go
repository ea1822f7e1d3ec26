// Package http exposes health checks, the bot webhook, catalog reads and the
// import progress stream.
package http

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"forum-quiz-service/internal/domain"
	"forum-quiz-service/internal/transport/telegram"
)

// UpdateHandler consumes bot updates delivered by webhook.
type UpdateHandler interface {
	Handle(ctx context.Context, upd telegram.Update)
}

// TopicLister is the read side of the catalog.
type TopicLister interface {
	ListTopics(groupID string) ([]domain.Topic, error)
}

type Deps struct {
	Updates       UpdateHandler // nil disables /webhook
	WebhookSecret string
	Topics        TopicLister
	Progress      ProgressSource // nil disables /ws/imports
	Logger        *slog.Logger
}

func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/greet", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"greeting": "Be thou greeted!"})
	})
	if d.Topics != nil {
		r.Get("/groups/{groupID}/topics", topicsHandler(d.Topics))
	}
	if d.Updates != nil {
		r.Post("/webhook", webhookHandler(d.Updates, d.WebhookSecret, d.Logger))
	}
	if d.Progress != nil {
		r.Get("/ws/imports", NewProgressHandler(d.Progress, d.Logger).ServeWS)
	}
	return r
}

func topicsHandler(topics TopicLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groupID := chi.URLParam(r, "groupID")
		if groupID == "current" {
			groupID = ""
		}
		list, err := topics.ListTopics(groupID)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, domain.ErrNotFound) {
				status = http.StatusNotFound
			}
			respondJSON(w, status, map[string]string{"error": err.Error()})
			return
		}
		out := make([]map[string]any, 0, len(list))
		for _, t := range list {
			out = append(out, map[string]any{"name": t.Name, "thread_id": t.ThreadID})
		}
		respondJSON(w, http.StatusOK, out)
	}
}

const secretHeader = "X-Telegram-Bot-Api-Secret-Token"

func webhookHandler(updates UpdateHandler, secret string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if secret != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get(secretHeader)), []byte(secret)) != 1 {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		var upd telegram.Update
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&upd); err != nil {
			logger.Warn("webhook decode failed", "error", err)
			http.Error(w, "bad update", http.StatusBadRequest)
			return
		}
		updates.Handle(r.Context(), upd)
		w.WriteHeader(http.StatusOK)
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
