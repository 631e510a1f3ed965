package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	json "github.com/goccy/go-json"

	"roadlog/services/sync/internal/engine"
	"roadlog/services/sync/internal/mapper"
	"roadlog/services/sync/internal/queue"
	"roadlog/services/sync/internal/session"
)

type Handler struct {
	engine             *engine.Engine
	queue              queue.Store
	corsAllowedOrigins []string
	apiKey             string
	rateLimiter        *apiRateLimiter
}

func NewHandler(
	eng *engine.Engine,
	queueStore queue.Store,
	corsAllowedOrigins []string,
	apiKey string,
	rateLimitRequestsPerSec float64,
	rateLimitBurst int,
) *Handler {
	return &Handler{
		engine:             eng,
		queue:              queueStore,
		corsAllowedOrigins: corsAllowedOrigins,
		apiKey:             apiKey,
		rateLimiter:        newAPIRateLimiter(rateLimitRequestsPerSec, rateLimitBurst),
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	if h.rateLimiter != nil {
		r.Use(h.rateLimiter.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Roadlog-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.healthz)
	r.Route("/v1", func(r chi.Router) {
		r.With(h.requireWriteAccess).Post("/sessions", h.saveSession)
		r.With(h.requireWriteAccess).Post("/sync/drain", h.drainNow)
		r.With(h.requireWriteAccess).Put("/connectivity", h.setConnectivity)
		r.Get("/sync/status", h.syncStatus)
	})

	return r
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.queue.Health(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "down"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) saveSession(w http.ResponseWriter, r *http.Request) {
	capture := session.Capture{}
	if err := json.NewDecoder(r.Body).Decode(&capture); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	if strings.TrimSpace(capture.UserID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "userId is required"})
		return
	}

	id, err := h.engine.SaveSession(r.Context(), capture)
	if err != nil {
		var verr *mapper.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":      "invalid session",
				"violations": verr.Violations,
			})
			return
		}
		log.Printf("session save failed user=%s err=%v", capture.UserID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "save failed"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"sessionId": id,
		"online":    h.engine.Signal().Online(),
	})
}

func (h *Handler) drainNow(w http.ResponseWriter, r *http.Request) {
	if !h.engine.Signal().Online() {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "connectivity is offline"})
		return
	}

	result, err := h.engine.Drain(r.Context())
	if err != nil {
		log.Printf("drain failed err=%v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "drain failed"})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type setConnectivityRequest struct {
	Online bool `json:"online"`
}

func (h *Handler) setConnectivity(w http.ResponseWriter, r *http.Request) {
	payload := setConnectivityRequest{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}

	changed := h.engine.Signal().Set(payload.Online)
	if changed && payload.Online {
		// Reconnect kicks a drain without holding the request open.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			if result, err := h.engine.Drain(ctx); err != nil {
				log.Printf("reconnect drain failed err=%v", err)
			} else if result.Succeeded > 0 || result.Failed > 0 {
				log.Printf("reconnect drain finished succeeded=%d failed=%d", result.Succeeded, result.Failed)
			}
		}()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"online":  payload.Online,
		"changed": changed,
	})
}

func (h *Handler) syncStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.engine.Status(r.Context())
	if err != nil {
		log.Printf("sync status lookup failed err=%v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "status lookup failed"})
		return
	}

	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) requireWriteAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimSpace(h.apiKey) == "" {
			next.ServeHTTP(w, r)
			return
		}

		provided := strings.TrimSpace(r.Header.Get("X-Roadlog-Key"))
		if provided == "" {
			provided = strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		}
		if provided == h.apiKey {
			next.ServeHTTP(w, r)
			return
		}

		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
