// Package api provides HTTP handlers for the echo server REST API.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/coregx/echobus"
	"github.com/coregx/echobus/model"
)

const defaultDeadLetterLimit = 100

// Handler holds dependencies for API handlers.
type Handler struct {
	echo        *echobus.EchoService
	deadLetters echobus.DeadLetterRepository
	metrics     http.Handler
	logger      echobus.Logger
}

// NewHandler creates a new API handler. metrics may be nil, which leaves /metrics unrouted.
func NewHandler(
	echo *echobus.EchoService,
	deadLetters echobus.DeadLetterRepository,
	metrics http.Handler,
	logger echobus.Logger,
) *Handler {
	return &Handler{
		echo:        echo,
		deadLetters: deadLetters,
		metrics:     metrics,
		logger:      logger,
	}
}

// ResolveRequest represents a dead-letter resolution request.
type ResolveRequest struct {
	ResolvedBy string `json:"resolvedBy"`
	Note       string `json:"note"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Router builds the chi router with every route of the server.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(h.loggingMiddleware)

	r.Post("/echo", h.HandleEcho)
	r.Get("/messages", h.HandleListMessages)
	r.Route("/dead-letters", func(r chi.Router) {
		r.Get("/", h.HandleListDeadLetters)
		r.Get("/stats", h.HandleDeadLetterStats)
		r.Post("/{id}/resolve", h.HandleResolveDeadLetter)
	})
	r.Get("/health", h.HandleHealth)
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics)
	}

	return r
}

// HandleEcho handles POST /echo
func (h *Handler) HandleEcho(w http.ResponseWriter, r *http.Request) {
	var req echobus.EchoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}

	resp, err := h.echo.SendEcho(r.Context(), req)
	if err != nil {
		var echoErr *echobus.Error
		if errors.As(err, &echoErr) && echoErr.Code == echobus.ErrCodeValidation {
			h.respondError(w, http.StatusBadRequest, err.Error(), echobus.ErrCodeValidation)
			return
		}
		h.logger.Errorf("Failed to send echo: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to send echo", echobus.ErrCodePublish)
		return
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// HandleListMessages handles GET /messages?topic=&message=
func (h *Handler) HandleListMessages(w http.ResponseWriter, r *http.Request) {
	filter := echobus.MessageFilter{
		Topic: r.URL.Query().Get("topic"),
		Text:  r.URL.Query().Get("message"),
	}

	messages, err := h.echo.ListMessages(r.Context(), filter)
	if err != nil {
		h.logger.Errorf("Failed to list messages: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to list messages", echobus.ErrCodeDatabase)
		return
	}
	if messages == nil {
		messages = []model.StoredMessage{}
	}

	h.respondJSON(w, http.StatusOK, messages)
}

// HandleListDeadLetters handles GET /dead-letters?limit=
func (h *Handler) HandleListDeadLetters(w http.ResponseWriter, r *http.Request) {
	limit := defaultDeadLetterLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.respondError(w, http.StatusBadRequest, "limit must be a positive integer", echobus.ErrCodeValidation)
			return
		}
		limit = n
	}

	items, err := h.deadLetters.FindUnresolved(r.Context(), limit)
	if err != nil {
		h.logger.Errorf("Failed to list dead letters: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to list dead letters", echobus.ErrCodeDatabase)
		return
	}
	if items == nil {
		items = []model.DeadLetter{}
	}

	h.respondJSON(w, http.StatusOK, items)
}

// HandleDeadLetterStats handles GET /dead-letters/stats
func (h *Handler) HandleDeadLetterStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.deadLetters.GetStats(r.Context())
	if err != nil {
		h.logger.Errorf("Failed to get dead-letter stats: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to get dead-letter stats", echobus.ErrCodeDatabase)
		return
	}

	h.respondJSON(w, http.StatusOK, stats)
}

// HandleResolveDeadLetter handles POST /dead-letters/{id}/resolve
func (h *Handler) HandleResolveDeadLetter(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.respondError(w, http.StatusBadRequest, "Invalid dead-letter id", echobus.ErrCodeValidation)
		return
	}

	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}
	if req.ResolvedBy == "" {
		h.respondError(w, http.StatusBadRequest, "resolvedBy is required", echobus.ErrCodeValidation)
		return
	}

	dl, err := h.deadLetters.Load(r.Context(), id)
	if err != nil {
		if echobus.IsNoData(err) {
			h.respondError(w, http.StatusNotFound, "Dead letter not found", echobus.ErrCodeNoData)
			return
		}
		h.logger.Errorf("Failed to load dead letter %d: %v", id, err)
		h.respondError(w, http.StatusInternalServerError, "Failed to load dead letter", echobus.ErrCodeDatabase)
		return
	}

	dl.Resolve(req.ResolvedBy, req.Note)
	saved, err := h.deadLetters.Save(r.Context(), dl)
	if err != nil {
		h.logger.Errorf("Failed to resolve dead letter %d: %v", id, err)
		h.respondError(w, http.StatusInternalServerError, "Failed to resolve dead letter", echobus.ErrCodeDatabase)
		return
	}

	h.logger.Infof("Dead letter %d resolved by %s", id, req.ResolvedBy)
	h.respondJSON(w, http.StatusOK, saved)
}

// HandleHealth handles GET /health
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"topic":     h.echo.Topic(),
	})
}

func (h *Handler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		h.logger.Debugf("%s %s - %v", r.Method, r.URL.Path, time.Since(start))
	})
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message, code string) {
	h.respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
