package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/cors"

	"github.com/pavelanni/mathgenius/internal/export"
	"github.com/pavelanni/mathgenius/internal/handler/views"
	appI18n "github.com/pavelanni/mathgenius/internal/i18n"
	"github.com/pavelanni/mathgenius/internal/input"
	"github.com/pavelanni/mathgenius/internal/llm"
	"github.com/pavelanni/mathgenius/internal/model"
	"github.com/pavelanni/mathgenius/internal/store"
)

// Config holds server settings that are not dependencies.
type Config struct {
	Lang           string
	AllowedOrigins []string
}

// CredentialSource resolves the API key at request time and reports where
// it came from.
type CredentialSource interface {
	model.CredentialProvider
	Source(ctx context.Context) string
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	orch     *llm.Orchestrator
	store    *store.Store
	creds    CredentialSource
	exporter export.Exporter
	config   Config

	// At most one generation runs at a time.
	busy sync.Mutex
}

// New creates a new Handler.
func New(o *llm.Orchestrator, s *store.Store, creds CredentialSource, ex export.Exporter, cfg Config) (*Handler, error) {
	if o == nil || s == nil || creds == nil {
		return nil, errors.New("orchestrator, store and credentials are required")
	}
	if cfg.Lang == "" {
		cfg.Lang = "vi"
	}
	return &Handler{orch: o, store: s, creds: creds, exporter: ex, config: cfg}, nil
}

// Router builds the full middleware stack and mounts the routes under
// basePath ("" for the root).
func (h *Handler) Router(basePath string) http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(h.config.Lang))
	if len(h.config.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins: h.config.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
			AllowedHeaders: []string{"Content-Type"},
			ExposedHeaders: []string{"Content-Disposition", "X-Request-ID"},
		}).Handler)
	}
	if basePath != "" {
		r.Route(basePath, h.Routes)
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		h.Routes(r)
	}
	return r
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.handleIndex)
	r.Route("/api", func(r chi.Router) {
		r.Post("/generate", h.handleGenerate)
		r.Get("/key", h.handleGetKey)
		r.Put("/key", h.handleSetKey)
		r.Delete("/key", h.handleClearKey)
		r.Get("/models", h.handleModels)
		r.Put("/models/selected", h.handleSelectModel)
		r.Post("/export/{format}", h.handleExport)
	})
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(model.ContextWithRequestID(r.Context(), id)))
	})
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	selected, err := h.store.SelectedModel()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	data := views.IndexData{
		Models:    h.orch.Candidates(),
		Selected:  selected,
		KeyStatus: h.keyStatus(r),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.IndexPage(data).Render(r.Context(), w); err != nil {
		slog.Error("render index", "error", err)
	}
}

type keyResponse struct {
	Configured bool   `json:"configured"`
	Source     string `json:"source,omitempty"`
	Masked     string `json:"masked,omitempty"`
}

// Status implements views.KeyStatus.
func (k keyResponse) Status() (bool, string, string) {
	return k.Configured, k.Source, k.Masked
}

func (h *Handler) keyStatus(r *http.Request) keyResponse {
	key, err := h.creds.Credential(r.Context())
	if err != nil {
		slog.Warn("read credential", "error", err)
	}
	return keyResponse{
		Configured: key != "",
		Source:     h.creds.Source(r.Context()),
		Masked:     store.Mask(key),
	}
}

func (h *Handler) handleGetKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.keyStatus(r))
}

func (h *Handler) handleSetKey(w http.ResponseWriter, r *http.Request) {
	var body struct {
		APIKey string `json:"api_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.APIKey) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "api_key is required", false)
		return
	}
	if err := h.store.SetCredential(body.APIKey); err != nil {
		writeError(w, http.StatusInternalServerError, "unknown", err.Error(), false)
		return
	}
	slog.Info("api key stored", "request_id", model.RequestIDFromContext(r.Context()))
	writeJSON(w, http.StatusOK, h.keyStatus(r))
}

func (h *Handler) handleClearKey(w http.ResponseWriter, r *http.Request) {
	if err := h.store.ClearCredential(); err != nil {
		writeError(w, http.StatusInternalServerError, "unknown", err.Error(), false)
		return
	}
	slog.Info("api key cleared", "request_id", model.RequestIDFromContext(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleModels(w http.ResponseWriter, r *http.Request) {
	selected, err := h.store.SelectedModel()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "unknown", err.Error(), false)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"models":   h.orch.Candidates(),
		"selected": selected,
	})
}

func (h *Handler) handleSelectModel(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Model string `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body", false)
		return
	}
	if strings.TrimSpace(body.Model) != "" {
		if _, err := model.ParseCandidate(body.Model); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err.Error(), false)
			return
		}
	}
	if err := h.store.SetSelectedModel(body.Model); err != nil {
		writeError(w, http.StatusInternalServerError, "unknown", err.Error(), false)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := model.ParseFormat(chi.URLParam(r, "format"))
	if err != nil {
		writeError(w, http.StatusNotFound, "bad_request", err.Error(), false)
		return
	}
	var req model.ExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body", false)
		return
	}
	if req.View != "" && !req.View.Valid() {
		writeError(w, http.StatusBadRequest, "bad_request", "unknown view "+strconv.Quote(string(req.View)), false)
		return
	}

	f, err := h.exporter.Export(r.Context(), req, format)
	if errors.Is(err, export.ErrEmptyContent) {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error(), false)
		return
	}
	if err != nil {
		slog.Error("export failed", "format", format, "error", err)
		writeError(w, http.StatusInternalServerError, "unknown", err.Error(), false)
		return
	}

	disposition := "attachment"
	if format == model.FormatHTML {
		disposition = "inline"
	}
	w.Header().Set("Content-Type", f.ContentType)
	w.Header().Set("Content-Disposition", disposition+`; filename="`+f.Name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(f.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(f.Data)
}

// errorResponse is the JSON body of every API error.
type errorResponse struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Detail    string `json:"detail,omitempty"`
	Retryable bool   `json:"retryable"`
}

func writeError(w http.ResponseWriter, status int, kind, message string, retryable bool) {
	writeJSON(w, status, errorResponse{Kind: kind, Message: message, Retryable: retryable})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write json response", "error", err)
	}
}

// uploadLimit leaves room for the multipart envelope and the other fields.
const uploadLimit = input.MaxSize + 1<<20
