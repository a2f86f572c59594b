package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	appI18n "github.com/pavelanni/mathgenius/internal/i18n"
	"github.com/pavelanni/mathgenius/internal/input"
	"github.com/pavelanni/mathgenius/internal/llm"
	"github.com/pavelanni/mathgenius/internal/model"
)

type generateResponse struct {
	Content    *model.GeneratedContent `json:"content"`
	Pages      int                     `json:"pages,omitempty"`
	PagesLabel string                  `json:"pages_label,omitempty"`
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.busy.TryLock() {
		writeError(w, http.StatusConflict, "busy", appI18n.T(ctx, "ErrorBusy"), true)
		return
	}
	defer h.busy.Unlock()

	r.Body = http.MaxBytesReader(w, r.Body, uploadLimit)
	if err := r.ParseMultipartForm(uploadLimit); err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		h.uploadError(w, r, status, err)
		return
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		h.uploadError(w, r, http.StatusBadRequest, err)
		return
	}
	defer file.Close()

	doc, info, err := input.Read(file, hdr.Filename)
	if err != nil {
		status := http.StatusBadRequest
		var ut *input.UnsupportedTypeError
		switch {
		case errors.Is(err, input.ErrTooLarge):
			status = http.StatusRequestEntityTooLarge
		case errors.As(err, &ut):
			status = http.StatusUnsupportedMediaType
		}
		h.uploadError(w, r, status, err)
		return
	}

	opts := model.DefaultOptions()
	if v := strings.TrimSpace(r.FormValue("diagram_mode")); v != "" {
		opts.DiagramMode = model.DiagramMode(v)
	}
	if v := strings.TrimSpace(r.FormValue("solution_mode")); v != "" {
		opts.SolutionMode = model.SolutionMode(v)
	}

	credential, err := h.creds.Credential(ctx)
	if err != nil {
		h.generationError(w, r, llm.Classify(err))
		return
	}

	preferred := strings.TrimSpace(r.FormValue("model"))
	if preferred == "" {
		if preferred, err = h.store.SelectedModel(); err != nil {
			slog.Warn("read selected model", "error", err)
		}
	}
	orch := h.orch.UsingCandidates(model.WithPreferred(h.orch.Candidates(), preferred))

	reqID := model.RequestIDFromContext(ctx)
	slog.Info("generation requested",
		"request_id", reqID,
		"file", doc.DisplayName,
		"mime", doc.MIMEType,
		"pages", info.Pages,
		"diagram_mode", opts.DiagramMode,
		"solution_mode", opts.SolutionMode,
	)

	content, err := orch.Generate(ctx, doc, credential, opts)
	if err != nil {
		h.generationError(w, r, llm.Classify(err))
		return
	}

	slog.Info("generation complete", "request_id", reqID, "model", content.Model)
	resp := generateResponse{Content: content, Pages: info.Pages}
	if info.Pages > 0 {
		resp.PagesLabel = appI18n.Tp(ctx, "PagesDetected", info.Pages)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) uploadError(w http.ResponseWriter, r *http.Request, status int, err error) {
	slog.Warn("upload rejected", "request_id", model.RequestIDFromContext(r.Context()), "error", err)
	writeJSON(w, status, errorResponse{
		Kind:    string(llm.KindBadRequest),
		Message: appI18n.Td(r.Context(), "ErrorUpload", map[string]any{"Detail": err.Error()}),
		Detail:  err.Error(),
	})
}

func (h *Handler) generationError(w http.ResponseWriter, r *http.Request, ge *llm.GenerationError) {
	detail := ge.Detail
	if detail == "" {
		detail = ge.Message
	}
	writeJSON(w, statusForKind(ge.Kind), errorResponse{
		Kind:      string(ge.Kind),
		Message:   appI18n.Td(r.Context(), ge.Kind.MessageID(), map[string]any{"Detail": detail}),
		Detail:    detail,
		Retryable: ge.Kind.Retryable(),
	})
}

func statusForKind(k llm.Kind) int {
	switch k {
	case llm.KindMissingCredential:
		return http.StatusUnauthorized
	case llm.KindInvalidCredential:
		return http.StatusForbidden
	case llm.KindQuotaExceeded:
		return http.StatusTooManyRequests
	case llm.KindServiceOverloaded:
		return http.StatusServiceUnavailable
	case llm.KindBadRequest, llm.KindInvalidOption:
		return http.StatusBadRequest
	case llm.KindEmptyResponse, llm.KindMalformedResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
