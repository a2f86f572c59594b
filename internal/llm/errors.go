package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/pavelanni/mathgenius/internal/model"
)

// Kind classifies a generation failure for the user.
type Kind string

const (
	KindMissingCredential Kind = "missing_credential"
	KindInvalidCredential Kind = "invalid_credential"
	KindQuotaExceeded     Kind = "quota_exceeded"
	KindServiceOverloaded Kind = "service_overloaded"
	KindBadRequest        Kind = "bad_request"
	KindEmptyResponse     Kind = "empty_response"
	KindMalformedResponse Kind = "malformed_response"
	KindInvalidOption     Kind = "invalid_option"
	KindUnknown           Kind = "unknown"
)

// Retryable reports whether waiting and retrying manually is likely to help.
func (k Kind) Retryable() bool {
	return k == KindServiceOverloaded || k == KindQuotaExceeded
}

// MessageID is the translation key of the user-facing message.
func (k Kind) MessageID() string {
	switch k {
	case KindMissingCredential:
		return "ErrorMissingCredential"
	case KindInvalidCredential:
		return "ErrorInvalidCredential"
	case KindQuotaExceeded:
		return "ErrorQuotaExceeded"
	case KindServiceOverloaded:
		return "ErrorServiceOverloaded"
	case KindBadRequest:
		return "ErrorBadRequest"
	case KindEmptyResponse:
		return "ErrorEmptyResponse"
	case KindMalformedResponse:
		return "ErrorMalformedResponse"
	case KindInvalidOption:
		return "ErrorInvalidOption"
	default:
		return "ErrorUnknown"
	}
}

var (
	// ErrMissingCredential is returned before any call when no API key is set.
	ErrMissingCredential = errors.New("API key is missing. Please provide your Gemini API key")
	// ErrEmptyResponse marks a call that succeeded without any text.
	ErrEmptyResponse = errors.New("no response from AI")
	// ErrMalformedResponse marks text that is not the expected JSON object.
	ErrMalformedResponse = errors.New("malformed model response")
	// ErrNoCandidates is returned when the loop ends without capturing any error.
	ErrNoCandidates = errors.New("all models failed")
	// ErrEmptyDocument is returned before any call when the document has no data.
	ErrEmptyDocument = errors.New("document data is empty")
)

// EndpointError is the typed failure returned by an Endpoint.
type EndpointError struct {
	Provider   model.Provider
	Model      string
	StatusCode int    // HTTP status, 0 if unknown
	Status     string // provider status such as UNAVAILABLE or RESOURCE_EXHAUSTED
	Message    string
	Err        error
}

func (e *EndpointError) Error() string {
	var sb strings.Builder
	if e.Provider != "" || e.Model != "" {
		sb.WriteString(string(e.Provider) + " " + e.Model + ": ")
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&sb, "%d ", e.StatusCode)
	}
	if e.Status != "" {
		sb.WriteString(e.Status + " ")
	}
	sb.WriteString(e.Message)
	return strings.TrimSpace(sb.String())
}

func (e *EndpointError) Unwrap() error { return e.Err }

// GenerationError is the single classified error returned to callers.
type GenerationError struct {
	Kind    Kind
	Message string // English, human readable
	Detail  string // upstream message, if any
	Model   string // candidate that produced the failure
	Err     error
}

func (e *GenerationError) Error() string { return e.Message }

func (e *GenerationError) Unwrap() error { return e.Err }

// Classify maps any error to a GenerationError. Typed endpoint statuses are
// checked first; message substrings cover errors that only carry text.
func Classify(err error) *GenerationError {
	if err == nil {
		return nil
	}
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge
	}

	var optErr *model.OptionError
	switch {
	case errors.Is(err, ErrMissingCredential):
		return &GenerationError{Kind: KindMissingCredential, Message: ErrMissingCredential.Error() + ".", Err: err}
	case errors.As(err, &optErr):
		return &GenerationError{Kind: KindInvalidOption, Message: "Invalid generation option: " + optErr.Error(), Detail: optErr.Value, Err: err}
	case errors.Is(err, ErrEmptyDocument):
		return &GenerationError{Kind: KindBadRequest, Message: "Bad Request: " + ErrEmptyDocument.Error(), Detail: ErrEmptyDocument.Error(), Err: err}
	case errors.Is(err, ErrEmptyResponse):
		return &GenerationError{Kind: KindEmptyResponse, Message: "No response from AI. Please try again.", Err: err}
	case errors.Is(err, ErrMalformedResponse):
		return &GenerationError{Kind: KindMalformedResponse, Message: "The AI returned an invalid result. Please try again.", Detail: err.Error(), Err: err}
	case errors.Is(err, context.Canceled):
		return &GenerationError{Kind: KindUnknown, Message: "Generation was cancelled.", Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &GenerationError{Kind: KindUnknown, Message: "Generation timed out.", Err: err}
	}

	status := 0
	msg := err.Error()
	var modelName string
	var ee *EndpointError
	if errors.As(err, &ee) {
		status = ee.StatusCode
		msg = ee.Message
		if ee.Status != "" {
			msg = ee.Status + ": " + ee.Message
		}
		modelName = ee.Model
	}

	g := &GenerationError{Detail: msg, Model: modelName, Err: err}
	switch {
	case status == http.StatusServiceUnavailable || strings.Contains(msg, "overloaded") || strings.Contains(msg, "UNAVAILABLE"):
		g.Kind = KindServiceOverloaded
		g.Message = "The model is overloaded (503 - UNAVAILABLE). Please try again in 30-60 seconds."
	case status == http.StatusTooManyRequests || strings.Contains(msg, "RESOURCE_EXHAUSTED"):
		g.Kind = KindQuotaExceeded
		g.Message = "RESOURCE_EXHAUSTED: API quota exceeded. Please check your API key limits."
	case status == http.StatusForbidden:
		g.Kind = KindInvalidCredential
		g.Message = "API key not valid or permission denied (403). Please verify your API key."
	case status == http.StatusBadRequest:
		g.Kind = KindBadRequest
		detail := msg
		if detail == "" {
			detail = "Invalid request parameters"
		}
		g.Message = "Bad Request (400): " + detail
	case strings.Contains(msg, "API key"):
		g.Kind = KindInvalidCredential
		g.Message = "API Key Error: " + msg
	default:
		g.Kind = KindUnknown
		g.Message = msg
		if g.Message == "" {
			g.Message = "Unknown error occurred while generating exams"
		}
	}
	return g
}
