package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/mathgenius/internal/llm/prompts"
	"github.com/pavelanni/mathgenius/internal/model"
)

// Temperature is fixed: creative enough for new numbers, strict on structure.
const Temperature float32 = 0.5

// Orchestrator turns an uploaded exam into GeneratedContent by trying the
// candidate models in order until one returns a valid result.
// It keeps no state between calls and is safe for concurrent use.
type Orchestrator struct {
	endpoint   Endpoint
	prompts    *prompts.Set
	candidates []model.Candidate
	shape      model.Shape
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCandidates sets the ordered candidate list.
func WithCandidates(c []model.Candidate) Option {
	return func(o *Orchestrator) {
		o.candidates = append([]model.Candidate(nil), c...)
	}
}

// WithShape sets the output shape.
func WithShape(s model.Shape) Option {
	return func(o *Orchestrator) { o.shape = s }
}

// WithPrompts replaces the compiled-in prompt set.
func WithPrompts(p *prompts.Set) Option {
	return func(o *Orchestrator) { o.prompts = p }
}

// New creates an orchestrator. Defaults: built-in candidates, two-phase shape,
// compiled-in prompts.
func New(endpoint Endpoint, opts ...Option) (*Orchestrator, error) {
	if endpoint == nil {
		return nil, errors.New("endpoint is required")
	}
	o := &Orchestrator{
		endpoint:   endpoint,
		candidates: model.DefaultCandidates(),
		shape:      model.ShapeTwoPhase,
	}
	for _, opt := range opts {
		opt(o)
	}
	if !o.shape.Valid() {
		return nil, fmt.Errorf("unknown output shape %q", o.shape)
	}
	if o.prompts == nil {
		p, err := prompts.Default()
		if err != nil {
			return nil, fmt.Errorf("load prompts: %w", err)
		}
		o.prompts = p
	}
	return o, nil
}

// Candidates returns a copy of the candidate list.
func (o *Orchestrator) Candidates() []model.Candidate {
	return append([]model.Candidate(nil), o.candidates...)
}

// Shape returns the configured output shape.
func (o *Orchestrator) Shape() model.Shape {
	return o.shape
}

// UsingCandidates returns a copy of o that tries c instead.
func (o *Orchestrator) UsingCandidates(c []model.Candidate) *Orchestrator {
	cp := *o
	cp.candidates = append([]model.Candidate(nil), c...)
	return &cp
}

// Generate runs the fallback loop. Every failure is returned as *GenerationError.
func (o *Orchestrator) Generate(ctx context.Context, doc model.EncodedDocument, credential string, opts model.GenerationOptions) (*model.GeneratedContent, error) {
	if strings.TrimSpace(credential) == "" {
		return nil, Classify(ErrMissingCredential)
	}
	if err := opts.Validate(); err != nil {
		return nil, Classify(err)
	}
	if doc.Data == "" {
		return nil, Classify(ErrEmptyDocument)
	}

	req := Request{
		Document:          doc,
		UserInstruction:   o.prompts.UserInstruction(o.shape),
		SystemInstruction: o.prompts.SystemInstruction(o.shape, opts),
		Temperature:       Temperature,
		Shape:             o.shape,
	}

	reqID := model.RequestIDFromContext(ctx)
	var lastErr error
	for i, c := range o.candidates {
		if err := ctx.Err(); err != nil {
			return nil, Classify(err)
		}
		req.Candidate = c
		slog.Info("generation attempt",
			"request_id", reqID,
			"model", c.String(),
			"attempt", i+1,
			"candidates", len(o.candidates),
		)

		content, err := o.attempt(ctx, credential, req)
		if err == nil {
			slog.Info("generation succeeded", "request_id", reqID, "model", c.String(), "attempt", i+1)
			return content, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, Classify(ctxErr)
		}
		slog.Warn("generation attempt failed", "request_id", reqID, "model", c.String(), "error", err)
		lastErr = err
	}

	if lastErr == nil {
		lastErr = ErrNoCandidates
	}
	ge := Classify(lastErr)
	slog.Error("all generation attempts failed", "request_id", reqID, "kind", ge.Kind, "error", lastErr)
	return nil, ge
}

func (o *Orchestrator) attempt(ctx context.Context, credential string, req Request) (*model.GeneratedContent, error) {
	raw, err := o.endpoint.Generate(ctx, credential, req)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%s: %w", req.Candidate, ErrEmptyResponse)
	}
	slog.Debug("model response", "model", req.Candidate.String(), "raw", raw)

	content, err := parseContent(o.shape, raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", req.Candidate, ErrMalformedResponse, err)
	}
	content.Model = req.Candidate.Name
	return content, nil
}

// contentPayload uses pointers so that absent and null fields are detectable.
type contentPayload struct {
	Analysis         *string `json:"analysis"`
	ExamContent      *string `json:"examContent"`
	DetailedSolution *string `json:"detailedSolution"`
	Exam1            *string `json:"exam1"`
	Exam2            *string `json:"exam2"`
}

func parseContent(shape model.Shape, raw string) (*model.GeneratedContent, error) {
	var p contentPayload
	if err := json.Unmarshal([]byte(stripCodeFences(raw)), &p); err != nil {
		return nil, fmt.Errorf("parse model response: %w", err)
	}
	c := &model.GeneratedContent{
		Shape:    shape,
		Analysis: deref(p.Analysis),
	}
	switch shape {
	case model.ShapeTwoPhase:
		c.ExamContent = deref(p.ExamContent)
		c.DetailedSolution = deref(p.DetailedSolution)
	case model.ShapeTwoVariant:
		c.Exam1 = deref(p.Exam1)
		c.Exam2 = deref(p.Exam2)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// stripCodeFences removes a ```json ... ``` wrapper some models add despite
// the JSON response type.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
