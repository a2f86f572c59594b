package model

import (
	"context"
	"fmt"
	"strings"
)

// DiagramMode controls how much diagram code the model is asked to produce.
type DiagramMode string

const (
	DiagramStandard DiagramMode = "standard"
	DiagramDetailed DiagramMode = "detailed"
)

// SolutionMode controls the depth of the worked solutions.
type SolutionMode string

const (
	SolutionConcise      SolutionMode = "concise"
	SolutionDetailed     SolutionMode = "detailed"
	SolutionVeryDetailed SolutionMode = "very_detailed"
)

// DiagramModes lists every valid diagram mode in display order.
var DiagramModes = []DiagramMode{DiagramStandard, DiagramDetailed}

// SolutionModes lists every valid solution mode in display order.
var SolutionModes = []SolutionMode{SolutionConcise, SolutionDetailed, SolutionVeryDetailed}

// Valid reports whether m is a known diagram mode.
func (m DiagramMode) Valid() bool {
	switch m {
	case DiagramStandard, DiagramDetailed:
		return true
	}
	return false
}

// Valid reports whether m is a known solution mode.
func (m SolutionMode) Valid() bool {
	switch m {
	case SolutionConcise, SolutionDetailed, SolutionVeryDetailed:
		return true
	}
	return false
}

// EncodedDocument is an uploaded file ready to be sent inline to a model.
type EncodedDocument struct {
	Data        string `json:"data"` // standard base64
	MIMEType    string `json:"mime_type"`
	DisplayName string `json:"display_name"`
}

// GenerationOptions selects the prompt fragments appended to the base instruction.
type GenerationOptions struct {
	DiagramMode  DiagramMode  `json:"diagram_mode"`
	SolutionMode SolutionMode `json:"solution_mode"`
}

// DefaultOptions mirrors the defaults of the upload form.
func DefaultOptions() GenerationOptions {
	return GenerationOptions{DiagramMode: DiagramStandard, SolutionMode: SolutionDetailed}
}

// OptionError reports a generation option outside its enum.
type OptionError struct {
	Field string
	Value string
}

func (e *OptionError) Error() string {
	return fmt.Sprintf("invalid %s %q", e.Field, e.Value)
}

// Validate checks enum membership of both modes.
func (o GenerationOptions) Validate() error {
	if !o.DiagramMode.Valid() {
		return &OptionError{Field: "diagram mode", Value: string(o.DiagramMode)}
	}
	if !o.SolutionMode.Valid() {
		return &OptionError{Field: "solution mode", Value: string(o.SolutionMode)}
	}
	return nil
}

// Shape is the structure of the JSON object the model must return.
type Shape string

const (
	// ShapeTwoPhase is one exam split into a question-only part and a worked solution.
	ShapeTwoPhase Shape = "two_phase"
	// ShapeTwoVariant is the legacy form with two independent exam variants.
	ShapeTwoVariant Shape = "two_variant"
)

// Field is one string property of a Shape.
type Field struct {
	Name        string
	Description string
}

var shapeFields = map[Shape][]Field{
	ShapeTwoPhase: {
		{"analysis", "Detailed analysis of the sample exam: structure, topics and difficulty matrix (Markdown)."},
		{"examContent", "The new exam, questions only, no solutions (Markdown)."},
		{"detailedSolution", "Answer key and a worked solution for every question of examContent (Markdown)."},
	},
	ShapeTwoVariant: {
		{"analysis", "Detailed analysis of the sample exam: structure, topics and difficulty matrix (Markdown)."},
		{"exam1", "Similar exam number 1 with a detailed answer key (Markdown)."},
		{"exam2", "Similar exam number 2 with a detailed answer key (Markdown)."},
	},
}

// Valid reports whether s is a known shape.
func (s Shape) Valid() bool {
	_, ok := shapeFields[s]
	return ok
}

// Fields returns the ordered properties of the shape.
func (s Shape) Fields() []Field {
	return shapeFields[s]
}

// FieldNames returns the ordered property names of the shape.
func (s Shape) FieldNames() []string {
	fields := shapeFields[s]
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.Name)
	}
	return names
}

// GeneratedContent is the parsed model output. Only the fields of Shape are set.
type GeneratedContent struct {
	Shape            Shape  `json:"shape"`
	Analysis         string `json:"analysis"`
	ExamContent      string `json:"examContent,omitempty"`
	DetailedSolution string `json:"detailedSolution,omitempty"`
	Exam1            string `json:"exam1,omitempty"`
	Exam2            string `json:"exam2,omitempty"`
	Model            string `json:"model,omitempty"` // candidate that produced it
}

// Field returns the value of the named shape property.
func (c GeneratedContent) Field(name string) string {
	switch name {
	case "analysis":
		return c.Analysis
	case "examContent":
		return c.ExamContent
	case "detailedSolution":
		return c.DetailedSolution
	case "exam1":
		return c.Exam1
	case "exam2":
		return c.Exam2
	}
	return ""
}

// Validate checks that every field of the shape is present and non-empty.
func (c GeneratedContent) Validate() error {
	if !c.Shape.Valid() {
		return fmt.Errorf("unknown shape %q", c.Shape)
	}
	var missing []string
	for _, f := range c.Shape.Fields() {
		if strings.TrimSpace(c.Field(f.Name)) == "" {
			missing = append(missing, f.Name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing or empty fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Provider names a model backend.
type Provider string

const (
	ProviderGemini Provider = "gemini"
	ProviderOpenAI Provider = "openai"
)

// Candidate describes one model tried by the fallback loop.
type Candidate struct {
	Provider    Provider `json:"provider"`
	Name        string   `json:"name"`
	Label       string   `json:"label,omitempty"`
	Description string   `json:"description,omitempty"`
}

func (c Candidate) String() string {
	return string(c.Provider) + ":" + c.Name
}

// ParseCandidate parses "provider:model". A bare model name means gemini.
func ParseCandidate(s string) (Candidate, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Candidate{}, fmt.Errorf("empty model name")
	}
	provider, name, found := strings.Cut(s, ":")
	if !found {
		return Candidate{Provider: ProviderGemini, Name: s}, nil
	}
	p := Provider(strings.ToLower(strings.TrimSpace(provider)))
	name = strings.TrimSpace(name)
	switch p {
	case ProviderGemini, ProviderOpenAI:
	default:
		return Candidate{}, fmt.Errorf("unknown provider %q", provider)
	}
	if name == "" {
		return Candidate{}, fmt.Errorf("empty model name in %q", s)
	}
	return Candidate{Provider: p, Name: name}, nil
}

// ParseCandidates parses an ordered list, dropping duplicates.
func ParseCandidates(specs []string) ([]Candidate, error) {
	seen := make(map[string]bool)
	var out []Candidate
	for _, s := range specs {
		c, err := ParseCandidate(s)
		if err != nil {
			return nil, err
		}
		if seen[c.String()] {
			continue
		}
		seen[c.String()] = true
		out = append(out, c)
	}
	return out, nil
}

// DefaultCandidates is the built-in preference order.
func DefaultCandidates() []Candidate {
	return []Candidate{
		{Provider: ProviderGemini, Name: "gemini-3-flash-preview", Label: "Gemini 3 Flash Preview", Description: "Fast, default"},
		{Provider: ProviderGemini, Name: "gemini-3-pro-preview", Label: "Gemini 3 Pro Preview", Description: "Balanced"},
		{Provider: ProviderGemini, Name: "gemini-2.5-flash", Label: "Gemini 2.5 Flash", Description: "Stable, fast"},
		{Provider: ProviderGemini, Name: "gemini-2.5-pro", Label: "Gemini 2.5 Pro", Description: "Most capable"},
	}
}

// WithPreferred returns a copy of candidates with the named model moved first.
// An unknown name is prepended as a gemini candidate.
func WithPreferred(candidates []Candidate, name string) []Candidate {
	name = strings.TrimSpace(name)
	out := make([]Candidate, 0, len(candidates)+1)
	if name == "" {
		return append(out, candidates...)
	}
	preferred, err := ParseCandidate(name)
	if err != nil {
		return append(out, candidates...)
	}
	for _, c := range candidates {
		if c.Name == preferred.Name && (!strings.Contains(name, ":") || c.Provider == preferred.Provider) {
			preferred = c
			break
		}
	}
	out = append(out, preferred)
	for _, c := range candidates {
		if c.String() == preferred.String() {
			continue
		}
		out = append(out, c)
	}
	return out
}

// CredentialProvider supplies the API key at call time.
type CredentialProvider interface {
	Credential(ctx context.Context) (string, error)
}

// StaticCredential is a fixed key.
type StaticCredential string

// Credential returns the key itself.
func (s StaticCredential) Credential(context.Context) (string, error) {
	return strings.TrimSpace(string(s)), nil
}

// Source reports "static" for a non-blank key.
func (s StaticCredential) Source(context.Context) string {
	if strings.TrimSpace(string(s)) == "" {
		return ""
	}
	return "static"
}

type requestIDCtxKey struct{}

// ContextWithRequestID stores a request identifier used in log lines.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDCtxKey{}, id)
}

// RequestIDFromContext retrieves the request identifier, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDCtxKey{}).(string)
	return id
}
