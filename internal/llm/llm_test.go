package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/pavelanni/mathgenius/internal/llm/prompts"
	"github.com/pavelanni/mathgenius/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoPhaseJSON = `{"analysis":"A","examContent":"E","detailedSolution":"S"}`

// fakeEndpoint answers each call from a per-model script and records the calls.
type fakeEndpoint struct {
	mu      sync.Mutex
	replies map[string]func() (string, error)
	calls   []Request
}

func (f *fakeEndpoint) Generate(_ context.Context, _ string, req Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if reply, ok := f.replies[req.Candidate.Name]; ok {
		return reply()
	}
	return "", errors.New("no reply scripted")
}

func (f *fakeEndpoint) calledModels() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		names = append(names, c.Candidate.Name)
	}
	return names
}

func ok(text string) func() (string, error) {
	return func() (string, error) { return text, nil }
}

func fail(status int, msg string) func() (string, error) {
	return func() (string, error) {
		return "", &EndpointError{Provider: model.ProviderGemini, StatusCode: status, Message: msg}
	}
}

func candidates(names ...string) []model.Candidate {
	out := make([]model.Candidate, 0, len(names))
	for _, n := range names {
		out = append(out, model.Candidate{Provider: model.ProviderGemini, Name: n})
	}
	return out
}

func testDoc() model.EncodedDocument {
	return model.EncodedDocument{
		Data:        base64.StdEncoding.EncodeToString([]byte("%PDF-1.4 fake")),
		MIMEType:    "application/pdf",
		DisplayName: "de-thi.pdf",
	}
}

func newOrchestrator(t *testing.T, ep Endpoint, opts ...Option) *Orchestrator {
	t.Helper()
	o, err := New(ep, opts...)
	require.NoError(t, err)
	return o
}

func TestGenerateFirstSuccessWins(t *testing.T) {
	ep := &fakeEndpoint{replies: map[string]func() (string, error){
		"m1": fail(503, "The model is overloaded"),
		"m2": ok(twoPhaseJSON),
		"m3": ok(twoPhaseJSON),
	}}
	o := newOrchestrator(t, ep, WithCandidates(candidates("m1", "m2", "m3")))

	got, err := o.Generate(context.Background(), testDoc(), "key", model.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, ep.calledModels())
	assert.Equal(t, &model.GeneratedContent{
		Shape:            model.ShapeTwoPhase,
		Analysis:         "A",
		ExamContent:      "E",
		DetailedSolution: "S",
		Model:            "m2",
	}, got)
}

func TestGenerateAllFailReturnsLastError(t *testing.T) {
	ep := &fakeEndpoint{replies: map[string]func() (string, error){
		"m1": fail(503, "overloaded"),
		"m2": fail(429, "RESOURCE_EXHAUSTED"),
	}}
	o := newOrchestrator(t, ep, WithCandidates(candidates("m1", "m2")))

	_, err := o.Generate(context.Background(), testDoc(), "key", model.DefaultOptions())
	require.Error(t, err)
	var ge *GenerationError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, KindQuotaExceeded, ge.Kind)
	assert.Contains(t, ge.Message, "RESOURCE_EXHAUSTED")
	assert.Len(t, ep.calls, 2)
}

func TestGenerateStopsAtFirstSuccessOnly(t *testing.T) {
	ep := &fakeEndpoint{replies: map[string]func() (string, error){
		"m1": ok(twoPhaseJSON),
		"m2": ok(twoPhaseJSON),
	}}
	o := newOrchestrator(t, ep, WithCandidates(candidates("m1", "m2")))

	_, err := o.Generate(context.Background(), testDoc(), "key", model.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, ep.calledModels())
}

func TestGeneratePrechecksMakeNoCalls(t *testing.T) {
	tests := []struct {
		name       string
		credential string
		doc        model.EncodedDocument
		opts       model.GenerationOptions
		wantKind   Kind
	}{
		{"empty credential", "", testDoc(), model.DefaultOptions(), KindMissingCredential},
		{"blank credential", "   ", testDoc(), model.DefaultOptions(), KindMissingCredential},
		{"bad diagram mode", "key", testDoc(), model.GenerationOptions{DiagramMode: "fancy", SolutionMode: model.SolutionConcise}, KindInvalidOption},
		{"bad solution mode", "key", testDoc(), model.GenerationOptions{DiagramMode: model.DiagramStandard, SolutionMode: "huge"}, KindInvalidOption},
		{"empty document", "key", model.EncodedDocument{MIMEType: "application/pdf"}, model.DefaultOptions(), KindBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep := &fakeEndpoint{replies: map[string]func() (string, error){"m1": ok(twoPhaseJSON)}}
			o := newOrchestrator(t, ep, WithCandidates(candidates("m1")))

			_, err := o.Generate(context.Background(), tt.doc, tt.credential, tt.opts)
			var ge *GenerationError
			require.ErrorAs(t, err, &ge)
			assert.Equal(t, tt.wantKind, ge.Kind)
			assert.Empty(t, ep.calls)
		})
	}
}

func TestGenerateInvalidResponsesFallBack(t *testing.T) {
	tests := []struct {
		name     string
		reply    string
		wantKind Kind
	}{
		{"empty text", "  ", KindEmptyResponse},
		{"not json", "here is your exam", KindMalformedResponse},
		{"missing field", `{"analysis":"A","examContent":"E"}`, KindMalformedResponse},
		{"empty field", `{"analysis":"A","examContent":"","detailedSolution":"S"}`, KindMalformedResponse},
		{"null field", `{"analysis":"A","examContent":null,"detailedSolution":"S"}`, KindMalformedResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep := &fakeEndpoint{replies: map[string]func() (string, error){
				"bad":  ok(tt.reply),
				"good": ok(twoPhaseJSON),
			}}
			o := newOrchestrator(t, ep, WithCandidates(candidates("bad", "good")))
			got, err := o.Generate(context.Background(), testDoc(), "key", model.DefaultOptions())
			require.NoError(t, err)
			assert.Equal(t, "E", got.ExamContent)
			assert.Equal(t, []string{"bad", "good"}, ep.calledModels())

			o = o.UsingCandidates(candidates("bad"))
			_, err = o.Generate(context.Background(), testDoc(), "key", model.DefaultOptions())
			var ge *GenerationError
			require.ErrorAs(t, err, &ge)
			assert.Equal(t, tt.wantKind, ge.Kind)
		})
	}
}

func TestGenerateTwoVariantShape(t *testing.T) {
	ep := &fakeEndpoint{replies: map[string]func() (string, error){
		"m1": ok(`{"analysis":"A","exam1":"E1","exam2":"E2"}`),
	}}
	o := newOrchestrator(t, ep, WithCandidates(candidates("m1")), WithShape(model.ShapeTwoVariant))

	got, err := o.Generate(context.Background(), testDoc(), "key", model.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, model.ShapeTwoVariant, got.Shape)
	assert.Equal(t, "A", got.Analysis)
	assert.Equal(t, "E1", got.Exam1)
	assert.Equal(t, "E2", got.Exam2)
	assert.Empty(t, got.ExamContent)

	// A two-phase payload is not a valid two-variant result.
	ep.replies["m1"] = ok(twoPhaseJSON)
	_, err = o.Generate(context.Background(), testDoc(), "key", model.DefaultOptions())
	var ge *GenerationError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, KindMalformedResponse, ge.Kind)
}

func TestGenerateRequestCarriesPromptAndTemperature(t *testing.T) {
	ep := &fakeEndpoint{replies: map[string]func() (string, error){"m1": ok(twoPhaseJSON)}}
	o := newOrchestrator(t, ep, WithCandidates(candidates("m1")))
	opts := model.GenerationOptions{DiagramMode: model.DiagramDetailed, SolutionMode: model.SolutionVeryDetailed}

	_, err := o.Generate(context.Background(), testDoc(), "key", opts)
	require.NoError(t, err)
	require.Len(t, ep.calls, 1)

	set, err := prompts.Default()
	require.NoError(t, err)
	req := ep.calls[0]
	assert.Equal(t, set.SystemInstruction(model.ShapeTwoPhase, opts), req.SystemInstruction)
	assert.Equal(t, set.UserInstruction(model.ShapeTwoPhase), req.UserInstruction)
	assert.Equal(t, float32(0.5), req.Temperature)
	assert.Equal(t, model.ShapeTwoPhase, req.Shape)
	assert.Equal(t, testDoc(), req.Document)
}

func TestGenerateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ep := &fakeEndpoint{replies: map[string]func() (string, error){
		"m1": func() (string, error) {
			cancel()
			return "", context.Canceled
		},
		"m2": ok(twoPhaseJSON),
	}}
	o := newOrchestrator(t, ep, WithCandidates(candidates("m1", "m2")))

	_, err := o.Generate(ctx, testDoc(), "key", model.DefaultOptions())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"m1"}, ep.calledModels())
}

func TestGenerateNoCandidates(t *testing.T) {
	o := newOrchestrator(t, &fakeEndpoint{}, WithCandidates(nil))
	_, err := o.Generate(context.Background(), testDoc(), "key", model.DefaultOptions())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoCandidates)
	assert.Equal(t, "all models failed", err.Error())
}

func TestGenerateConcurrentCalls(t *testing.T) {
	ep := &fakeEndpoint{replies: map[string]func() (string, error){"m1": ok(twoPhaseJSON)}}
	o := newOrchestrator(t, ep, WithCandidates(candidates("m1")))

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.Generate(context.Background(), testDoc(), "key", model.DefaultOptions())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Len(t, ep.calls, 8)
}

func TestNewRejectsUnknownShape(t *testing.T) {
	_, err := New(&fakeEndpoint{}, WithShape("three_phase"))
	assert.Error(t, err)
	_, err = New(nil)
	assert.Error(t, err)
}

func TestCandidatesIsCopy(t *testing.T) {
	o := newOrchestrator(t, &fakeEndpoint{})
	c := o.Candidates()
	c[0].Name = "changed"
	assert.Equal(t, model.DefaultCandidates()[0].Name, o.Candidates()[0].Name)
	assert.Equal(t, model.ShapeTwoPhase, o.Shape())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind Kind
		wantMsg  string
	}{
		{"503 status", &EndpointError{StatusCode: 503, Message: "try later"}, KindServiceOverloaded, "overloaded"},
		{"overloaded text", errors.New("the model is overloaded"), KindServiceOverloaded, "overloaded"},
		{"unavailable text", errors.New("UNAVAILABLE: backend"), KindServiceOverloaded, "503"},
		{"429 status", &EndpointError{StatusCode: 429, Message: "slow down"}, KindQuotaExceeded, "RESOURCE_EXHAUSTED"},
		{"exhausted text", errors.New("RESOURCE_EXHAUSTED quota"), KindQuotaExceeded, "quota"},
		{"403 status", &EndpointError{StatusCode: 403, Message: "denied"}, KindInvalidCredential, "403"},
		{"400 status", &EndpointError{StatusCode: 400, Message: "bad image"}, KindBadRequest, "Bad Request (400): bad image"},
		{"400 no detail", &EndpointError{StatusCode: 400}, KindBadRequest, "Invalid request parameters"},
		{"api key text", errors.New("API key not valid. Please pass a valid API key."), KindInvalidCredential, "API Key Error"},
		{"unknown", errors.New("boom"), KindUnknown, "boom"},
		{"missing credential", ErrMissingCredential, KindMissingCredential, "API key is missing"},
		{"empty response", fmt.Errorf("m: %w", ErrEmptyResponse), KindEmptyResponse, "No response"},
		{"malformed", fmt.Errorf("%w: x", ErrMalformedResponse), KindMalformedResponse, "invalid result"},
		{"option", &model.OptionError{Field: "diagram mode", Value: "x"}, KindInvalidOption, "diagram mode"},
		{"overloaded text with 403", &EndpointError{StatusCode: 403, Message: "overloaded"}, KindServiceOverloaded, "overloaded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ge := Classify(tt.err)
			require.NotNil(t, ge)
			assert.Equal(t, tt.wantKind, ge.Kind)
			assert.Contains(t, ge.Message, tt.wantMsg)
		})
	}
	assert.Nil(t, Classify(nil))
}

func TestClassifyKeepsGenerationError(t *testing.T) {
	orig := &GenerationError{Kind: KindQuotaExceeded, Message: "q"}
	assert.Same(t, orig, Classify(fmt.Errorf("wrapped: %w", orig)))
}

func TestKindRetryable(t *testing.T) {
	assert.True(t, KindServiceOverloaded.Retryable())
	assert.True(t, KindQuotaExceeded.Retryable())
	assert.False(t, KindInvalidCredential.Retryable())
	assert.False(t, KindMalformedResponse.Retryable())
	assert.Equal(t, "ErrorUnknown", Kind("other").MessageID())
}

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFences("  {\"a\":1} "))
}

func TestRouter(t *testing.T) {
	r := Router{
		model.ProviderGemini: EndpointFunc(func(context.Context, string, Request) (string, error) { return "g", nil }),
	}
	got, err := r.Generate(context.Background(), "k", Request{Candidate: model.Candidate{Provider: model.ProviderGemini}})
	require.NoError(t, err)
	assert.Equal(t, "g", got)

	_, err = r.Generate(context.Background(), "k", Request{Candidate: model.Candidate{Provider: model.ProviderOpenAI}})
	assert.Error(t, err)
}

func TestOpenAIEndpoint(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(raw, &body))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":%q}}]}`, twoPhaseJSON)
	}))
	defer srv.Close()

	ep := NewOpenAI(srv.URL)
	req := Request{
		Candidate:         model.Candidate{Provider: model.ProviderOpenAI, Name: "gpt-4o"},
		Document:          testDoc(),
		UserInstruction:   "make an exam",
		SystemInstruction: "you are a teacher",
		Temperature:       Temperature,
		Shape:             model.ShapeTwoPhase,
	}
	got, err := ep.Generate(context.Background(), "sk-test", req)
	require.NoError(t, err)
	assert.Equal(t, twoPhaseJSON, got)

	assert.Equal(t, "gpt-4o", body["model"])
	format := body["response_format"].(map[string]any)
	assert.Equal(t, "json_schema", format["type"])
	schema := format["json_schema"].(map[string]any)["schema"].(map[string]any)
	assert.ElementsMatch(t, []any{"analysis", "examContent", "detailedSolution"}, schema["required"])

	msgs := body["messages"].([]any)
	require.Len(t, msgs, 2)
	user := msgs[1].(map[string]any)
	parts := user["content"].([]any)
	image := parts[0].(map[string]any)["image_url"].(map[string]any)
	assert.True(t, strings.HasPrefix(image["url"].(string), "data:application/pdf;base64,"))
}

func TestOpenAIEndpointError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, `{"error":{"message":"The server is overloaded","type":"server_error"}}`)
	}))
	defer srv.Close()

	_, err := NewOpenAI(srv.URL).Generate(context.Background(), "sk-test", Request{
		Candidate: model.Candidate{Provider: model.ProviderOpenAI, Name: "gpt-4o"},
		Document:  testDoc(),
		Shape:     model.ShapeTwoPhase,
	})
	var ee *EndpointError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, http.StatusServiceUnavailable, ee.StatusCode)
	assert.Equal(t, KindServiceOverloaded, Classify(err).Kind)
}

func TestGeminiEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(r.URL.Path, "quota-model") {
			w.WriteHeader(http.StatusTooManyRequests)
			io.WriteString(w, `{"error":{"code":429,"message":"Quota exceeded","status":"RESOURCE_EXHAUSTED"}}`)
			return
		}
		assert.True(t, strings.HasSuffix(r.URL.Path, ":generateContent"), r.URL.Path)
		fmt.Fprintf(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":%q}]}}]}`, twoPhaseJSON)
	}))
	defer srv.Close()

	ep := NewGemini(srv.URL + "/")
	req := Request{
		Candidate: model.Candidate{Provider: model.ProviderGemini, Name: "gemini-2.5-flash"},
		Document:  testDoc(),
		Shape:     model.ShapeTwoPhase,
	}
	got, err := ep.Generate(context.Background(), "gm-test", req)
	require.NoError(t, err)
	assert.Equal(t, twoPhaseJSON, got)

	req.Candidate.Name = "quota-model"
	_, err = ep.Generate(context.Background(), "gm-test", req)
	var ee *EndpointError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, http.StatusTooManyRequests, ee.StatusCode)
	assert.Equal(t, KindQuotaExceeded, Classify(err).Kind)
}

func TestGeminiEndpointBadDocument(t *testing.T) {
	_, err := NewGemini("").Generate(context.Background(), "k", Request{
		Candidate: model.Candidate{Provider: model.ProviderGemini, Name: "m"},
		Document:  model.EncodedDocument{Data: "!!not base64!!", MIMEType: "image/png"},
	})
	assert.Error(t, err)
}

func TestGenerateTwoOverloadedThenSuccess(t *testing.T) {
	ep := &fakeEndpoint{replies: map[string]func() (string, error){
		"m1": fail(503, "overloaded"),
		"m2": fail(503, "overloaded"),
		"m3": ok(`{"analysis":"third","examContent":"E3","detailedSolution":"S3"}`),
	}}
	o := newOrchestrator(t, ep, WithCandidates(candidates("m1", "m2", "m3", "m4")))

	got, err := o.Generate(context.Background(), testDoc(), "key", model.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "third", got.Analysis)
	assert.Equal(t, []string{"m1", "m2", "m3"}, ep.calledModels())
}

func TestGenerateLegacyShapeSingleCall(t *testing.T) {
	ep := &fakeEndpoint{replies: map[string]func() (string, error){
		"gemini-3-flash-preview": ok(`{"analysis":"A","exam1":"E1","exam2":"E2"}`),
	}}
	o := newOrchestrator(t, ep, WithShape(model.ShapeTwoVariant))

	got, err := o.Generate(context.Background(), testDoc(), "key", model.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, &model.GeneratedContent{Shape: model.ShapeTwoVariant, Analysis: "A", Exam1: "E1", Exam2: "E2", Model: "gemini-3-flash-preview"}, got)
	assert.Equal(t, []string{"gemini-3-flash-preview"}, ep.calledModels())
}
