package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/pavelanni/mathgenius/internal/model"

	"google.golang.org/genai"
)

// GeminiEndpoint calls the Gemini API with the document inline and a
// structured response schema.
type GeminiEndpoint struct {
	baseURL string
}

// NewGemini creates a Gemini endpoint. An empty baseURL uses the public API.
func NewGemini(baseURL string) *GeminiEndpoint {
	return &GeminiEndpoint{baseURL: baseURL}
}

// Generate implements Endpoint.
func (g *GeminiEndpoint) Generate(ctx context.Context, credential string, req Request) (string, error) {
	data, err := base64.StdEncoding.DecodeString(req.Document.Data)
	if err != nil {
		return "", fmt.Errorf("decode document: %w", err)
	}

	cc := &genai.ClientConfig{
		APIKey:  credential,
		Backend: genai.BackendGeminiAPI,
	}
	if g.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: g.baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return "", fmt.Errorf("create gemini client: %w", err)
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(data, req.Document.MIMEType),
			genai.NewPartFromText(req.UserInstruction),
		}, genai.RoleUser),
	}
	temp := req.Temperature
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.SystemInstruction, genai.RoleUser),
		Temperature:       &temp,
		ResponseMIMEType:  "application/json",
		ResponseSchema:    geminiSchema(req.Shape),
	}

	resp, err := client.Models.GenerateContent(ctx, req.Candidate.Name, contents, config)
	if err != nil {
		return "", geminiError(req.Candidate.Name, err)
	}
	return resp.Text(), nil
}

func geminiSchema(shape model.Shape) *genai.Schema {
	props := make(map[string]*genai.Schema)
	for _, f := range shape.Fields() {
		props[f.Name] = &genai.Schema{Type: genai.TypeString, Description: f.Description}
	}
	return &genai.Schema{
		Type:             genai.TypeObject,
		Properties:       props,
		Required:         shape.FieldNames(),
		PropertyOrdering: shape.FieldNames(),
	}
}

func geminiError(modelName string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &EndpointError{
			Provider:   model.ProviderGemini,
			Model:      modelName,
			StatusCode: apiErr.Code,
			Status:     apiErr.Status,
			Message:    apiErr.Message,
			Err:        err,
		}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return &EndpointError{
			Provider:   model.ProviderGemini,
			Model:      modelName,
			StatusCode: apiErrPtr.Code,
			Status:     apiErrPtr.Status,
			Message:    apiErrPtr.Message,
			Err:        err,
		}
	}
	return &EndpointError{Provider: model.ProviderGemini, Model: modelName, Message: err.Error(), Err: err}
}
