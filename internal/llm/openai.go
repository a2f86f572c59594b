package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pavelanni/mathgenius/internal/model"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
)

// OpenAIEndpoint talks to any OpenAI-compatible chat completions API.
// The document is sent as a data URL image part.
type OpenAIEndpoint struct {
	baseURL string
}

// NewOpenAI creates an endpoint. An empty baseURL uses api.openai.com.
func NewOpenAI(baseURL string) *OpenAIEndpoint {
	return &OpenAIEndpoint{baseURL: baseURL}
}

// Generate implements Endpoint.
func (e *OpenAIEndpoint) Generate(ctx context.Context, credential string, req Request) (string, error) {
	config := openai.DefaultConfig(credential)
	if e.baseURL != "" {
		config.BaseURL = e.baseURL
	}
	api := openai.NewClientWithConfig(config)

	dataURL := "data:" + req.Document.MIMEType + ";base64," + req.Document.Data
	schema := openAISchema(req.Shape)

	resp, err := api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: req.Candidate.Name,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemInstruction},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: dataURL, Detail: openai.ImageURLDetailHigh},
					},
					{Type: openai.ChatMessagePartTypeText, Text: req.UserInstruction},
				},
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "generated_content",
				Schema: &schema,
				Strict: true,
			},
		},
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", openAIError(req.Candidate.Name, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: %w", req.Candidate, ErrEmptyResponse)
	}
	slog.Debug("openai usage", "model", req.Candidate.Name, "total_tokens", resp.Usage.TotalTokens)
	return resp.Choices[0].Message.Content, nil
}

func openAISchema(shape model.Shape) jsonschema.Definition {
	props := make(map[string]jsonschema.Definition)
	for _, f := range shape.Fields() {
		props[f.Name] = jsonschema.Definition{Type: jsonschema.String, Description: f.Description}
	}
	return jsonschema.Definition{
		Type:                 jsonschema.Object,
		Properties:           props,
		Required:             shape.FieldNames(),
		AdditionalProperties: false,
	}
}

func openAIError(modelName string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &EndpointError{
			Provider:   model.ProviderOpenAI,
			Model:      modelName,
			StatusCode: apiErr.HTTPStatusCode,
			Status:     apiErr.Type,
			Message:    apiErr.Message,
			Err:        err,
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := reqErr.HTTPStatus
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return &EndpointError{
			Provider:   model.ProviderOpenAI,
			Model:      modelName,
			StatusCode: reqErr.HTTPStatusCode,
			Message:    msg,
			Err:        err,
		}
	}
	return &EndpointError{Provider: model.ProviderOpenAI, Model: modelName, Message: err.Error(), Err: err}
}
