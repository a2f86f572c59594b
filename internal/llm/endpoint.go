package llm

import (
	"context"
	"fmt"

	"github.com/pavelanni/mathgenius/internal/model"
)

// Request is one call against a candidate model.
type Request struct {
	Candidate         model.Candidate
	Document          model.EncodedDocument
	UserInstruction   string
	SystemInstruction string
	Temperature       float32
	Shape             model.Shape // fields of the required JSON object
}

// Endpoint performs a single completion call and returns the raw text payload.
// Failures should be *EndpointError when the provider reports a status.
type Endpoint interface {
	Generate(ctx context.Context, credential string, req Request) (string, error)
}

// EndpointFunc adapts a function to Endpoint.
type EndpointFunc func(ctx context.Context, credential string, req Request) (string, error)

// Generate calls f.
func (f EndpointFunc) Generate(ctx context.Context, credential string, req Request) (string, error) {
	return f(ctx, credential, req)
}

// Router dispatches a request to the endpoint registered for its provider.
type Router map[model.Provider]Endpoint

// Generate implements Endpoint.
func (r Router) Generate(ctx context.Context, credential string, req Request) (string, error) {
	ep, ok := r[req.Candidate.Provider]
	if !ok {
		return "", fmt.Errorf("no endpoint configured for provider %q", req.Candidate.Provider)
	}
	return ep.Generate(ctx, credential, req)
}
