package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/BLNCname/GMailSecretary/internal/modelapi"
)

// ErrBadDimensions is returned when the endpoint answers with a vector of the wrong length.
var ErrBadDimensions = errors.New("embedding endpoint returned unexpected dimensions")

type embeddingsRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// HTTPEmbedder calls an OpenAI-compatible /embeddings endpoint.
type HTTPEmbedder struct {
	client *modelapi.Client
	model  string
	dim    int
}

func NewHTTPEmbedder(client *modelapi.Client, model string, dimensions int) *HTTPEmbedder {
	return &HTTPEmbedder{client: client, model: model, dim: dimensions}
}

func (e *HTTPEmbedder) Dimensions() int {
	return e.dim
}

func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var resp embeddingsResponse
	if err := e.client.PostJSON(ctx, "/embeddings", embeddingsRequest{Model: e.model, Input: text}, &resp); err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrBadDimensions)
	}

	vec := resp.Data[0].Embedding
	if len(vec) != e.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrBadDimensions, len(vec), e.dim)
	}

	Normalize(vec)
	return vec, nil
}
