package embeddings

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIEmbedder uses an OpenAI-compatible /v1/embeddings endpoint serving
// a multimodal (CLIP) model. Images are sent as data: URIs.
type OpenAIEmbedder struct {
	client openai.Client
	model  string
}

// NewOpenAIEmbedder creates a client for baseURL ("" for api.openai.com).
// A missing /v1 suffix is added.
func NewOpenAIEmbedder(baseURL, apiKey, model string) *OpenAIEmbedder {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(normalizeBaseURL(baseURL)))
	}
	return &OpenAIEmbedder{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

func normalizeBaseURL(u string) string {
	u = strings.TrimSuffix(u, "/")
	if !strings.HasSuffix(u, "/v1") {
		u += "/v1"
	}
	return u + "/"
}

func (p *OpenAIEmbedder) Name() string {
	return "openai"
}

func (p *OpenAIEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, ErrEmptyEmbeddings
	}
	return vectors[0], nil
}

func (p *OpenAIEmbedder) EmbedImages(ctx context.Context, paths []string) ([][]float32, error) {
	images, ok := readImages(paths, dataURI)
	payload := compact(images, ok)
	if len(payload) == 0 {
		return make([][]float32, len(paths)), nil
	}

	vectors, err := p.embed(ctx, payload)
	if err != nil {
		return nil, err
	}
	return scatter(ok, vectors)
}

func (p *OpenAIEmbedder) embed(ctx context.Context, inputs []string) ([][]float32, error) {
	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: p.model,
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: inputs,
		},
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedding API error: %w", err)
	}

	out := make([][]float32, len(inputs))
	for _, d := range resp.Data {
		idx := int(d.Index)
		if idx < 0 || idx >= len(out) {
			return nil, fmt.Errorf("openai embedding API returned index %d for %d inputs", idx, len(inputs))
		}
		vec := make([]float32, len(d.Embedding))
		for i, x := range d.Embedding {
			vec[i] = float32(x)
		}
		out[idx] = vec
	}
	return out, nil
}

// IsHealthy lists models to check that the service is reachable.
func (p *OpenAIEmbedder) IsHealthy(ctx context.Context) bool {
	_, err := p.client.Models.List(ctx)
	return err == nil
}
