package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client talks to an embedding service exposing Ollama-style JSON endpoints
// for text (/api/embed) and images (/api/embed/image).
type Client struct {
	host       string
	model      string
	httpClient *http.Client
}

func NewClient(host, model string) *Client {
	return &Client{
		host:  strings.TrimSuffix(host, "/"),
		model: model,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

func (c *Client) Name() string {
	return "http"
}

// EmbedText returns the embedding vector for the given text.
func (c *Client) EmbedText(ctx context.Context, text string) ([]float32, error) {
	var result embedResponse
	if err := c.post(ctx, "/api/embed", embedRequest{Model: c.model, Input: []string{text}}, &result); err != nil {
		return nil, err
	}

	if len(result.Embeddings) == 0 || len(result.Embeddings[0]) == 0 {
		return nil, ErrEmptyEmbeddings
	}
	return result.Embeddings[0], nil
}

// EmbedImages sends the readable images in one request. Unreadable files
// and images the service rejects come back as nil slots.
func (c *Client) EmbedImages(ctx context.Context, paths []string) ([][]float32, error) {
	images, ok := readImages(paths, rawBase64)
	payload := compact(images, ok)
	if len(payload) == 0 {
		return make([][]float32, len(paths)), nil
	}

	var result embedResponse
	if err := c.post(ctx, "/api/embed/image", imageEmbedRequest{Model: c.model, Images: payload}, &result); err != nil {
		return nil, err
	}
	return scatter(ok, result.Embeddings)
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("embed request (is the embedding service running at %s?): %w", c.host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("embed %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode embed response: %w", err)
	}
	return nil
}

// IsHealthy checks if the service is reachable.
func (c *Client) IsHealthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
