// Package embeddings talks to the CLIP-style embedding service that maps
// images and text into one vector space.
package embeddings

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/aryannaik/image-search/internal/config"
)

// ErrEmptyEmbeddings is returned when the service answers without vectors.
var ErrEmptyEmbeddings = errors.New("embedding service returned empty embeddings")

// ImageEmbedder embeds image files. The result has one slot per input path;
// a nil slot means that image could not be embedded. A non-nil error means
// the whole call failed.
type ImageEmbedder interface {
	EmbedImages(ctx context.Context, paths []string) ([][]float32, error)
}

// TextEmbedder embeds a text query into the image vector space.
type TextEmbedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Embedder is a full embedding service client.
type Embedder interface {
	ImageEmbedder
	TextEmbedder
	Name() string
	IsHealthy(ctx context.Context) bool
}

// New creates the embedder selected by cfg.Provider.
func New(cfg config.EmbedConfig) (Embedder, error) {
	switch cfg.Provider {
	case "", "http":
		return NewClient(cfg.Host, cfg.Model), nil
	case "openai":
		return NewOpenAIEmbedder(cfg.Host, cfg.APIKey, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (valid: http, openai)", cfg.Provider)
	}
}

// readImages loads each path as base64. Files that cannot be read get an
// empty string and ok[i] == false.
func readImages(paths []string, encode func(path string, data []byte) string) (encoded []string, ok []bool) {
	encoded = make([]string, len(paths))
	ok = make([]bool, len(paths))
	for i, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil || len(data) == 0 {
			continue
		}
		encoded[i] = encode(p, data)
		ok[i] = true
	}
	return encoded, ok
}

func rawBase64(_ string, data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// dataURI encodes an image as a data: URI, the form OpenAI-compatible
// multimodal embedding servers accept in place of text.
func dataURI(path string, data []byte) string {
	ext := strings.ToLower(filepath.Ext(path))
	typ := mime.TypeByExtension(ext)
	if typ == "" {
		typ = "image/" + strings.TrimPrefix(ext, ".")
	}
	if i := strings.IndexByte(typ, ';'); i >= 0 {
		typ = typ[:i]
	}
	return "data:" + typ + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// scatter places the vectors returned for the readable inputs back into a
// slice aligned with the original inputs.
func scatter(ok []bool, vectors [][]float32) ([][]float32, error) {
	want := 0
	for _, o := range ok {
		if o {
			want++
		}
	}
	if len(vectors) != want {
		return nil, fmt.Errorf("embedding service returned %d vectors for %d images", len(vectors), want)
	}

	out := make([][]float32, len(ok))
	j := 0
	for i, o := range ok {
		if !o {
			continue
		}
		if len(vectors[j]) > 0 {
			out[i] = vectors[j]
		}
		j++
	}
	return out, nil
}

func compact(items []string, ok []bool) []string {
	out := make([]string, 0, len(items))
	for i, s := range items {
		if ok[i] {
			out = append(out, s)
		}
	}
	return out
}
