package embeddings

// embedRequest is the request body for the service's /api/embed endpoint.
type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// imageEmbedRequest carries base64-encoded image bytes to /api/embed/image.
type imageEmbedRequest struct {
	Model  string   `json:"model"`
	Images []string `json:"images"`
}

// embedResponse is returned by both endpoints. A null entry marks an input
// the service could not embed.
type embedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}
