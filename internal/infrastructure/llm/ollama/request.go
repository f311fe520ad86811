package ollama

import (
	"encoding/base64"

	"github.com/kirillkom/medical-doc-assistant/internal/core/domain"
)

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	System  string          `json:"system,omitempty"`
	Images  []string        `json:"images,omitempty"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
}

// generateChunk is both the non-streaming response and one NDJSON line of a stream.
type generateChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

func buildGenerateRequest(req domain.InferenceRequest, stream bool) generateRequest {
	out := generateRequest{
		Model:   req.Model,
		Prompt:  req.Prompt,
		System:  req.System,
		Stream:  stream,
		Options: generateOptions{Temperature: 0.2},
	}
	for _, img := range req.Images {
		out.Images = append(out.Images, base64.StdEncoding.EncodeToString(img.Data))
	}
	return out
}
