package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/medical-doc-assistant/internal/core/domain"
	"github.com/kirillkom/medical-doc-assistant/internal/core/ports"
	"github.com/kirillkom/medical-doc-assistant/internal/infrastructure/resilience"
)

const defaultRequestTimeout = 180 * time.Second

// Client talks to the Ollama /api/generate endpoint.
type Client struct {
	baseURL        string
	requestTimeout time.Duration
	httpClient     *http.Client
	executor       *resilience.Executor
}

var _ ports.InferenceService = (*Client)(nil)

type Options struct {
	RequestTimeout     time.Duration
	ResilienceExecutor *resilience.Executor
}

func New(baseURL string) *Client {
	return NewWithOptions(baseURL, Options{})
}

func NewWithOptions(baseURL string, opts Options) *Client {
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	executor := opts.ResilienceExecutor
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		requestTimeout: timeout,
		// Streams are bounded by the caller context, so the client itself has no timeout.
		httpClient: &http.Client{},
		executor:   executor,
	}
}

// Complete returns the whole model response for req.
func (c *Client) Complete(ctx context.Context, req domain.InferenceRequest) (string, error) {
	if err := validateRequest(req); err != nil {
		return "", err
	}

	text, err := resilience.Call(ctx, c.executor, "ollama.generate", func(callCtx context.Context) (string, error) {
		callCtx, cancel := context.WithTimeout(callCtx, c.requestTimeout)
		defer cancel()

		var response generateChunk
		if err := c.postJSON(callCtx, "/api/generate", buildGenerateRequest(req, false), &response, "generate"); err != nil {
			return "", err
		}
		if response.Error != "" {
			return "", fmt.Errorf("ollama generate: %s", response.Error)
		}
		return strings.TrimSpace(response.Response), nil
	}, classifyOllamaError)
	if err != nil {
		return "", mapOllamaError("ollama generate", err)
	}
	return text, nil
}

// StreamComplete opens a streaming generation. Only opening the stream is retried.
func (c *Client) StreamComplete(ctx context.Context, req domain.InferenceRequest) (ports.TextStream, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	resp, err := resilience.Call(ctx, c.executor, "ollama.generate_stream", func(callCtx context.Context) (*http.Response, error) {
		return c.openStream(callCtx, buildGenerateRequest(req, true))
	}, classifyOllamaError)
	if err != nil {
		return nil, mapOllamaError("ollama generate stream", err)
	}
	return newNDJSONStream(resp.Body), nil
}

func validateRequest(req domain.InferenceRequest) error {
	if strings.TrimSpace(req.Model) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "ollama request", fmt.Errorf("model is required"))
	}
	if strings.TrimSpace(req.Prompt) == "" && len(req.Images) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "ollama request", fmt.Errorf("prompt or image is required"))
	}
	return nil
}
