package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

const (
	// DefaultModel is the model the host process is expected to serve
	DefaultModel = "llama3.2"
	// DefaultURL is the default Ollama API endpoint
	DefaultURL = "http://localhost:11434"
)

// Client wraps the Ollama API client
type Client struct {
	client *api.Client
	base   string
	model  string
}

// NewClient creates a new Ollama client
func NewClient(rawURL, model string) (*Client, error) {
	if rawURL == "" {
		rawURL = DefaultURL
	}
	if model == "" {
		model = DefaultModel
	}

	base, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ollama url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid ollama url: %s", rawURL)
	}

	return &Client{
		client: api.NewClient(base, &http.Client{Timeout: 10 * time.Second}),
		base:   base.String(),
		model:  model,
	}, nil
}

// IsAvailable checks if Ollama is running and accessible
func IsAvailable(rawURL string) bool {
	if rawURL == "" {
		rawURL = DefaultURL
	}

	client := &http.Client{
		Timeout: 2 * time.Second,
	}

	resp, err := client.Get(rawURL)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// Name identifies the probe in recorded errors
func (c *Client) Name() string { return "ollama" }

// Check verifies that the server answers and serves the configured model
func (c *Client) Check(ctx context.Context) error {
	if err := c.client.Heartbeat(ctx); err != nil {
		return fmt.Errorf("ollama at %s unreachable: %w", c.base, err)
	}
	return c.CheckModel(ctx)
}

// CheckModel checks if the specified model is available
func (c *Client) CheckModel(ctx context.Context) error {
	listResp, err := c.client.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list models: %w", err)
	}

	for _, model := range listResp.Models {
		// "llama3.2" matches "llama3.2:latest"
		if model.Name == c.model || strings.TrimSuffix(model.Name, ":latest") == c.model {
			return nil
		}
	}

	return fmt.Errorf("model '%s' not found - run: ollama pull %s", c.model, c.model)
}

// GetModel returns the model being used
func (c *Client) GetModel() string {
	return c.model
}
