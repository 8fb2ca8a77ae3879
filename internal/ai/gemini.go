// Package ai wraps the Gemini text-completion service behind a minimal
// prompt-in, text-out client. The rest of the application depends on the
// respond.TextGenerator interface, not on this package, so the provider can
// be swapped without touching the pipeline.
package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-2.0-flash"

// Client is a thin Gemini wrapper. It performs no retries and imposes no
// timeout of its own; callers bound the call through ctx.
type Client struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewClient constructs a Gemini client with the given API key and model name.
// An empty model falls back to DefaultModel.
func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini: api key is empty")
	}
	gc, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}

	gm := gc.GenerativeModel(model)
	// Lower temperature keeps answers close to the store facts embedded in
	// the prompt.
	gm.SetTemperature(0.3)
	gm.SetTopK(20)
	gm.SetTopP(0.9)
	gm.SetMaxOutputTokens(1024)

	return &Client{client: gc, model: gm}, nil
}

// Generate sends the prompt and returns the completion text verbatim.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini: generate content: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("gemini: no response candidates")
	}
	return extractText(resp), nil
}

// Close releases the underlying API connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// extractText flattens all candidate parts into a single string.
func extractText(resp *genai.GenerateContentResponse) string {
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			fmt.Fprintf(&b, "%v", part)
		}
	}
	return b.String()
}
