package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/digital-iq/llm-report/internal/llm"
)

// Generate executes a prompt and returns the concatenated text blocks.
// No tools are provided; this is plain text completion.
func (c *Client) Generate(ctx context.Context, req llm.GenerateRequest) (string, error) {
	resp, err := c.inner.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.resolveModel(req.Model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	})
	if err != nil {
		return "", classifyError(err)
	}

	c.tracker.Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	var result strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			result.WriteString(variant.Text)
		}
	}
	return result.String(), nil
}

// classifyError maps SDK failures onto the llm error taxonomy.
func classifyError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &llm.BackendError{Status: apiErr.StatusCode, Body: apiErr.Error()}
	}
	return fmt.Errorf("%w: %v", llm.ErrBackendUnavailable, err)
}

var _ llm.Generator = (*Client)(nil)
