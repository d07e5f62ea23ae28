package llm

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/gravi-labs/retail-verify/pkg/anthropic"
)

// AnthropicProvider adapts the Anthropic message API to the Provider surface.
type AnthropicProvider struct {
	client anthropic.Client
	model  string
}

// NewAnthropicProvider wraps an Anthropic client for the given model.
func NewAnthropicProvider(client anthropic.Client, model string) *AnthropicProvider {
	return &AnthropicProvider{client: client, model: model}
}

func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	images := make([]anthropic.ImageBlock, len(req.Images))
	for i, img := range req.Images {
		images[i] = anthropic.ImageBlock{MediaType: img.MediaType, Data: img.Data}
	}

	temp := req.Temperature
	resp, err := p.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     p.model,
		MaxTokens: req.MaxTokens,
		System:    req.System,
		Messages: []anthropic.Message{
			{Role: "user", Content: req.Prompt, Images: images},
		},
		Temperature: &temp,
	})
	if err != nil {
		return nil, eris.Wrap(err, "llm: anthropic complete")
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	resp.Usage.LogCost(p.model, "complete")

	return &Response{
		Text:         sb.String(),
		Model:        resp.Model,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}
