// Package llm abstracts the multimodal model providers behind a single
// request/response surface so the analysis phases stay provider-agnostic.
package llm

import (
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"
	"github.com/rotisserie/eris"
)

// Provider completes a single multimodal prompt.
type Provider interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Image is a binary image attachment.
type Image struct {
	MediaType string // e.g. "image/jpeg"
	Data      []byte
}

// Request is a single-turn completion request. Images, when present, are
// attached ahead of the prompt text.
type Request struct {
	System      string
	Prompt      string
	Images      []Image
	MaxTokens   int64
	Temperature float64
}

// Response carries the model's text output.
type Response struct {
	Text         string
	Model        string
	InputTokens  int64
	OutputTokens int64
}

// SchemaJSON reflects T into a JSON Schema document for embedding into
// prompts as an output contract.
func SchemaJSON[T any]() (string, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	schema := reflector.Reflect(v)
	b, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "llm: marshal schema")
	}
	return string(b), nil
}

// MustSchemaJSON is SchemaJSON for package-level prompt construction, where
// a reflection failure is a programming error.
func MustSchemaJSON[T any]() string {
	s, err := SchemaJSON[T]()
	if err != nil {
		panic(err)
	}
	return s
}
