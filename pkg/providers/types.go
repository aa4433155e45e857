package providers

import "context"

// Message is one chat turn in the provider wire format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Schema is a JSON-schema fragment sent as an output-shape constraint.
type Schema struct {
	Type                 string             `json:"type"`
	Description          string             `json:"description,omitempty"`
	Properties           map[string]*Schema `json:"properties,omitempty"`
	Items                *Schema            `json:"items,omitempty"`
	Enum                 []string           `json:"enum,omitempty"`
	Required             []string           `json:"required,omitempty"`
	MaxItems             int                `json:"maxItems,omitempty"`
	AdditionalProperties *bool              `json:"additionalProperties,omitempty"`
}

// CompletionRequest is a single structured-output generation call.
// Schema constrains the response body; SchemaName labels the constraint
// for providers that require a named schema.
type CompletionRequest struct {
	System      string
	Prompt      string
	SchemaName  string
	Schema      *Schema
	Temperature float64
}

// Client issues structured-output completions against a generation service.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}
