// Package llmbackend defines the LLM backend interface §6 names and two
// implementations: an OpenAI-compatible backend (github.com/sashabaranov/go-openai)
// and a deterministic mock used in tests and when LLM_BACKEND=mock.
package llmbackend

import "context"

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseFormat requests structured JSON output from the backend.
type ResponseFormat struct {
	Type       string                 `json:"type"` // "json_schema"
	JSONSchema map[string]interface{} `json:"json_schema,omitempty"`
}

// Request is one LLM invocation.
type Request struct {
	ModelID        string
	Messages       []Message
	ResponseFormat *ResponseFormat
	Parameters     map[string]interface{}
}

// Response is the raw backend result. Response is either a string (no
// schema, or schema but the backend returned raw text requiring the
// caller to JSON-parse) or a map (schema, backend pre-parsed JSON).
type Response struct {
	Text   string
	Parsed map[string]interface{}
	Tokens int64
}

// Backend runs one LLM call.
type Backend interface {
	Run(ctx context.Context, req Request) (Response, error)
}

// RetryableError marks a backend error as transient (rate limit, timeout,
// temporary unavailability, network) per the llm handler's retryability
// classification.
type RetryableError struct{ Err error }

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }
