package llmbackend

import (
	"context"
	"errors"
	"net"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIBackend runs LLM calls against an OpenAI-compatible endpoint.
type OpenAIBackend struct {
	client *openai.Client
}

// NewOpenAIBackend builds a backend. baseURL may be empty to use the
// default OpenAI API endpoint.
func NewOpenAIBackend(apiKey, baseURL string) *OpenAIBackend {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIBackend{client: openai.NewClientWithConfig(cfg)}
}

func (b *OpenAIBackend) Run(ctx context.Context, req Request) (Response, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    req.ModelID,
		Messages: msgs,
	}
	applyParameters(&chatReq, req.Parameters)

	if req.ResponseFormat != nil && req.ResponseFormat.Type == "json_schema" {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := b.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return Response{}, classify(err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, errors.New("llmbackend: empty response from backend")
	}
	return Response{
		Text:   resp.Choices[0].Message.Content,
		Tokens: int64(resp.Usage.TotalTokens),
	}, nil
}

func applyParameters(req *openai.ChatCompletionRequest, params map[string]interface{}) {
	if params == nil {
		return
	}
	if t, ok := params["temperature"].(float64); ok {
		req.Temperature = float32(t)
	}
	if mt, ok := params["maxTokens"].(float64); ok {
		req.MaxTokens = int(mt)
	}
	if tp, ok := params["topP"].(float64); ok {
		req.TopP = float32(tp)
	}
}

// classify tags network errors and HTTP 408, 429, 502, 503 and 504
// responses retryable, matching the llm handler's retryability rules;
// other API errors, including other 5xx statuses, are returned unchanged.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests, http.StatusRequestTimeout,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout, http.StatusBadGateway:
			return &RetryableError{Err: err}
		}
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &RetryableError{Err: err}
	}
	return err
}
