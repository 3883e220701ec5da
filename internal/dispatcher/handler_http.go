package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/lyzr/flowctl/internal/dispatcher/security"
	"github.com/lyzr/flowctl/internal/model"
)

// HTTPHandler implements the `http` action kind with the standard
// library's net/http, matching the teacher's own HTTP client — it never
// reaches for a third-party HTTP client either. Every target URL is
// screened by security.Validator first: the url/method/headers of an http
// action come from the workflow definition or task input, not a trusted
// operator, so this is the engine's one SSRF choke point.
type HTTPHandler struct {
	client    *http.Client
	validator *security.Validator
}

func NewHTTPHandler() *HTTPHandler {
	return NewHTTPHandlerWithValidator(security.NewValidator())
}

// NewHTTPHandlerWithValidator builds an HTTPHandler against a
// caller-supplied validator, letting tests relax the production SSRF guard
// (e.g. to exercise the happy path against an httptest.Server on
// 127.0.0.1) without weakening NewHTTPHandler's default.
func NewHTTPHandlerWithValidator(validator *security.Validator) *HTTPHandler {
	return &HTTPHandler{
		client:    &http.Client{Timeout: 30 * time.Second},
		validator: validator,
	}
}

func (h *HTTPHandler) Handle(ctx context.Context, action model.ActionDefinition, input map[string]interface{}) ActionResult {
	impl := action.Implementation
	method, _ := impl["method"].(string)
	if method == "" {
		method = http.MethodGet
	}
	url, _ := impl["url"].(string)
	if url == "" {
		return Failf("invalid_implementation", false, "http action missing url")
	}
	if err := h.validator.Validate(url); err != nil {
		return Failf("url_blocked", false, "%v", err)
	}

	var body io.Reader
	if b, ok := impl["body"]; ok {
		payload, err := json.Marshal(b)
		if err != nil {
			return Failf("invalid_implementation", false, "marshaling http body: %v", err)
		}
		body = bytes.NewReader(payload)
	} else if b, ok := input["body"]; ok {
		payload, err := json.Marshal(b)
		if err == nil {
			body = bytes.NewReader(payload)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return Failf("invalid_implementation", false, "building http request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if headers, ok := impl["headers"].(map[string]interface{}); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		var netErr net.Error
		retryable := errors.As(err, &netErr)
		return Failf("http_request_failed", retryable, "%v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Failf("http_response_read_failed", true, "%v", err)
	}

	var parsed interface{}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		parsed = string(respBody)
	}

	if resp.StatusCode >= 500 {
		return Failf("http_server_error", true, "http status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return Failf("http_client_error", false, "http status %d", resp.StatusCode)
	}

	return ActionResult{
		Success: true,
		Output: map[string]interface{}{
			"status": float64(resp.StatusCode),
			"body":   parsed,
		},
	}
}
