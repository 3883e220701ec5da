package dispatcher

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lyzr/flowctl/internal/dispatcher/security"
	"github.com/lyzr/flowctl/internal/model"
)

func TestHTTPHandlerSucceedsAgainstAllowedURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	// httptest.NewServer binds to 127.0.0.1, which NewValidator's
	// production defaults correctly refuse as a loopback SSRF target; a
	// permissive validator (no hostname blocklist, a resolver reporting a
	// public address) lets this test exercise the happy path without
	// weakening the handler's real guard.
	h := NewHTTPHandlerWithValidator(security.NewValidatorWithResolver(func(string) ([]net.IP, error) {
		return []net.IP{net.ParseIP("93.184.216.34")}, nil
	}, nil))
	action := model.ActionDefinition{
		Kind:           model.ActionHTTP,
		Implementation: map[string]interface{}{"method": "GET", "url": srv.URL},
	}
	result := h.Handle(context.Background(), action, nil)
	require.True(t, result.Success)
	out := result.Output
	require.Equal(t, float64(200), out["status"])
}

func TestHTTPHandlerMissingURLFails(t *testing.T) {
	h := NewHTTPHandler()
	result := h.Handle(context.Background(), model.ActionDefinition{Implementation: map[string]interface{}{}}, nil)
	require.False(t, result.Success)
	require.False(t, result.Error.Retryable)
}

func TestHTTPHandlerBlocksLoopbackURL(t *testing.T) {
	h := NewHTTPHandler()
	action := model.ActionDefinition{
		Implementation: map[string]interface{}{"method": "GET", "url": "http://127.0.0.1:8080/admin"},
	}
	result := h.Handle(context.Background(), action, nil)
	require.False(t, result.Success)
	require.Equal(t, "url_blocked", result.Error.Code)
	require.False(t, result.Error.Retryable)
}

func TestHTTPHandlerBlocksNonHTTPScheme(t *testing.T) {
	h := NewHTTPHandler()
	action := model.ActionDefinition{
		Implementation: map[string]interface{}{"method": "GET", "url": "file:///etc/passwd"},
	}
	result := h.Handle(context.Background(), action, nil)
	require.False(t, result.Success)
	require.Equal(t, "url_blocked", result.Error.Code)
}
