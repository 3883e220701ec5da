package security

import (
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatorAllowsHTTPAndHTTPS(t *testing.T) {
	v := NewValidatorWithResolver(func(string) ([]net.IP, error) {
		return []net.IP{net.ParseIP("93.184.216.34")}, nil
	}, nil)
	assert.NoError(t, v.Validate("http://example.com/widgets"))
	assert.NoError(t, v.Validate("https://example.com/widgets?q=1"))
}

func TestValidatorBlocksNonHTTPScheme(t *testing.T) {
	v := NewValidator()
	err := v.Validate("ftp://example.com/file")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheme")
}

func TestValidatorBlocksDefaultHostnames(t *testing.T) {
	v := NewValidator()
	for _, host := range []string{"localhost", "127.0.0.1", "0.0.0.0"} {
		err := v.Validate(fmt.Sprintf("http://%s/", host))
		require.Error(t, err, host)
		assert.Contains(t, err.Error(), "loopback")
	}
}

func TestValidatorCustomBlocklistOverridesDefault(t *testing.T) {
	// A caller-supplied nil blocklist (as tests use to exercise an
	// httptest.Server on 127.0.0.1) disables the hostname check entirely;
	// resolution still runs.
	v := NewValidatorWithResolver(func(string) ([]net.IP, error) {
		return []net.IP{net.ParseIP("93.184.216.34")}, nil
	}, nil)
	assert.NoError(t, v.Validate("http://127.0.0.1:9999/ok"))
}

func TestValidatorBlocksResolvedPrivateAndSpecialIPs(t *testing.T) {
	cases := []struct {
		name string
		ip   string
	}{
		{"loopback", "127.0.0.1"},
		{"private", "10.1.2.3"},
		{"link-local (cloud metadata)", "169.254.169.254"},
		{"multicast", "224.0.0.1"},
		{"unspecified", "0.0.0.0"},
	}
	for _, tc := range cases {
		v := NewValidatorWithResolver(func(string) ([]net.IP, error) {
			return []net.IP{net.ParseIP(tc.ip)}, nil
		}, nil)
		err := v.Validate("http://internal.example.com/")
		require.Error(t, err, tc.name)
	}
}

func TestValidatorAllowsOnDNSLookupFailure(t *testing.T) {
	// An inconclusive DNS lookup is not treated as a block; the request
	// itself is left to fail on dial.
	v := NewValidatorWithResolver(func(string) ([]net.IP, error) {
		return nil, fmt.Errorf("no such host")
	}, nil)
	assert.NoError(t, v.Validate("http://nonexistent.invalid/"))
}

func TestValidatorBlocksPathTraversalAndFileAccess(t *testing.T) {
	v := NewValidatorWithResolver(func(string) ([]net.IP, error) {
		return []net.IP{net.ParseIP("93.184.216.34")}, nil
	}, nil)
	for _, target := range []string{
		"http://example.com/../../etc/passwd",
		"http://example.com/proc/self/environ",
		"http://example.com/lookup?next=..%2f..%2fetc%2fpasswd",
	} {
		err := v.Validate(target)
		require.Error(t, err, target)
	}
}

func TestValidatorRejectsURLWithNoHost(t *testing.T) {
	v := NewValidator()
	err := v.Validate("http:///no-host")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no host")
}
