package security

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResolver map[string][]string

func (r stubResolver) LookupIPAddr(_ context.Context, host string) ([]net.IPAddr, error) {
	ips, ok := r[host]
	if !ok {
		return nil, errors.New("no such host")
	}
	out := make([]net.IPAddr, 0, len(ips))
	for _, ip := range ips {
		out = append(out, net.IPAddr{IP: net.ParseIP(ip)})
	}
	return out, nil
}

func TestGuard_Blocked(t *testing.T) {
	g := NewGuard(stubResolver{})

	tests := []struct {
		addr    string
		blocked bool
	}{
		{"127.0.0.1", true},
		{"10.1.2.3", true},
		{"172.20.0.1", true},
		{"192.168.1.1", true},
		{"169.254.169.254", true},
		{"100.64.0.1", true},
		{"::1", true},
		{"fd00::1", true},
		{"fe80::1", true},
		{"::ffff:127.0.0.1", true},
		{"93.184.216.34", false},
		{"8.8.8.8", false},
		{"2606:4700::1111", false},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			assert.Equal(t, tt.blocked, g.Blocked(netip.MustParseAddr(tt.addr)))
		})
	}
}

func TestGuard_DialContext_RejectsBlockedResolution(t *testing.T) {
	g := NewGuard(stubResolver{
		"metadata.evil.test": {"169.254.169.254"},
		"mixed.evil.test":    {"93.184.216.34", "10.0.0.5"},
	})

	for _, host := range []string{"metadata.evil.test", "mixed.evil.test"} {
		_, err := g.DialContext(context.Background(), "tcp", net.JoinHostPort(host, "443"))
		assert.ErrorIs(t, err, ErrBlockedDestination, host)
	}

	_, err := g.DialContext(context.Background(), "tcp", "127.0.0.1:80")
	assert.ErrorIs(t, err, ErrBlockedDestination)
}

func TestGuard_DialContext_DNSFailure(t *testing.T) {
	g := NewGuard(stubResolver{})
	_, err := g.DialContext(context.Background(), "tcp", "unknown.test:443")
	assert.ErrorIs(t, err, ErrDNSFailed)
}

func TestGuard_DialContext_InvalidAddress(t *testing.T) {
	g := NewGuard(stubResolver{})
	_, err := g.DialContext(context.Background(), "tcp", "no-port")
	require.Error(t, err)
}

func TestGuard_CheckRedirect(t *testing.T) {
	g := NewGuard(stubResolver{
		"public.test":  {"93.184.216.34"},
		"private.test": {"192.168.0.10"},
	})
	check := g.CheckRedirect(2)

	req := func(raw string) *http.Request {
		u, _ := url.Parse(raw)
		return (&http.Request{URL: u}).WithContext(context.Background())
	}

	assert.NoError(t, check(req("https://public.test/next"), nil))
	assert.ErrorIs(t, check(req("https://private.test/next"), nil), ErrBlockedDestination)
	assert.ErrorIs(t, check(req("http://127.0.0.1/"), nil), ErrBlockedDestination)
	assert.ErrorIs(t, check(req("https://public.test/"), make([]*http.Request, 2)), ErrTooManyRedirects)
}

func TestGuard_NewClient_RefusesLoopbackServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewGuard(stubResolver{}).NewClient(2*time.Second, 3)
	resp, err := client.Get(srv.URL)
	if resp != nil {
		resp.Body.Close()
	}
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBlockedDestination)
}
