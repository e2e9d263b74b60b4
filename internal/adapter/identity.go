package adapter

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/whale-tracker/internal/config"
)

// Identity is the outbound network identity used for one request
type Identity struct {
	UserAgent string
	Proxy     *url.URL
}

// IdentityRotator picks a user agent and proxy session for every request
type IdentityRotator struct {
	agents []string
	proxy  config.ProxyConfig

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewIdentityRotator creates a rotator over the given user agents and optional proxy
func NewIdentityRotator(agents []string, proxy config.ProxyConfig) *IdentityRotator {
	return &IdentityRotator{
		agents: agents,
		proxy:  proxy,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 - identity rotation, not security
	}
}

// Next returns the identity for the next request
func (r *IdentityRotator) Next() (Identity, error) {
	r.mu.Lock()
	var agent string
	if len(r.agents) > 0 {
		agent = r.agents[r.rnd.Intn(len(r.agents))]
	}
	session := r.rnd.Intn(9999) + 1
	r.mu.Unlock()

	id := Identity{UserAgent: agent}
	if !r.proxy.Enabled() {
		return id, nil
	}

	raw := strings.ReplaceAll(r.proxy.URL, "{session}", strconv.Itoa(session))
	proxyURL, err := url.Parse(raw)
	if err != nil {
		return id, fmt.Errorf("invalid proxy url: %w", err)
	}
	if r.proxy.Username != "" {
		proxyURL.User = url.UserPassword(r.proxy.Username, r.proxy.Password)
	}
	id.Proxy = proxyURL
	return id, nil
}

type proxyKey struct{}

// withProxy routes requests made with ctx through proxy
func withProxy(ctx context.Context, proxy *url.URL) context.Context {
	if proxy == nil {
		return ctx
	}
	return context.WithValue(ctx, proxyKey{}, proxy)
}

// newRotatingTransport returns a transport that takes its proxy from the request context
func newRotatingTransport() *http.Transport {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = func(req *http.Request) (*url.URL, error) {
		if proxy, ok := req.Context().Value(proxyKey{}).(*url.URL); ok {
			return proxy, nil
		}
		return nil, nil
	}
	return transport
}
