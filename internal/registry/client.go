// Package registry fetches package metadata (packuments) from npm-compatible
// registries.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/dnscache"

	"github.com/spiffcs/deprecator/internal/constants"
	"github.com/spiffcs/deprecator/internal/log"
	"github.com/spiffcs/deprecator/internal/model"
)

// ErrUnavailable is returned when a registry host's circuit is open.
var ErrUnavailable = errors.New("registry unavailable")

// Client fetches release metadata.
type Client struct {
	httpClient *http.Client
	registry   string
	scoped     map[string]string
	token      string
	userAgent  string
	breakers   *breakers
	stop       chan struct{}
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithRegistry sets the default registry URL.
func WithRegistry(url string) Option {
	return func(cl *Client) {
		if url != "" {
			cl.registry = url
		}
	}
}

// WithScopedRegistries maps scopes such as "@acme" to registry URLs.
func WithScopedRegistries(scoped map[string]string) Option {
	return func(cl *Client) {
		for scope, url := range scoped {
			if !strings.HasPrefix(scope, "@") {
				scope = "@" + scope
			}
			cl.scoped[scope] = url
		}
	}
}

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(cl *Client) {
		cl.token = token
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(cl *Client) {
		cl.userAgent = ua
	}
}

// New creates a Client. Call Close to release the DNS refresher.
func New(opts ...Option) *Client {
	c := &Client{
		registry:  constants.DefaultRegistry,
		scoped:    map[string]string{},
		userAgent: "deprecator",
		breakers:  newBreakers(),
		stop:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = c.newHTTPClient()
	}
	return c
}

// newHTTPClient builds a client whose dialer resolves through a DNS cache
// refreshed until Close is called.
func (c *Client) newHTTPClient() *http.Client {
	resolver := &dnscache.Resolver{}
	go func() {
		ticker := time.NewTicker(constants.DNSRefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-c.stop:
				return
			case <-ticker.C:
				resolver.Refresh(true)
			}
		}
	}()

	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	return &http.Client{
		Timeout: constants.RegistryTimeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				host, port, err := net.SplitHostPort(addr)
				if err != nil {
					return nil, err
				}
				ips, err := resolver.LookupHost(ctx, host)
				if err != nil {
					return nil, err
				}
				for _, ip := range ips {
					conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
					if err == nil {
						return conn, nil
					}
				}
				return nil, fmt.Errorf("failed to dial any resolved IP for %s", host)
			},
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}

// Close stops background work.
func (c *Client) Close() {
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
}

// RegistryFor returns the registry serving name, honoring scoped registries.
func (c *Client) RegistryFor(name string) string {
	if strings.HasPrefix(name, "@") {
		scope, _, _ := strings.Cut(name, "/")
		if url, ok := c.scoped[scope]; ok {
			return url
		}
	}
	return c.registry
}

// PackageURL returns the packument URL for name under registry. The slash of
// a scoped name is escaped, so scoped packages resolve as "@scope%2Fname".
func PackageURL(registry, name string) string {
	return strings.TrimSuffix(registry, "/") + "/" + url.PathEscape(name)
}

// Fetch retrieves and parses the full packument for name.
func (c *Client) Fetch(ctx context.Context, name string) (*model.ReleaseMetadata, error) {
	pkgURL := PackageURL(c.RegistryFor(name), name)
	host := hostOf(pkgURL)
	breaker := c.breakers.get(host)

	fetchErr := func(status int, err error) error {
		return &model.RegistryFetchError{Package: name, URL: pkgURL, StatusCode: status, Err: err}
	}

	if !breaker.Ready() {
		return nil, fetchErr(0, fmt.Errorf("circuit breaker open for %s: %w", host, ErrUnavailable))
	}

	log.Debug("fetching package metadata", "package", name, "url", pkgURL)

	var (
		body   []byte
		status int
		err    error
	)
	// Only transport failures and server errors count against the breaker.
	callErr := breaker.Call(func() error {
		body, status, err = c.get(ctx, pkgURL)
		if err != nil || status >= http.StatusInternalServerError {
			return fmt.Errorf("registry %s failed", host)
		}
		return nil
	}, 0)
	if err != nil {
		return nil, fetchErr(0, err)
	}
	if callErr != nil && status == 0 {
		return nil, fetchErr(0, callErr)
	}
	if status < 200 || status > 299 {
		return nil, fetchErr(status, statusDetail(body))
	}

	log.Trace("fetched package metadata", "package", name, "bytes", len(body))

	meta, err := model.Parse(body, name)
	if err != nil {
		return nil, fetchErr(status, err)
	}
	return meta, nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func statusDetail(body []byte) error {
	detail := strings.TrimSpace(string(body))
	if detail == "" {
		return nil
	}
	if len(detail) > 256 {
		detail = detail[:256]
	}
	return errors.New(detail)
}

// BreakerStates returns "open" or "closed" for every registry host contacted.
func (c *Client) BreakerStates() map[string]string {
	return c.breakers.states()
}
