package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"golang.org/x/net/proxy"

	"github.com/nao1215/crawlscope/internal/model"
)

const (
	// DefaultTimeout is the ceiling for a single request. Callers normally
	// impose a shorter deadline through the context.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxBodySize caps how much of a response body is read.
	DefaultMaxBodySize = 10 * 1024 * 1024

	// maxRedirects stops redirect loops while allowing normal redirect chains.
	maxRedirects = 10
)

// Fetcher performs one GET and returns the response as a FetchResult.
// A non-2xx status is a result, not an error.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, headers map[string]string) (*model.FetchResult, error)
}

// FetcherFunc adapts an ordinary function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, rawURL string, headers map[string]string) (*model.FetchResult, error)

// Fetch calls f(ctx, rawURL, headers).
func (f FetcherFunc) Fetch(ctx context.Context, rawURL string, headers map[string]string) (*model.FetchResult, error) {
	return f(ctx, rawURL, headers)
}

// FetchWithin runs f.Fetch under a deadline of timeout.
func FetchWithin(ctx context.Context, f Fetcher, timeout time.Duration, rawURL string, headers map[string]string) (*model.FetchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return f.Fetch(ctx, rawURL, headers)
}

// Client is the production Fetcher backed by net/http.
type Client struct {
	httpClient  *http.Client
	maxBodySize int64
	proxyURL    string
	logger      *slog.Logger
}

// Option configures a Client.
type Option func(*Client) error

// WithTimeout sets the per-request ceiling applied by the underlying http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		c.httpClient.Timeout = d
		return nil
	}
}

// WithMaxBodySize caps how many body bytes are read. Longer bodies are truncated.
func WithMaxBodySize(n int64) Option {
	return func(c *Client) error {
		if n > 0 {
			c.maxBodySize = n
		}
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		c.logger = logger
		return nil
	}
}

// WithProxy routes all traffic through rawProxyURL. Supported schemes are
// http, https, socks5 and socks5h. An empty string disables the proxy.
func WithProxy(rawProxyURL string) Option {
	return func(c *Client) error {
		if rawProxyURL == "" {
			return nil
		}

		u, err := url.Parse(rawProxyURL)
		if err != nil || u.Host == "" {
			return ErrInvalidProxyURL
		}

		tr, ok := c.httpClient.Transport.(*http.Transport)
		if !ok {
			return fmt.Errorf("%w: custom transport does not support proxies", ErrInvalidProxyURL)
		}

		switch u.Scheme {
		case "http", "https":
			tr.Proxy = http.ProxyURL(u)
		case "socks5", "socks5h":
			dialer, err := proxy.FromURL(u, proxy.Direct)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrInvalidProxyURL, err)
			}
			tr.Proxy = nil
			tr.DialContext = contextDialer(dialer)
		default:
			return ErrInvalidProxyURL
		}

		c.proxyURL = rawProxyURL
		return nil
	}
}

// contextDialer adapts a proxy.Dialer to http.Transport.DialContext. The
// SOCKS5 dialer returned by x/net/proxy implements proxy.ContextDialer; other
// dialers fall back to a blocking Dial raced against the context.
func contextDialer(d proxy.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		type dialResult struct {
			conn net.Conn
			err  error
		}
		resultCh := make(chan dialResult, 1)
		go func() {
			conn, err := d.Dial(network, addr)
			resultCh <- dialResult{conn, err}
		}()
		select {
		case r := <-resultCh:
			return r.conn, r.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// NewClient creates a Client.
//
// Design decisions:
//   - Compression is disabled in the transport because request headers carry
//     their own Accept-Encoding; the client decodes gzip/deflate itself.
//   - A cookie jar keeps consent and session cookies across one crawl, which
//     some anti-bot layers require before serving real content.
func NewClient(opts ...Option) (*Client, error) {
	jar, _ := cookiejar.New(nil) //nolint:errcheck // cookiejar.New only fails with invalid options

	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     30 * time.Second,
		DisableCompression:  true,
	}

	c := &Client{
		httpClient: &http.Client{
			Transport: tr,
			Timeout:   DefaultTimeout,
			Jar:       jar,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		maxBodySize: DefaultMaxBodySize,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// ProxyURL returns the configured proxy URL, or "" when none is set.
func (c *Client) ProxyURL() string {
	return c.proxyURL
}

// Fetch performs a GET with the given headers.
func (c *Client) Fetch(ctx context.Context, rawURL string, headers map[string]string) (*model.FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyError(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		if len(raw) == 0 {
			return nil, classifyError(ctx, err)
		}
		c.logger.Debug("partial body read", "url", rawURL, "bytes", len(raw), "error", err)
	}

	body, err := decompress(resp.Header.Get("Content-Encoding"), raw)
	if err != nil {
		c.logger.Debug("body decompression failed, using raw bytes", "url", rawURL, "error", err)
		body = raw
	}

	contentType := resp.Header.Get("Content-Type")

	return &model.FetchResult{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		BodyText:    decodeText(body, contentType),
		BodyBytes:   body,
	}, nil
}

// classifyError maps a transport failure onto ErrTimeout or ErrConnection.
// A cancellation of the caller's own context is returned unchanged so that
// shutdown is never mistaken for a remote failure.
func classifyError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %w", ErrConnection, err)
}
