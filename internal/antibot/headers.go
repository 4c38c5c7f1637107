package antibot

import (
	"math/rand/v2"
	"strings"
)

// defaultUserAgents spans Chrome, Firefox, Edge and Safari on Windows, macOS and Linux.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:133.0) Gecko/20100101 Firefox/133.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:133.0) Gecko/20100101 Firefox/133.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36 Edg/131.0.0.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.1 Safari/605.1.15",
}

// DefaultXMLGatedDomains lists domain substrings that only serve sitemaps to
// clients asking for XML.
var DefaultXMLGatedDomains = []string{"udemy"}

const (
	browserAccept = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"
	xmlAccept     = "application/xml,text/xml,*/*;q=0.8"
)

// HeaderProvider produces browser-like request headers.
type HeaderProvider struct {
	userAgents []string
	xmlGated   []string
	intN       func(n int) int
}

// HeaderOption configures a HeaderProvider.
type HeaderOption func(*HeaderProvider)

// WithUserAgents replaces the User-Agent pool. An empty pool is ignored.
func WithUserAgents(agents []string) HeaderOption {
	return func(p *HeaderProvider) {
		if len(agents) > 0 {
			p.userAgents = append([]string(nil), agents...)
		}
	}
}

// WithXMLGatedDomains sets the domain substrings that receive XML Accept headers.
func WithXMLGatedDomains(domains []string) HeaderOption {
	return func(p *HeaderProvider) {
		p.xmlGated = append([]string(nil), domains...)
	}
}

// WithRandomSource replaces the index picker. Tests use it for determinism.
func WithRandomSource(intN func(n int) int) HeaderOption {
	return func(p *HeaderProvider) {
		p.intN = intN
	}
}

// NewHeaderProvider creates a HeaderProvider with the default browser pool.
func NewHeaderProvider(opts ...HeaderOption) *HeaderProvider {
	p := &HeaderProvider{
		userAgents: defaultUserAgents,
		xmlGated:   DefaultXMLGatedDomains,
		intN:       rand.IntN, //nolint:gosec // traffic-shape variation, not security
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// UserAgents returns a copy of the User-Agent pool.
func (p *HeaderProvider) UserAgents() []string {
	return append([]string(nil), p.userAgents...)
}

// RandomHeaders returns a fresh header set with a uniformly chosen User-Agent.
//
// Accept-Encoding advertises only gzip and deflate because those are the
// encodings the transport can decode.
func (p *HeaderProvider) RandomHeaders() map[string]string {
	return map[string]string{
		"User-Agent":                p.userAgents[p.intN(len(p.userAgents))],
		"Accept":                    browserAccept,
		"Accept-Language":           "en-US,en;q=0.9,es;q=0.8",
		"Accept-Encoding":           "gzip, deflate",
		"Connection":                "keep-alive",
		"Upgrade-Insecure-Requests": "1",
		"Sec-Fetch-Dest":            "document",
		"Sec-Fetch-Mode":            "navigate",
		"Sec-Fetch-Site":            "none",
		"Cache-Control":             "max-age=0",
	}
}

// SpecializedHeaders returns RandomHeaders, overriding Accept to ask for XML
// when domain matches one of the XML-gated substrings.
func (p *HeaderProvider) SpecializedHeaders(domain string) map[string]string {
	headers := p.RandomHeaders()
	if p.IsXMLGated(domain) {
		headers["Accept"] = xmlAccept
		headers["X-Requested-With"] = "XMLHttpRequest"
	}
	return headers
}

// IsXMLGated reports whether domain gates sitemap responses on content negotiation.
func (p *HeaderProvider) IsXMLGated(domain string) bool {
	lower := strings.ToLower(domain)
	for _, gated := range p.xmlGated {
		if gated != "" && strings.Contains(lower, strings.ToLower(gated)) {
			return true
		}
	}
	return false
}
