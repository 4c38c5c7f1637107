package transport

import "errors"

// Transport errors.
//
// Design decision: We collapse the many shapes of net/http failures into two
// sentinels. The crawl loop treats both the same way for escalation, and the
// distinction only surfaces in the terminal status message.
var (
	// ErrTimeout is returned when the request deadline expired before a
	// response was read.
	ErrTimeout = errors.New("request timed out")

	// ErrConnection is returned for every other transport failure: refused
	// connections, DNS errors, TLS failures and truncated responses.
	ErrConnection = errors.New("connection error")

	// ErrInvalidProxyURL is returned when the proxy URL cannot be parsed or
	// uses an unsupported scheme.
	ErrInvalidProxyURL = errors.New("invalid proxy URL: expected http://, https:// or socks5://host:port")
)
