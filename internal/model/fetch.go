package model

// FetchResult is the transport-neutral outcome of one HTTP GET.
// A non-2xx status is a valid result, not an error; only transport failures
// (timeouts, refused connections) are reported as errors by fetchers.
type FetchResult struct {
	// URL is the final URL after redirects.
	URL string

	// StatusCode is the HTTP response status code.
	StatusCode int

	// ContentType is the Content-Type response header.
	ContentType string

	// BodyText is the body decoded to UTF-8.
	BodyText string

	// BodyBytes is the decompressed body before charset conversion.
	BodyBytes []byte
}

// IsOK reports whether the response carried HTTP 200.
func (r *FetchResult) IsOK() bool {
	return r != nil && r.StatusCode == 200
}
