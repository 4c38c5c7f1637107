package sitemap

import "errors"

var (
	// ErrNotServed is returned when a candidate answers with a non-200 status.
	ErrNotServed = errors.New("sitemap not served")

	// ErrNoURLs is returned when a candidate parsed but held no usable URL.
	ErrNoURLs = errors.New("sitemap has no usable URLs")
)
