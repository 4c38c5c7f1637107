// Package transport performs the outbound HTTP GETs of a crawl and turns each
// response into a model.FetchResult.
//
// The client decodes gzip and deflate bodies itself because callers send
// their own Accept-Encoding header, and it converts bodies to UTF-8 using the
// declared or sniffed charset. Transport failures are classified as
// ErrTimeout or ErrConnection so the crawl loop can count them without
// inspecting net errors.
//
// All traffic can optionally be routed through an HTTP or SOCKS5 proxy.
package transport
