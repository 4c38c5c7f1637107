package antibot

import (
	"fmt"
	"net/http"
	"strings"
)

// minHealthyBodyLength is the smallest 200 response body that is not
// treated as a challenge page.
const minHealthyBodyLength = 100

// blockingStatusCodes are the status codes servers use to refuse crawlers.
var blockingStatusCodes = map[int]struct{}{
	http.StatusForbidden:          {},
	http.StatusTooManyRequests:    {},
	http.StatusServiceUnavailable: {},
}

// blockingKeywords are matched against the lower-cased body.
var blockingKeywords = []string{
	"blocked",
	"forbidden",
	"access denied",
	"cloudflare",
	"captcha",
	"robot",
	"bot detected",
	"rate limit",
	"too many requests",
	"suspicious activity",
}

// Block reasons returned by Classify.
const (
	ReasonContentMarker = "content indicates anti-bot protection"
	ReasonTinyResponse  = "suspiciously small response"
)

// Classify reports whether a response looks like an anti-bot block and why.
//
// The checks run in order: blocking status code, blocking keyword in the
// body, then a 200 response whose body is shorter than 100 bytes.
func Classify(statusCode int, bodyText string) (blocked bool, reason string) {
	if _, ok := blockingStatusCodes[statusCode]; ok {
		return true, fmt.Sprintf("HTTP %d: access blocked by server", statusCode)
	}

	lower := strings.ToLower(bodyText)
	for _, kw := range blockingKeywords {
		if strings.Contains(lower, kw) {
			return true, ReasonContentMarker
		}
	}

	if statusCode == http.StatusOK && len(bodyText) < minHealthyBodyLength {
		return true, ReasonTinyResponse
	}

	return false, ""
}

// IsHardBlock reports whether statusCode is an explicit refusal (403 or 429)
// that warrants skipping straight to sitemap discovery.
func IsHardBlock(statusCode int) bool {
	return statusCode == http.StatusForbidden || statusCode == http.StatusTooManyRequests
}
