package model

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

// Domain errors.
var (
	// ErrInvalidDomain is returned when a domain fails the syntax check.
	ErrInvalidDomain = errors.New("invalid domain format")
	// ErrEmptyDomain is returned when the domain is empty after normalization.
	ErrEmptyDomain = errors.New("domain cannot be empty")
)

// domainPattern accepts lowercase alphanumeric labels separated by single dots.
// Interior hyphens are allowed inside a label; leading or trailing hyphens are not.
var domainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?(\.[a-z0-9]([a-z0-9-]*[a-z0-9])?)*$`)

// repeatedDots collapses runs of dots left behind by sloppy input.
var repeatedDots = regexp.MustCompile(`\.{2,}`)

const (
	wwwPrefix = "www."
	// minLabelsForWWWStrip keeps "www.com" intact while "www.example.com" loses its prefix.
	minLabelsForWWWStrip = 3
)

// NormalizeDomain reduces user input such as "HTTPS://www.Example.com:8080/path?q"
// to a bare registrable host name ("example.com").
//
// The steps are: trim and lowercase, drop the scheme, drop path and query,
// drop the port, drop a leading "www." when at least three labels remain,
// trim trailing dots and collapse repeated dots.
func NormalizeDomain(raw string) string {
	d := strings.ToLower(strings.TrimSpace(raw))
	d = strings.TrimPrefix(d, "http://")
	d = strings.TrimPrefix(d, "https://")

	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	if i := strings.Index(d, ":"); i >= 0 {
		d = d[:i]
	}

	if strings.HasPrefix(d, wwwPrefix) && len(strings.Split(d, ".")) >= minLabelsForWWWStrip {
		d = strings.TrimPrefix(d, wwwPrefix)
	}

	d = strings.TrimRight(d, ".")
	return repeatedDots.ReplaceAllString(d, ".")
}

// ValidateDomain normalizes raw and checks it against the domain syntax.
// It returns the normalized form on success.
func ValidateDomain(raw string) (string, error) {
	d := NormalizeDomain(raw)
	if d == "" {
		return "", ErrEmptyDomain
	}
	if !domainPattern.MatchString(d) {
		return "", ErrInvalidDomain
	}
	return d, nil
}

// NormalizeHost lower-cases a host and strips a single leading "www.".
// It is the comparison key used to keep a crawl on its own domain.
func NormalizeHost(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), wwwPrefix)
}

// HostOf returns the normalized host of an absolute URL, or "" when the
// URL cannot be parsed. The port is not part of the result.
func HostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return NormalizeHost(u.Hostname())
}

// SeedURL turns a domain or partial URL into an absolute seed URL.
// The scheme defaults to https when the input carries none.
func SeedURL(domain, scheme string) string {
	if strings.HasPrefix(domain, "http://") || strings.HasPrefix(domain, "https://") {
		return domain
	}
	if scheme == "" {
		scheme = "https"
	}
	return scheme + "://" + domain
}
