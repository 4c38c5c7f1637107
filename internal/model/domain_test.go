package model

import (
	"errors"
	"testing"
)

func TestNormalizeDomain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "bare domain", raw: "example.com", want: "example.com"},
		{name: "scheme path and query", raw: "HTTPS://Example.com/path?q=1", want: "example.com"},
		{name: "port is dropped", raw: "http://example.com:8080", want: "example.com"},
		{name: "www is stripped with three labels", raw: "www.example.com", want: "example.com"},
		{name: "www kept with two labels", raw: "www.com", want: "www.com"},
		{name: "trailing dot", raw: "example.com.", want: "example.com"},
		{name: "repeated dots collapse", raw: "example..com", want: "example.com"},
		{name: "surrounding whitespace", raw: "  shop.example.co.uk  ", want: "shop.example.co.uk"},
		{name: "fragment dropped", raw: "example.com#top", want: "example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := NormalizeDomain(tt.raw); got != tt.want {
				t.Errorf("NormalizeDomain(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestValidateDomain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr error
	}{
		{name: "valid", raw: "example.com", want: "example.com"},
		{name: "valid with hyphen", raw: "my-site.example.com", want: "my-site.example.com"},
		{name: "valid after normalization", raw: "https://www.Example.com/", want: "example.com"},
		{name: "empty", raw: "   ", wantErr: ErrEmptyDomain},
		{name: "underscore", raw: "bad_domain.com", wantErr: ErrInvalidDomain},
		{name: "leading hyphen", raw: "-example.com", wantErr: ErrInvalidDomain},
		{name: "leading dot", raw: ".example.com", wantErr: ErrInvalidDomain},
		{name: "space inside", raw: "exa mple.com", wantErr: ErrInvalidDomain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ValidateDomain(tt.raw)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected error %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestHostOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want string
	}{
		{raw: "https://WWW.Example.com/a", want: "example.com"},
		{raw: "http://example.com:8080/b", want: "example.com"},
		{raw: "https://blog.example.com", want: "blog.example.com"},
		{raw: "::not a url", want: ""},
	}

	for _, tt := range tests {
		if got := HostOf(tt.raw); got != tt.want {
			t.Errorf("HostOf(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestSeedURL(t *testing.T) {
	t.Parallel()

	if got := SeedURL("example.com", ""); got != "https://example.com" {
		t.Errorf("expected https default, got %q", got)
	}
	if got := SeedURL("example.com", "http"); got != "http://example.com" {
		t.Errorf("expected http scheme, got %q", got)
	}
	if got := SeedURL("http://example.com/x", "https"); got != "http://example.com/x" {
		t.Errorf("expected absolute URL unchanged, got %q", got)
	}
}
