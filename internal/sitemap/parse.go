package sitemap

import (
	"bufio"
	"bytes"
	"strings"

	"github.com/antchfx/xmlquery"
)

// Namespace-agnostic selectors: sitemaps are served both with and without
// the sitemaps.org default namespace.
const (
	urlEntryXPath     = "//*[local-name()='url']"
	sitemapEntryXPath = "//*[local-name()='sitemap']"
	locXPath          = "./*[local-name()='loc']"
)

// document is the parsed form of one sitemap response.
type document struct {
	// pageLocs are the <loc> values of <url> entries, or the lines of a
	// plain-text sitemap.
	pageLocs []string

	// childLocs are the <loc> values of <sitemap> entries of a sitemap index.
	childLocs []string
}

// parseDocument parses body as an XML sitemap. A body that is not XML, or
// that has no root element, is read as a plain-text sitemap instead.
func parseDocument(body []byte) document {
	root, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil || root == nil || xmlquery.FindOne(root, "/*") == nil {
		return document{pageLocs: parsePlainText(body)}
	}

	return document{
		pageLocs:  locsOf(root, urlEntryXPath),
		childLocs: locsOf(root, sitemapEntryXPath),
	}
}

func locsOf(root *xmlquery.Node, entryXPath string) []string {
	entries := xmlquery.Find(root, entryXPath)
	locs := make([]string, 0, len(entries))
	for _, entry := range entries {
		loc := xmlquery.FindOne(entry, locXPath)
		if loc == nil {
			continue
		}
		if text := strings.TrimSpace(loc.InnerText()); text != "" {
			locs = append(locs, text)
		}
	}
	return locs
}

// parsePlainText returns every non-empty line that is not a "#" comment.
func parsePlainText(body []byte) []string {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// usable reports whether loc is an absolute http(s) URL mentioning domain.
// The substring match deliberately admits subdomains and www variants.
func usable(loc, domain string) bool {
	if !strings.HasPrefix(loc, "http://") && !strings.HasPrefix(loc, "https://") {
		return false
	}
	return strings.Contains(loc, domain)
}
