// Package main provides the entry point for the crawlscope CLI.
//
// crawlscope crawls a single domain politely, falls back to its sitemaps when
// the site starts blocking, and records every crawl attempt in a local
// SQLite database.
//
// Usage:
//
//	crawlscope crawl example.com
//	crawlscope batch example.com example.org
//	crawlscope history example.com
//
// See --help for all available options.
package main

// main is the entry point for crawlscope.
func main() {
	Execute()
}
