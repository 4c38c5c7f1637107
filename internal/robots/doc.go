// Package robots reads a domain's robots.txt for the two directives the
// crawler honors: Crawl-delay, which seeds the adaptive delay, and the
// Disallow rule on "/", which is surfaced but never enforced. Sitemap lines
// are collected as discovery hints for the sitemap resolver.
package robots
