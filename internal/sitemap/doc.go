// Package sitemap discovers and parses XML sitemaps for a domain.
//
// Resolve tries robots.txt hints first and then a fixed list of conventional
// locations, stopping at the first candidate that yields at least one usable
// URL. Sitemap indexes are followed recursively with a fan-out of five
// children per level; the global URL cap bounds the total work.
//
// Design decision: Each candidate attempt returns ([]string, error) and the
// candidate loop decides whether to continue. Failures never escape Resolve,
// but they are logged with their cause instead of being discarded.
package sitemap
