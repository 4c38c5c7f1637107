// Package config provides the runtime configuration of crawlscope: defaults,
// the .crawlscope.yaml file with per-site overrides, and validation.
//
// Values are layered as defaults, then the file's defaults block, then the
// per-site entry for the crawled domain, then explicit CLI flags.
package config
