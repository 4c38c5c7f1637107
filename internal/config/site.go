package config

import "time"

// SiteConfig holds the overrides for one domain.
type SiteConfig struct {
	// MaxPages overrides the page cap of crawls of this domain.
	MaxPages int `yaml:"max_pages,omitempty"`

	// BaseDelay overrides the delay between fetches, e.g. "3s".
	BaseDelay time.Duration `yaml:"base_delay,omitempty"`

	// XMLGated fetches this domain's sitemaps with XML Accept headers.
	XMLGated bool `yaml:"xml_gated,omitempty"`

	// Proxy routes this domain's traffic through its own proxy.
	Proxy string `yaml:"proxy,omitempty"`
}

// Defaults is the defaults block of the configuration file. Zero values
// leave the built-in default in place.
type Defaults struct {
	DataDir             string        `yaml:"data_dir,omitempty"`
	MaxPages            int           `yaml:"max_pages,omitempty"`
	BaseDelay           time.Duration `yaml:"base_delay,omitempty"`
	FetchTimeout        time.Duration `yaml:"fetch_timeout,omitempty"`
	SitemapCap          int           `yaml:"sitemap_cap,omitempty"`
	MaxBlocks           int           `yaml:"max_blocks,omitempty"`
	MaxConcurrentCrawls int           `yaml:"max_concurrent_crawls,omitempty"`
	BatchPause          time.Duration `yaml:"batch_pause,omitempty"`
	IdleThreshold       time.Duration `yaml:"idle_threshold,omitempty"`
	OrphanThreshold     time.Duration `yaml:"orphan_threshold,omitempty"`
	ReapSchedule        string        `yaml:"reap_schedule,omitempty"`
	Proxy               string        `yaml:"proxy,omitempty"`
	Scheme              string        `yaml:"scheme,omitempty"`
	LogFormat           string        `yaml:"log_format,omitempty"`
	XMLGatedDomains     []string      `yaml:"xml_gated_domains,omitempty"`
	Admins              []string      `yaml:"admins,omitempty"`
}

// File represents the structure of the .crawlscope.yaml configuration file.
type File struct {
	// Defaults applies to every crawl.
	Defaults Defaults `yaml:"defaults,omitempty"`

	// Sites maps domains to their overrides.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`
}

// Apply layers the file onto c: non-zero defaults replace c's values and
// the site overrides are stored for ForSite.
func (f *File) Apply(c *Config) {
	d := f.Defaults

	setString(&c.DataDir, d.DataDir)
	setString(&c.ReapSchedule, d.ReapSchedule)
	setString(&c.ProxyURL, d.Proxy)
	setString(&c.Scheme, d.Scheme)
	setString(&c.LogFormat, d.LogFormat)

	setInt(&c.MaxPages, d.MaxPages)
	setInt(&c.SitemapCap, d.SitemapCap)
	setInt(&c.MaxBlocks, d.MaxBlocks)
	setInt(&c.MaxConcurrentCrawls, d.MaxConcurrentCrawls)

	setDuration(&c.BaseDelay, d.BaseDelay)
	setDuration(&c.FetchTimeout, d.FetchTimeout)
	setDuration(&c.BatchPause, d.BatchPause)
	setDuration(&c.IdleThreshold, d.IdleThreshold)
	setDuration(&c.OrphanThreshold, d.OrphanThreshold)

	if len(d.XMLGatedDomains) > 0 {
		c.XMLGatedDomains = append([]string(nil), d.XMLGatedDomains...)
	}
	if len(d.Admins) > 0 {
		c.AdminIdentities = append([]string(nil), d.Admins...)
	}

	if c.Sites == nil {
		c.Sites = make(map[string]SiteConfig, len(f.Sites))
	}
	for domain, site := range f.Sites {
		c.Sites[domain] = site
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}
