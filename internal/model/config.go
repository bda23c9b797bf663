package model

import "time"

// Config holds the complete checkit configuration.
type Config struct {
	TIND        TINDConfig        `yaml:"tind" mapstructure:"tind"`
	HTTP        HTTPConfig        `yaml:"http" mapstructure:"http"`
	Retry       RetryConfig       `yaml:"retry" mapstructure:"retry"`
	Concurrency ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Statuses    StatusConfig      `yaml:"statuses" mapstructure:"statuses"`
}

// TINDConfig locates the catalog and its sign-in endpoints.
type TINDConfig struct {
	BaseURL  string `yaml:"base_url" mapstructure:"base_url"`
	LoginURL string `yaml:"login_url" mapstructure:"login_url"`
	SSOURL   string `yaml:"sso_url" mapstructure:"sso_url"`
}

// HTTPConfig tunes the catalog client's transport.
type HTTPConfig struct {
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent  string        `yaml:"user_agent" mapstructure:"user_agent"`
	RatePerSec float64       `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst      int           `yaml:"burst" mapstructure:"burst"`
	HTTPProxy  string        `yaml:"http_proxy" mapstructure:"http_proxy"`
	HTTPSProxy string        `yaml:"https_proxy" mapstructure:"https_proxy"`
	NoProxy    string        `yaml:"no_proxy" mapstructure:"no_proxy"`
}

// RetryConfig bounds retries of transient catalog failures.
type RetryConfig struct {
	Attempts int           `yaml:"attempts" mapstructure:"attempts"`
	Backoff  time.Duration `yaml:"backoff" mapstructure:"backoff"`
}

// ConcurrencyConfig bounds parallel work.
type ConcurrencyConfig struct {
	LookupWorkers int `yaml:"lookup_workers" mapstructure:"lookup_workers"`
}

// CacheConfig controls caching of catalog answers within and across runs.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir     string        `yaml:"dir" mapstructure:"dir"`
	TTL     time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// StatusConfig lists holding statuses treated as present on the shelf. The
// canonical "on shelf" value is always included.
type StatusConfig struct {
	OnShelf []string `yaml:"on_shelf" mapstructure:"on_shelf"`
}

// DefaultConfig returns the built-in configuration. The sign-in endpoints
// point at the Caltech TIND instance and its identity provider; a browser
// user agent is required or Shibboleth answers with an empty page.
func DefaultConfig() *Config {
	return &Config{
		TIND: TINDConfig{
			BaseURL:  "https://caltech.tind.io",
			LoginURL: "https://caltech.tind.io/youraccount/shibboleth?referer=https%3A//caltech.tind.io/%3F",
			SSOURL:   "https://idp.caltech.edu/idp/profile/SAML2/Redirect/SSO",
		},
		HTTP: HTTPConfig{
			Timeout:    30 * time.Second,
			UserAgent:  "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko)",
			RatePerSec: 4,
			Burst:      4,
		},
		Retry: RetryConfig{
			Attempts: 3,
			Backoff:  2 * time.Second,
		},
		Concurrency: ConcurrencyConfig{
			LookupWorkers: 1,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     time.Hour,
		},
		Statuses: StatusConfig{
			OnShelf: []string{"on shelf"},
		},
	}
}
