// Package config holds the runtime settings of the link resolver service.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"seedlink/internal/browser"
)

const (
	DefaultAddr       = ":10000"
	DefaultUserAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	DefaultHostOrigin = "https://driveseed.org"
)

// Config describes browser, resolver and server behaviour.
type Config struct {
	Addr string `yaml:"addr"`

	Browser  Browser  `yaml:"browser"`
	Resolver Resolver `yaml:"resolver"`

	MaxSessions int `yaml:"max_sessions"`

	// RequestTimeout bounds one lookup including the wait for a browser
	// slot. The HTTP write deadline is derived from it.
	RequestTimeout Duration `yaml:"request_timeout"`

	// DebugHTMLLimit caps the markup echoed back when no link is found, in
	// bytes. Zero echoes the whole page.
	DebugHTMLLimit int `yaml:"debug_html_limit"`
}

// Browser configures the headless Chrome process.
type Browser struct {
	// Proxy is scheme://[user:pass@]host:port; empty disables proxying.
	Proxy     string `yaml:"proxy"`
	UserAgent string `yaml:"user_agent"`
	ExecPath  string `yaml:"exec_path"`
	Headless  bool   `yaml:"headless"`
}

// Resolver configures navigation timing and the hosting site.
type Resolver struct {
	HostOrigin string `yaml:"host_origin"`

	NavigateTimeout   Duration `yaml:"navigate_timeout"`
	SettleDelay       Duration `yaml:"settle_delay"`
	SubmitSettleDelay Duration `yaml:"submit_settle_delay"`
	PollInterval      Duration `yaml:"poll_interval"`

	FollowTimeout     Duration `yaml:"follow_timeout"`
	FollowSettleDelay Duration `yaml:"follow_settle_delay"`

	VariantTimeout     Duration `yaml:"variant_timeout"`
	VariantSettleDelay Duration `yaml:"variant_settle_delay"`
}

// Duration is a time.Duration that reads Go duration strings from YAML.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("duration %q: %w", raw, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Addr: DefaultAddr,
		Browser: Browser{
			UserAgent: DefaultUserAgent,
			Headless:  true,
		},
		Resolver: Resolver{
			HostOrigin:         DefaultHostOrigin,
			NavigateTimeout:    Duration(45 * time.Second),
			SettleDelay:        Duration(3 * time.Second),
			SubmitSettleDelay:  Duration(3 * time.Second),
			PollInterval:       Duration(500 * time.Millisecond),
			FollowTimeout:      Duration(30 * time.Second),
			FollowSettleDelay:  Duration(1200 * time.Millisecond),
			VariantTimeout:     Duration(25 * time.Second),
			VariantSettleDelay: Duration(1200 * time.Millisecond),
		},
		MaxSessions:    2,
		RequestTimeout: Duration(3 * time.Minute),
		DebugHTMLLimit: 8000,
	}
}

// FromEnv applies environment overrides on top of cfg.
func FromEnv(cfg Config) Config {
	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		cfg.Addr = ":" + v
	}
	if v := strings.TrimSpace(os.Getenv("PROXY_URL")); v != "" {
		cfg.Browser.Proxy = v
	}
	if v := strings.TrimSpace(os.Getenv("SEEDLINK_USER_AGENT")); v != "" {
		cfg.Browser.UserAgent = v
	}
	if v := strings.TrimSpace(os.Getenv("SEEDLINK_CHROME_PATH")); v != "" {
		cfg.Browser.ExecPath = v
	}
	if v := strings.TrimSpace(os.Getenv("SEEDLINK_HEADLESS")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Browser.Headless = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("SEEDLINK_HOST_ORIGIN")); v != "" {
		cfg.Resolver.HostOrigin = v
	}
	if v := strings.TrimSpace(os.Getenv("SEEDLINK_MAX_SESSIONS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxSessions = n
		}
	}
	return cfg
}

// Load builds the effective configuration: defaults, then environment, then
// the YAML file at path when one is given.
func Load(path string) (Config, error) {
	cfg := FromEnv(Default())
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports settings the service cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.MaxSessions <= 0 {
		errs = append(errs, fmt.Errorf("max_sessions must be positive, got %d", c.MaxSessions))
	}
	if c.DebugHTMLLimit < 0 {
		errs = append(errs, fmt.Errorf("debug_html_limit must not be negative, got %d", c.DebugHTMLLimit))
	}
	if u, err := url.Parse(c.Resolver.HostOrigin); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("host_origin %q is not an absolute URL", c.Resolver.HostOrigin))
	}
	if _, err := browser.ParseProxy(c.Browser.Proxy); err != nil {
		errs = append(errs, err)
	}
	timeouts := map[string]Duration{
		"navigate_timeout": c.Resolver.NavigateTimeout,
		"follow_timeout":   c.Resolver.FollowTimeout,
		"variant_timeout":  c.Resolver.VariantTimeout,
		"request_timeout":  c.RequestTimeout,
	}
	for name, d := range timeouts {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	return errors.Join(errs...)
}

// HostDomain is the host part of the hosting origin, used to recognise
// links that point at the file host.
func (r Resolver) HostDomain() string {
	u, err := url.Parse(r.HostOrigin)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
