package browser

import (
	"fmt"
	"net/url"
	"strings"
)

// Proxy is an upstream proxy split into what Chrome accepts on the command
// line and the credentials it has to be given over CDP.
type Proxy struct {
	Server   string
	Username string
	Password string
}

// HasAuth reports whether the proxy needs credentials.
func (p *Proxy) HasAuth() bool {
	return p != nil && p.Username != ""
}

// ParseProxy parses scheme://[user:pass@]host:port. An empty string yields nil.
func ParseProxy(raw string) (*Proxy, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("proxy %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Hostname() == "" || u.Port() == "" {
		return nil, fmt.Errorf("proxy %q: want scheme://[user:pass@]host:port", raw)
	}
	p := &Proxy{Server: u.Scheme + "://" + u.Host}
	if u.User != nil {
		p.Username = u.User.Username()
		p.Password, _ = u.User.Password()
	}
	return p, nil
}
