package imageproxy

import (
	"net"
	"net/url"
	"strings"
)

// AllowList matches upstream addresses against configured hosts. An entry
// "example.com" admits the host and its subdomains on any port; an entry
// "example.com:8443" also pins the port. An empty list admits nothing.
type AllowList []allowEntry

type allowEntry struct {
	host string
	port string
}

// NewAllowList normalises host entries, skipping blanks.
func NewAllowList(hosts []string) AllowList {
	list := make(AllowList, 0, len(hosts))
	for _, raw := range hosts {
		raw = strings.ToLower(strings.TrimSpace(raw))
		if raw == "" {
			continue
		}
		entry := allowEntry{host: raw}
		if h, p, err := net.SplitHostPort(raw); err == nil {
			entry = allowEntry{host: h, port: p}
		}
		list = append(list, entry)
	}
	return list
}

// Allows reports whether target may be fetched.
func (a AllowList) Allows(target *url.URL) bool {
	if target == nil {
		return false
	}
	host := strings.ToLower(target.Hostname())
	if host == "" {
		return false
	}
	port := target.Port()
	if port == "" {
		switch target.Scheme {
		case "https":
			port = "443"
		default:
			port = "80"
		}
	}
	for _, entry := range a {
		if host != entry.host && !strings.HasSuffix(host, "."+entry.host) {
			continue
		}
		if entry.port == "" || entry.port == port {
			return true
		}
	}
	return false
}
