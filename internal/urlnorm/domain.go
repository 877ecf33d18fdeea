package urlnorm

import (
	"net/url"
	"strings"
)

// Domain returns the comparable domain of a URL: lowercase host without port
// and without a leading "www.".
func Domain(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return HostDomain(u.Hostname())
}

// HostDomain strips a leading "www." from a host.
func HostDomain(host string) string {
	host = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(host), "."))
	return strings.TrimPrefix(host, "www.")
}

// MatchesDomain reports whether domain equals, or is a subdomain of, any
// whitelist entry. An empty whitelist matches nothing.
func MatchesDomain(domain string, whitelist []string) bool {
	domain = HostDomain(domain)
	if domain == "" {
		return false
	}
	for _, w := range whitelist {
		w = HostDomain(w)
		if w == "" {
			continue
		}
		if domain == w || strings.HasSuffix(domain, "."+w) {
			return true
		}
	}
	return false
}

// hostIn matches u against host entries. Entries with a port match u.Host
// exactly; others match the hostname or any of its parent domains.
func hostIn(u *url.URL, hosts []string) bool {
	if u == nil {
		return false
	}
	hostname := strings.ToLower(u.Hostname())
	full := strings.ToLower(u.Host)
	for _, h := range hosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			continue
		}
		if strings.Contains(h, ":") {
			if full == h {
				return true
			}
			continue
		}
		if hostname == h || strings.HasSuffix(hostname, "."+h) {
			return true
		}
	}
	return false
}
