package policy

import (
	"net/url"
	"strings"
)

// BlockList is a snapshot of the blocked-site set. Membership is substring
// containment on the hostname, so "example.com" also blocks
// "sub.example.com" and "notexample.com".
type BlockList struct {
	sites []string
}

// NewBlockList normalises sites; blank entries are dropped because an empty
// substring would match every host.
func NewBlockList(sites []string) BlockList {
	out := make([]string, 0, len(sites))
	for _, s := range sites {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return BlockList{sites: out}
}

// Len returns the number of effective entries.
func (b BlockList) Len() int {
	return len(b.sites)
}

// Blocks reports whether any entry is a substring of host.
func (b BlockList) Blocks(host string) bool {
	host = strings.ToLower(host)
	if host == "" {
		return false
	}
	for _, s := range b.sites {
		if strings.Contains(host, s) {
			return true
		}
	}
	return false
}

// BlocksURL parses raw and tests its hostname. Unparseable URLs are allowed.
func (b BlockList) BlocksURL(raw string) bool {
	host, ok := Hostname(raw)
	if !ok {
		return false
	}
	return b.Blocks(host)
}

// Hostname extracts the lowercase hostname of raw.
func Hostname(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Hostname() == "" {
		return "", false
	}
	return strings.ToLower(u.Hostname()), true
}

// IsInsecure reports whether raw uses plaintext http.
func IsInsecure(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Scheme, "http")
}
