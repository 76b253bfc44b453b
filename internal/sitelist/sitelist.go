// Package sitelist normalizes block/allow domain lists and computes the URL
// signatures used for "always allow this exact page" decisions.
package sitelist

import (
	"net/url"
	"strings"
)

// signatureQueryKeys are checked in order; the first key with a non-empty
// value becomes part of the signature.
var signatureQueryKeys = []string{"q", "query", "search", "keywords"}

// Sanitize lowercases, trims and dedupes a raw domain list. Empty entries are
// dropped and scheme prefixes or trailing paths are removed, so
// "https://Netflix.com/" becomes "netflix.com".
func Sanitize(list []string) []string {
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, item := range list {
		host := NormalizeHost(item)
		if host == "" {
			continue
		}
		if _, ok := seen[host]; ok {
			continue
		}
		seen[host] = struct{}{}
		out = append(out, host)
	}
	return out
}

// NormalizeHost cleans a single hostname or hostname fragment.
func NormalizeHost(raw string) string {
	host := strings.ToLower(strings.TrimSpace(raw))
	for _, prefix := range []string{"https://", "http://"} {
		host = strings.TrimPrefix(host, prefix)
	}
	if i := strings.Index(host, "/"); i >= 0 {
		host = host[:i]
	}
	return strings.TrimSpace(host)
}

// Matches reports whether host is contained in, or contains, any entry of
// list. Empty entries never match.
func Matches(list []string, host string) bool {
	if host == "" {
		return false
	}
	host = strings.ToLower(host)
	for _, entry := range list {
		if entry == "" {
			continue
		}
		if strings.Contains(host, entry) || strings.Contains(entry, host) {
			return true
		}
	}
	return false
}

// MatchesSuffix reports whether host equals an entry or is a subdomain of it.
func MatchesSuffix(list []string, host string) bool {
	host = strings.ToLower(host)
	for _, entry := range list {
		if entry == "" {
			continue
		}
		if host == entry || strings.HasSuffix(host, "."+entry) {
			return true
		}
	}
	return false
}

// Hostname extracts the lowercase hostname of rawURL. It returns false when
// the URL cannot be parsed or has no host.
func Hostname(rawURL string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", false
	}
	return host, true
}

// Signature canonicalizes rawURL into "host|path" or
// "host|path|key|value". It returns false when no hostname can be parsed.
func Signature(rawURL string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", false
	}

	path := strings.TrimRight(u.EscapedPath(), "/")
	if path == "" {
		path = "/"
	}

	params := u.Query()
	for _, key := range signatureQueryKeys {
		if !params.Has(key) {
			continue
		}
		value := strings.ToLower(strings.TrimSpace(params.Get(key)))
		if value != "" {
			return host + "|" + path + "|" + key + "|" + value, true
		}
	}

	return host + "|" + path, true
}

// LoadSignatures restores a persisted signature list. Entries that already
// look like signatures are kept verbatim; bare URLs from older stores are
// converted. The result is deduplicated.
func LoadSignatures(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, entry := range raw {
		if entry == "" {
			continue
		}
		sig := entry
		if !strings.Contains(entry, "|") {
			migrated, ok := Signature(entry)
			if !ok {
				continue
			}
			sig = migrated
		}
		if _, ok := seen[sig]; ok {
			continue
		}
		seen[sig] = struct{}{}
		out = append(out, sig)
	}
	return out
}

// Contains reports whether list holds sig exactly.
func Contains(list []string, sig string) bool {
	for _, s := range list {
		if s == sig {
			return true
		}
	}
	return false
}
