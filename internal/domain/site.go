package domain

import (
	"fmt"
	"sort"
	"strings"
)

const (
	maxDomainLength = 253
	maxLabelLength  = 63
)

// NormalizeDomain reduces user input to a bare lower-case domain.
// An optional scheme, a leading "www." and a trailing port are stripped and
// everything from the first '/', '?' or '#' is discarded. Returns "" when the
// result is not a valid hostname.
func NormalizeDomain(raw string) string {
	d := strings.ToLower(strings.TrimSpace(raw))
	if i := strings.Index(d, "://"); i >= 0 {
		d = d[i+3:]
	}
	d = strings.TrimPrefix(d, "www.")
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	if i := strings.LastIndexByte(d, ':'); i >= 0 {
		if !isDigits(d[i+1:]) {
			return ""
		}
		d = d[:i]
	}
	d = strings.Trim(d, ".")
	if !ValidDomain(d) {
		return ""
	}
	return d
}

// ValidDomain reports whether d is a lower-case hostname: dot-separated
// labels of [a-z0-9-] that neither start nor end with '-'.
func ValidDomain(d string) bool {
	if d == "" || len(d) > maxDomainLength {
		return false
	}
	for _, label := range strings.Split(d, ".") {
		if label == "" || len(label) > maxLabelLength {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for i := 0; i < len(label); i++ {
			c := label[i]
			if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '-' {
				return false
			}
		}
	}
	return true
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// DomainURLFilter builds the glob matching the domain and its direct subdomains.
func DomainURLFilter(domain string) string {
	return fmt.Sprintf("*://{%s,*.%s}/**", domain, domain)
}

// UniqueSorted returns the sorted set of non-empty values.
func UniqueSorted(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
