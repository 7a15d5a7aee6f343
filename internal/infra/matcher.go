package infra

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/gobwas/glob"

	"github.com/eliteGoblin/focusd/focustab/internal/domain"
)

// CompileURLFilter compiles a rule URL filter. '.' and '/' are separators, so
// a single '*' never spans a domain label or a path segment.
func CompileURLFilter(filter string) (glob.Glob, error) {
	g, err := glob.Compile(filter, '.', '/')
	if err != nil {
		return nil, fmt.Errorf("invalid url filter %q: %w", filter, err)
	}
	return g, nil
}

// MatchRules returns the highest-priority rule matching rawURL for the given
// resource type. Ties go to the lowest rule ID.
func MatchRules(rules []domain.Rule, rawURL string, rt domain.ResourceType) (domain.Rule, bool) {
	target, host, ok := canonicalURL(rawURL)
	if !ok {
		return domain.Rule{}, false
	}

	sorted := make([]domain.Rule, len(rules))
	copy(sorted, rules)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority > sorted[j].Priority
		}
		return sorted[i].ID < sorted[j].ID
	})

	for _, r := range sorted {
		if !hasResourceType(r.Condition.ResourceTypes, rt) {
			continue
		}
		if ruleMatches(r, target, host) {
			return r, true
		}
	}
	return domain.Rule{}, false
}

func ruleMatches(r domain.Rule, target, host string) bool {
	if r.Condition.URLFilter != "" {
		g, err := CompileURLFilter(r.Condition.URLFilter)
		if err != nil {
			return false
		}
		return g.Match(target)
	}
	for _, d := range r.Condition.RequestDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// canonicalURL lower-cases scheme and host, drops the port, query and
// fragment, and guarantees a path.
func canonicalURL(rawURL string) (target, host string, ok bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", "", false
	}
	host = strings.ToLower(u.Hostname())
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return strings.ToLower(u.Scheme) + "://" + host + path, host, true
}

func hasResourceType(types []domain.ResourceType, rt domain.ResourceType) bool {
	for _, t := range types {
		if t == rt {
			return true
		}
	}
	return false
}
