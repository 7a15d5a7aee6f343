package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDomain(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "scheme and path", raw: "https://Example.com/path", want: "example.com"},
		{name: "www and query", raw: "HTTP://www.Reddit.com/r/golang?x=1", want: "reddit.com"},
		{name: "bare domain", raw: "news.ycombinator.com", want: "news.ycombinator.com"},
		{name: "surrounding spaces", raw: "  twitch.tv  ", want: "twitch.tv"},
		{name: "fragment", raw: "x.com#home", want: "x.com"},
		{name: "only www keeps subdomain", raw: "www.m.youtube.com", want: "m.youtube.com"},
		{name: "empty", raw: "   ", want: ""},
		{name: "scheme only", raw: "https://", want: ""},
		{name: "port stripped", raw: "https://example.com:8443/login", want: "example.com"},
		{name: "trailing dot", raw: "example.com.", want: "example.com"},
		{name: "glob bracket", raw: "ex[ample.com", want: ""},
		{name: "glob brace", raw: "{a.com", want: ""},
		{name: "glob alternation", raw: "com,evil.org", want: ""},
		{name: "wildcard", raw: "*.example.com", want: ""},
		{name: "embedded newline", raw: "a.com\n6.6.6.6 bank.com", want: ""},
		{name: "inner space", raw: "bad domain.com", want: ""},
		{name: "non-numeric port", raw: "example.com:http", want: ""},
		{name: "empty label", raw: "a..com", want: ""},
		{name: "leading hyphen", raw: "-a.com", want: ""},
		{name: "non-ascii", raw: "bücher.de", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeDomain(tt.raw))
		})
	}
}

func TestValidDomain(t *testing.T) {
	assert.True(t, ValidDomain("x.com"))
	assert.True(t, ValidDomain("localhost"))
	assert.True(t, ValidDomain("a-b.co.uk"))
	assert.False(t, ValidDomain(""))
	assert.False(t, ValidDomain("X.com"), "callers normalize case first")
	assert.False(t, ValidDomain("a.com,b.com"))
	assert.False(t, ValidDomain("a-.com"))
	assert.False(t, ValidDomain(strings.Repeat("a", 64)+".com"))
	assert.False(t, ValidDomain(strings.Repeat("a.", 127)+"com"))
}

func TestDomainURLFilter(t *testing.T) {
	assert.Equal(t, "*://{x.com,*.x.com}/**", DomainURLFilter("x.com"))
}

func TestUniqueSorted(t *testing.T) {
	got := UniqueSorted([]string{"y.com", "x.com", "", "y.com"})
	assert.Equal(t, []string{"x.com", "y.com"}, got)
	assert.Empty(t, UniqueSorted(nil))
}

func TestTimerState_Predicates(t *testing.T) {
	left := 10
	assert.True(t, TimerState{}.IsIdle())
	assert.False(t, TimerState{}.IsPaused())
	assert.True(t, TimerState{PausedTimeLeft: &left}.IsPaused())
	assert.False(t, TimerState{IsRunning: true}.IsIdle())
}

func TestSiteSelection_Lookups(t *testing.T) {
	sel := SiteSelection{
		PresetSelected: []PresetID{"reddit"},
		CustomSites:    []CustomSite{{ID: "1", Domain: "example.com"}},
	}
	assert.True(t, sel.HasPreset("reddit"))
	assert.False(t, sel.HasPreset("youtube"))
	assert.True(t, sel.HasCustomDomain("example.com"))
	assert.False(t, sel.HasCustomDomain("www.example.com"))
}
