package policy

// DefaultPolicies returns the built-in catalog of commonly distracting sites.
func DefaultPolicies() []SitePolicy {
	return []SitePolicy{
		NewStaticPolicy("youtube", "YouTube", "video", "youtube.com", "youtu.be"),
		NewStaticPolicy("twitter", "X / Twitter", "social", "twitter.com", "x.com"),
		NewStaticPolicy("reddit", "Reddit", "social", "reddit.com", "redd.it"),
		NewStaticPolicy("facebook", "Facebook", "social", "facebook.com"),
		NewStaticPolicy("instagram", "Instagram", "social", "instagram.com"),
		NewStaticPolicy("tiktok", "TikTok", "video", "tiktok.com"),
		NewStaticPolicy("netflix", "Netflix", "video", "netflix.com"),
		NewStaticPolicy("twitch", "Twitch", "video", "twitch.tv"),
		NewStaticPolicy("hackernews", "Hacker News", "news", "news.ycombinator.com"),
	}
}
