// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import "time"

// Record keys shared by the foreground and the background daemon.
const (
	KeyTimerState     = "focus_timer"
	KeySiteSelection  = "focus_sites"
	KeyBlockingIntent = "focus_blocking"
	KeyActivity       = "activity_data"
)

// DefaultFocusDuration is the length of one Pomodoro session.
const DefaultFocusDuration = 25 * time.Minute

// TimerState is the persisted countdown state.
// At most one of StartedAt / PausedTimeLeft is set; both nil means idle at full duration.
type TimerState struct {
	IsRunning bool `json:"is_running"`
	// StartedAt is shifted backwards by already-elapsed time when resuming,
	// so remaining time is always duration - (now - StartedAt).
	StartedAt      *time.Time `json:"started_at,omitempty"`
	PausedTimeLeft *int       `json:"paused_time_left,omitempty"` // seconds
}

// IsIdle reports whether the timer is neither running nor paused.
func (s TimerState) IsIdle() bool {
	return !s.IsRunning && s.StartedAt == nil && s.PausedTimeLeft == nil
}

// IsPaused reports whether the timer holds a paused snapshot.
func (s TimerState) IsPaused() bool {
	return !s.IsRunning && s.PausedTimeLeft != nil
}

// PresetID identifies a site in the built-in catalog.
type PresetID string

// CustomSite is a user-added domain.
type CustomSite struct {
	ID     string `json:"id"`
	Domain string `json:"domain"`
}

// SiteSelection is the editable list of domains eligible for blocking.
type SiteSelection struct {
	PresetSelected []PresetID   `json:"preset_selected"`
	CustomSites    []CustomSite `json:"custom_sites"`
}

// HasPreset reports whether id is selected.
func (s SiteSelection) HasPreset(id PresetID) bool {
	for _, p := range s.PresetSelected {
		if p == id {
			return true
		}
	}
	return false
}

// HasCustomDomain reports whether a custom site with the given normalized domain exists.
func (s SiteSelection) HasCustomDomain(domain string) bool {
	for _, c := range s.CustomSites {
		if c.Domain == domain {
			return true
		}
	}
	return false
}

// BlockingIntent is the only contract between the foreground and the synchronizer.
// Domains is empty whenever Active is false.
type BlockingIntent struct {
	Active    bool      `json:"active"`
	Domains   []string  `json:"domains"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ActivityData is the persisted focus streak record.
type ActivityData struct {
	Date          string `json:"date"`
	Streak        int    `json:"streak"`
	LastFocusDate string `json:"last_focus_date,omitempty"`
	SessionsToday int    `json:"sessions_today"`
	TotalSessions int    `json:"total_sessions"`
}

// ResourceType is the kind of request a rule applies to.
type ResourceType string

// ResourceMainFrame is a top-level page navigation.
const ResourceMainFrame ResourceType = "main_frame"

// RuleActionType is what the engine does for a matching request.
type RuleActionType string

// ActionRedirect substitutes the request with the placeholder page.
const ActionRedirect RuleActionType = "redirect"

// RuleCondition describes which requests a rule matches.
type RuleCondition struct {
	URLFilter      string         `json:"url_filter"`
	RequestDomains []string       `json:"request_domains"`
	ResourceTypes  []ResourceType `json:"resource_types"`
}

// RuleAction describes what happens on a match.
type RuleAction struct {
	Type         RuleActionType `json:"type"`
	RedirectPath string         `json:"redirect_path,omitempty"`
}

// Rule is a single entry in the rule-matching engine.
type Rule struct {
	ID        int           `json:"id"`
	Priority  int           `json:"priority"`
	Condition RuleCondition `json:"condition"`
	Action    RuleAction    `json:"action"`
}

// DaemonRole identifies the type of daemon process.
type DaemonRole string

// RoleBlocker is the background rule synchronizer.
const RoleBlocker DaemonRole = "blocker"

// Daemon represents a running daemon process.
type Daemon struct {
	PID        int
	Role       DaemonRole
	StartedAt  time.Time
	AppVersion string
	Engine     string // Rule engine the daemon drives
}

// RegistryEntry stores the daemon state for discovery by the foreground.
type RegistryEntry struct {
	Version       int    `json:"version"`
	PID           int    `json:"pid"`
	Role          string `json:"role"`
	StartedAt     int64  `json:"started_at"`
	LastHeartbeat int64  `json:"last_heartbeat"`
	Mode          string `json:"mode,omitempty"`
	AppVersion    string `json:"app_version,omitempty"`
	Engine        string `json:"engine,omitempty"`
}
