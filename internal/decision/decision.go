package decision

import "time"

// Source identifies which pipeline stage produced a Decision.
type Source string

const (
	SourceBlockList Source = "blocklist"
	SourceAllowList Source = "allowlist"
	SourceAllowURL  Source = "allowurl"
	SourceCache     Source = "cache"
	SourceWhitelist Source = "whitelist"
	SourceNoAPIKey  Source = "no-api-key"
	SourceNoTask    Source = "no-task"
	SourceNoHTML    Source = "no-html"
	SourceAI        Source = "ai"
	SourceAIError   Source = "ai-error"
	SourceDisabled  Source = "disabled"
	SourceNoFlight  Source = "no-flight"
	SourceInvalid   Source = "invalid-url"
	SourceError     Source = "error"
)

const (
	// FallbackTask is reported when no focus goal is configured.
	FallbackTask = "Stay focused"
	// MissingTask asks the caller to prompt the user for a goal.
	MissingTask = "Please set a focus goal"
)

// Decision is the answer to "should this page warn the user".
// Values are treated as immutable once produced.
type Decision struct {
	ShouldWarn    bool     `json:"shouldWarn"`
	IsDistraction bool     `json:"isDistraction"`
	Reason        string   `json:"reason"`
	Source        Source   `json:"source"`
	Confidence    *float64 `json:"confidence,omitempty"`
	Cached        bool     `json:"cached"`
	CurrentTask   string   `json:"currentTask"`
	Timestamp     int64    `json:"timestamp"`

	IsBlocked        bool   `json:"isBlocked,omitempty"`
	IsAllowed        bool   `json:"isAllowed,omitempty"`
	ExtensionEnabled *bool  `json:"extensionEnabled,omitempty"`
	Error            string `json:"error,omitempty"`
	RawAIResponse    string `json:"rawAiResponse,omitempty"`
}

// Allows reports whether the caller should let navigation proceed.
func (d Decision) Allows() bool {
	return !d.ShouldWarn
}

// Factory builds the canned decisions of the pipeline, stamping them with
// the current goal and time.
type Factory struct {
	Now func() time.Time
}

func (f Factory) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

func (f Factory) build(goal string, warn bool, reason string, src Source) Decision {
	if goal == "" {
		goal = FallbackTask
	}
	return Decision{
		ShouldWarn:    warn,
		IsDistraction: warn,
		Reason:        reason,
		Source:        src,
		CurrentTask:   goal,
		Timestamp:     f.now().UnixMilli(),
	}
}

func (f Factory) Disabled(goal string) Decision {
	d := f.build(goal, false, "Focus Guardian is turned off", SourceDisabled)
	off := false
	d.ExtensionEnabled = &off
	return d
}

func (f Factory) NoFlight(goal string) Decision {
	return f.build(goal, false, "No focus flight in progress", SourceNoFlight)
}

func (f Factory) InvalidURL(goal string) Decision {
	return f.build(goal, false, "Invalid URL provided", SourceInvalid)
}

func (f Factory) Blocked(goal string) Decision {
	d := f.build(goal, true, "Site is in your strict block list", SourceBlockList)
	d.IsBlocked = true
	return d
}

func (f Factory) AllowListed(goal string) Decision {
	d := f.build(goal, false, "This site is in your allow list", SourceAllowList)
	d.IsAllowed = true
	return d
}

func (f Factory) AllowedURL(goal string) Decision {
	d := f.build(goal, false, "You allowed this exact page/query", SourceAllowURL)
	d.IsAllowed = true
	return d
}

// UserAllowedPage is cached when the user explicitly allows a page.
func (f Factory) UserAllowedPage(goal string) Decision {
	return f.build(goal, false, "You allowed this page", SourceAllowURL)
}

func (f Factory) ProductivityAllow(goal string) Decision {
	return f.build(goal, false, "Common productivity site - allowed", SourceWhitelist)
}

func (f Factory) NoAPIKey(goal string) Decision {
	return f.build(goal, false, "API key not configured - cannot analyze", SourceNoAPIKey)
}

func (f Factory) NoTask() Decision {
	return f.build(MissingTask, false, "No focus goal set - cannot analyze", SourceNoTask)
}

func (f Factory) NoHTML(goal string) Decision {
	return f.build(goal, false, "Could not get page content", SourceNoHTML)
}

func (f Factory) AIError(goal string, err error) Decision {
	d := f.build(goal, false, "AI analysis failed - allowing access", SourceAIError)
	if err != nil {
		d.Error = err.Error()
	}
	return d
}

// Classified wraps a classifier verdict. raw is kept only for verdicts that
// fell back to the default allow.
func (f Factory) Classified(goal string, distraction bool, reason string, confidence *float64, raw string) Decision {
	d := f.build(goal, distraction, reason, SourceAI)
	d.Confidence = confidence
	d.RawAIResponse = raw
	return d
}

func (f Factory) Failure(goal string, msg string) Decision {
	d := f.build(goal, false, "Error occurred during check", SourceError)
	d.Error = msg
	return d
}

// FromCache re-tags a cached decision for delivery.
func FromCache(d Decision, goal string) Decision {
	d.Cached = true
	d.Source = SourceCache
	d.CurrentTask = goal
	return d
}
