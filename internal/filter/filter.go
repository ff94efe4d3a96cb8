package filter

import (
	"strings"

	"notify-mail-relay-go/internal/model"
)

// Reasons an event is ignored
const (
	ReasonSelf        = "self"
	ReasonSystem      = "system"
	ReasonOngoing     = "ongoing"
	ReasonLowPriority = "low_priority"
	ReasonEmpty       = "empty"
)

// DefaultIgnoredSources are system components whose notifications are noise
var DefaultIgnoredSources = []string{
	"com.android.systemui",
	"android",
	"com.android.providers.downloads",
}

// Decision is the outcome of filtering one event
type Decision struct {
	Admit   bool
	Reason  string
	Title   string
	Content string
}

// Filter decides which notifications are forwarded
type Filter struct {
	self        string
	ignored     map[string]struct{}
	minPriority int
}

// New builds a filter. extraIgnored extends DefaultIgnoredSources.
func New(selfIdentity string, extraIgnored []string, minPriority int) *Filter {
	ignored := make(map[string]struct{}, len(DefaultIgnoredSources)+len(extraIgnored))
	for _, s := range DefaultIgnoredSources {
		ignored[s] = struct{}{}
	}
	for _, s := range extraIgnored {
		if s = strings.TrimSpace(s); s != "" {
			ignored[s] = struct{}{}
		}
	}
	return &Filter{self: selfIdentity, ignored: ignored, minPriority: minPriority}
}

func (f *Filter) Admit(e model.NotificationEvent) bool {
	return f.Decide(e).Admit
}

// Decide applies the ignore rules in order and selects the text to forward.
// The expanded text is preferred over the short text.
func (f *Filter) Decide(e model.NotificationEvent) Decision {
	if f.self != "" && e.SourceIdentity == f.self {
		return Decision{Reason: ReasonSelf}
	}
	if _, ok := f.ignored[e.SourceIdentity]; ok {
		return Decision{Reason: ReasonSystem}
	}
	if e.IsOngoing {
		return Decision{Reason: ReasonOngoing}
	}
	if e.Priority != nil && *e.Priority < f.minPriority {
		return Decision{Reason: ReasonLowPriority}
	}

	content := e.BigText
	if content == "" {
		content = e.Text
	}
	if e.Title == "" && content == "" {
		return Decision{Reason: ReasonEmpty}
	}

	return Decision{Admit: true, Title: e.Title, Content: content}
}
