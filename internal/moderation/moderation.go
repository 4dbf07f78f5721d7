// Package moderation adapts a moderation decision engine to the feed and
// thread pipelines.
//
// Moderation is fail-open: when no engine is configured, or the engine has no
// decision for a post, the post is shown.
package moderation

import "github.com/blackmichael/skyreader/internal/domain"

// Surface is the UI context a decision is queried for.
type Surface string

const (
	// ContentList is a post shown inside a feed or list.
	ContentList Surface = "contentList"

	// ContentView is a post opened on its own.
	ContentView Surface = "contentView"
)

// Cause describes why a post is filtered.
type Cause struct {
	// Label is the label value for label causes, empty otherwise.
	Label string `json:"label,omitempty"`

	// Type is one of "label", "muted", "blocking" or "blocked-by".
	Type string `json:"type"`
}

// Name returns the label when present, otherwise the cause type.
func (c Cause) Name() string {
	if c.Label != "" {
		return c.Label
	}
	return c.Type
}

// UI is the outcome of a decision for one surface.
type UI struct {
	Filter  bool
	Filters []Cause
}

// Decision is a moderation verdict for a single post.
type Decision interface {
	UI(surface Surface) UI
}

// Moderator produces decisions. Moderate may return nil when it has nothing
// to say about a post.
type Moderator interface {
	Moderate(post *domain.Post) Decision
}

// ModeratorFunc adapts a function to the Moderator interface.
type ModeratorFunc func(post *domain.Post) Decision

// Moderate calls f(post).
func (f ModeratorFunc) Moderate(post *domain.Post) Decision {
	return f(post)
}

// Check reports whether post should be hidden from content lists, and the
// first triggering cause. A nil moderator, a nil post or a nil decision all
// mean "do not filter".
func Check(m Moderator, post *domain.Post) (bool, *Cause) {
	return CheckSurface(m, post, ContentList)
}

// CheckSurface is Check for an arbitrary surface.
func CheckSurface(m Moderator, post *domain.Post, surface Surface) (bool, *Cause) {
	if m == nil || post == nil {
		return false, nil
	}
	decision := m.Moderate(post)
	if decision == nil {
		return false, nil
	}
	ui := decision.UI(surface)
	if !ui.Filter {
		return false, nil
	}
	if len(ui.Filters) == 0 {
		return true, nil
	}
	cause := ui.Filters[0]
	return true, &cause
}
