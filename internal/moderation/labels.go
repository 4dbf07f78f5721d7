package moderation

import "github.com/blackmichael/skyreader/internal/domain"

// System labels applied by moderation services.
const (
	LabelHide     = "!hide"
	LabelTakedown = "!takedown"
	LabelWarn     = "!warn"
)

var adultLabels = map[string]struct{}{
	"porn":   {},
	"sexual": {},
	"nudity": {},
}

// defaultVisibility mirrors the app defaults for accounts that never touched
// their content filter settings.
var defaultVisibility = map[string]domain.LabelVisibility{
	"porn":          domain.VisibilityHide,
	"sexual":        domain.VisibilityWarn,
	"nudity":        domain.VisibilityIgnore,
	"graphic-media": domain.VisibilityWarn,
}

// LabelEngine decides from post and author labels, the viewer's label
// preferences, and mute/block relationships.
type LabelEngine struct {
	viewerDID string
	adult     bool
	labels    map[string]domain.LabelVisibility
}

// NewLabelEngine builds an engine for the given viewer. prefs may be nil, in
// which case defaults apply and adult content is disabled.
func NewLabelEngine(viewerDID string, prefs *domain.Preferences) *LabelEngine {
	labels := make(map[string]domain.LabelVisibility, len(defaultVisibility))
	for k, v := range defaultVisibility {
		labels[k] = v
	}

	e := &LabelEngine{viewerDID: viewerDID, labels: labels}
	if prefs != nil {
		e.adult = prefs.AdultContentEnabled
		for k, v := range prefs.Labels {
			labels[k] = v
		}
	}
	return e
}

// Moderate returns a decision, or nil when nothing applies to the post.
func (e *LabelEngine) Moderate(post *domain.Post) Decision {
	if post == nil {
		return nil
	}

	d := &labelDecision{}
	own := e.viewerDID != "" && post.Author.DID == e.viewerDID

	for _, l := range allLabels(post) {
		if l.Neg {
			continue
		}
		switch {
		case l.Val == LabelTakedown:
			d.add(Cause{Label: l.Val, Type: "label"}, true, true)
		case own:
			// Self-labels and third-party labels do not hide the viewer's own posts.
		case l.Val == LabelHide:
			d.add(Cause{Label: l.Val, Type: "label"}, true, false)
		case l.Val == LabelWarn:
			d.add(Cause{Label: l.Val, Type: "label"}, false, false)
		default:
			d.add(Cause{Label: l.Val, Type: "label"}, e.hides(l.Val), false)
		}
	}

	if !own {
		v := post.Author.Viewer
		if v.Muted {
			d.add(Cause{Type: "muted"}, true, false)
		}
		if v.Blocking != "" {
			d.add(Cause{Type: "blocking"}, true, false)
		}
		if v.BlockedBy {
			d.add(Cause{Type: "blocked-by"}, true, false)
		}
	}

	if len(d.causes) == 0 {
		return nil
	}
	return d
}

func (e *LabelEngine) hides(val string) bool {
	if _, ok := adultLabels[val]; ok && !e.adult {
		return true
	}
	return e.labels[val] == domain.VisibilityHide
}

func allLabels(post *domain.Post) []domain.Label {
	labels := make([]domain.Label, 0, len(post.Labels)+len(post.Author.Labels))
	labels = append(labels, post.Labels...)
	labels = append(labels, post.Author.Labels...)
	return labels
}

type labelCause struct {
	cause Cause
	list  bool
	view  bool
}

type labelDecision struct {
	causes []labelCause
}

func (d *labelDecision) add(c Cause, filterList, filterView bool) {
	d.causes = append(d.causes, labelCause{cause: c, list: filterList, view: filterView})
}

// UI implements Decision.
func (d *labelDecision) UI(surface Surface) UI {
	var ui UI
	if d == nil {
		return ui
	}
	for _, c := range d.causes {
		filter := c.view
		if surface == ContentList {
			filter = filter || c.list
		}
		if filter {
			ui.Filter = true
			ui.Filters = append(ui.Filters, c.cause)
		}
	}
	return ui
}
