package bluesky

import (
	"context"

	jsoniter "github.com/json-iterator/go"

	"github.com/blackmichael/skyreader/internal/domain"
)

const (
	typeAdultContentPref = "app.bsky.actor.defs#adultContentPref"
	typeContentLabelPref = "app.bsky.actor.defs#contentLabelPref"
)

// Preferences returns the moderation-related account preferences.
func (c *Client) Preferences(ctx context.Context) (*domain.Preferences, error) {
	var resp struct {
		Preferences []jsoniter.RawMessage `json:"preferences"`
	}
	err := c.do(ctx, call{
		nsid:   "app.bsky.actor.getPreferences",
		result: &resp,
		auth:   true,
	})
	if err != nil {
		return nil, err
	}
	return decodePreferences(resp.Preferences), nil
}

// decodePreferences picks the adult content switch and per-label choices out
// of the preference union array. Unknown or malformed items are ignored.
func decodePreferences(items []jsoniter.RawMessage) *domain.Preferences {
	prefs := &domain.Preferences{Labels: make(map[string]domain.LabelVisibility)}
	for _, raw := range items {
		var item struct {
			Type       string `json:"$type"`
			Enabled    bool   `json:"enabled"`
			Label      string `json:"label"`
			Visibility string `json:"visibility"`
			LabelerDID string `json:"labelerDid"`
		}
		if err := json.Unmarshal(raw, &item); err != nil {
			continue
		}
		switch item.Type {
		case typeAdultContentPref:
			prefs.AdultContentEnabled = item.Enabled
		case typeContentLabelPref:
			// Labeler-specific settings are not modelled.
			if item.Label == "" || item.LabelerDID != "" {
				continue
			}
			prefs.Labels[item.Label] = labelVisibility(item.Visibility)
		}
	}
	return prefs
}

func labelVisibility(v string) domain.LabelVisibility {
	switch v {
	case "hide":
		return domain.VisibilityHide
	case "warn":
		return domain.VisibilityWarn
	default:
		// "show" and the legacy "ignore".
		return domain.VisibilityIgnore
	}
}
