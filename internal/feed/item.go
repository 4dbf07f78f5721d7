package feed

import "github.com/blackmichael/skyreader/internal/domain"

// ItemKind discriminates view-model items.
type ItemKind string

const (
	ItemPost    ItemKind = "post"
	ItemSubFeed ItemKind = "sub-feed"
)

// Item is one row of a rendered feed: a single entry, or a synthetic group
// of reposts.
type Item struct {
	Kind ItemKind `json:"kind"`

	// Key is stable across reloads and unique within a page.
	Key string `json:"key"`

	// Entry and Chrome are set for ItemPost.
	Entry  *domain.FeedEntry `json:"entry,omitempty"`
	Chrome *Chrome           `json:"chrome,omitempty"`

	// SubFeed is set for ItemSubFeed.
	SubFeed *SubFeed `json:"subFeed,omitempty"`
}

// SubFeed is a carousel of reposts pulled out of the main sequence.
type SubFeed struct {
	// Type is always "repost" for now.
	Type  string             `json:"type"`
	Posts []domain.FeedEntry `json:"posts"`
}

// Chrome says which reply context to draw around an entry.
type Chrome struct {
	ShowRoot       bool `json:"showRoot"`
	ShowParent     bool `json:"showParent"`
	ShowViewThread bool `json:"showViewThread"`

	// RootReplyCount feeds the "N replies. View full thread" link.
	RootReplyCount int `json:"rootReplyCount,omitempty"`
}

// NewItem wraps an entry.
func NewItem(e domain.FeedEntry) Item {
	return Item{
		Kind:   ItemPost,
		Key:    entryKey(&e),
		Entry:  &e,
		Chrome: chromeFor(&e),
	}
}

// IsRepost reports whether the item is a single reposted entry.
func (it Item) IsRepost() bool {
	return it.Kind == ItemPost && it.Entry != nil && it.Entry.Reason.IsRepost()
}

func entryKey(e *domain.FeedEntry) string {
	key := ""
	if e.Post != nil {
		key = e.Post.URI
	}
	if e.Reason != nil && e.Reason.IndexedAt != "" {
		key += "_" + e.Reason.IndexedAt
	}
	return key
}

// chromeFor never shows reply context for entries with a reason: a repost or
// pin is about the post itself, not its conversation.
func chromeFor(e *domain.FeedEntry) *Chrome {
	c := &Chrome{}
	if e.Reason != nil {
		return c
	}

	root, parent := e.Root(), e.Parent()
	rootCID, parentCID := root.CID(), parent.CID()

	c.ShowParent = parentCID != ""
	c.ShowRoot = rootCID != "" && parentCID != "" && rootCID != parentCID
	if c.ShowRoot {
		grandparent := ""
		if reply := parent.Post.Record.Reply; reply != nil {
			grandparent = reply.Parent.URI
		}
		c.ShowViewThread = grandparent != root.URI
		c.RootReplyCount = root.Post.ReplyCount
	}
	return c
}
