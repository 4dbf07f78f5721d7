package feed

import (
	"github.com/blackmichael/skyreader/internal/domain"
	"github.com/blackmichael/skyreader/internal/seen"
)

// MassageStats counts what happened to each entry of a page.
type MassageStats struct {
	Input int

	// Kept includes Self.
	Kept int
	Self int

	Malformed  int
	Blocked    int
	Unfollowed int
	Duplicate  int

	// Evicted is the number of seen uris pushed out of the context cache.
	Evicted int
}

// Massager drops noise from followed-feed pages: replies between accounts the
// viewer does not follow, replies under blocked posts, and posts the same view
// has already shown through another path (as a root, parent, quote or repost).
type Massager struct {
	seen *seen.Registry
}

// NewMassager creates a massager backed by the given seen registry.
func NewMassager(registry *seen.Registry) *Massager {
	return &Massager{seen: registry}
}

// Massage filters entries for one page of the view identified by context.
// reset clears the view's seen cache first and must be set only for the first
// page of a freshly (re)loaded view. viewerDID may be empty for anonymous
// sessions. The result is a subsequence of entries in the same order.
func (m *Massager) Massage(entries []domain.FeedEntry, context string, reset bool, viewerDID string) ([]domain.FeedEntry, MassageStats) {
	cache := m.seen.For(context)
	if reset {
		cache.Clear()
	}

	stats := MassageStats{Input: len(entries)}
	kept := make([]domain.FeedEntry, 0, len(entries))

	keep := func(e domain.FeedEntry) {
		for _, uri := range seenURIs(&e) {
			if cache.Add(uri) {
				stats.Evicted++
			}
		}
		kept = append(kept, e)
		stats.Kept++
	}

	for _, e := range entries {
		if e.Post == nil || e.Post.URI == "" {
			stats.Malformed++
			continue
		}

		if isSelf(&e, viewerDID) {
			stats.Self++
			keep(e)
			continue
		}

		if e.Parent().Blocked() || e.Root().Blocked() {
			stats.Blocked++
			continue
		}

		if !followPolicyAllows(&e) {
			stats.Unfollowed++
			continue
		}

		if cache.Has(e.Post.URI) {
			stats.Duplicate++
			continue
		}

		keep(e)
	}

	return kept, stats
}

// isSelf reports whether the viewer wrote the post, its parent or its root.
func isSelf(e *domain.FeedEntry, viewerDID string) bool {
	if viewerDID == "" {
		return false
	}
	return e.Post.Author.DID == viewerDID ||
		e.Parent().AuthorDID() == viewerDID ||
		e.Root().AuthorDID() == viewerDID
}

// followPolicyAllows hides replies to accounts the viewer does not follow,
// unless the thread root is by someone the viewer does follow.
func followPolicyAllows(e *domain.FeedEntry) bool {
	parent, root := e.Parent(), e.Root()
	if parent == nil || parent.URI == "" {
		return true
	}

	postAuthor := e.Post.Author.DID
	if parent.AuthorFollowed() || parent.AuthorDID() == postAuthor {
		return true
	}

	hasRoot := root != nil && root.URI != "" && root.URI != parent.URI
	return hasRoot && root.AuthorFollowed() && root.AuthorDID() != postAuthor
}

// seenURIs lists every uri a kept entry makes visible.
func seenURIs(e *domain.FeedEntry) []string {
	uris := make([]string, 0, 4)
	if root := e.Root(); root != nil && root.URI != "" {
		uris = append(uris, root.URI)
	}
	if parent := e.Parent(); parent != nil && parent.URI != "" {
		uris = append(uris, parent.URI)
	}
	uris = append(uris, e.Post.URI)
	if quoted := e.Post.Embed.QuotedURI(); quoted != "" {
		uris = append(uris, quoted)
	}
	return uris
}
