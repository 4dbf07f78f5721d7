package domain

import "encoding/json"

// FeedEntry is one item of a feed page (app.bsky.feed.defs#feedViewPost).
type FeedEntry struct {
	Post   *Post     `json:"post"`
	Reply  *ReplyRef `json:"reply,omitempty"`
	Reason *Reason   `json:"reason,omitempty"`

	// FeedContext is an opaque value passed through from custom feed generators.
	FeedContext string `json:"feedContext,omitempty"`
}

// Root returns the reply root, or nil.
func (e *FeedEntry) Root() *ReplyPost {
	if e == nil || e.Reply == nil {
		return nil
	}
	return e.Reply.Root
}

// Parent returns the reply parent, or nil.
func (e *FeedEntry) Parent() *ReplyPost {
	if e == nil || e.Reply == nil {
		return nil
	}
	return e.Reply.Parent
}

// ReplyRef is the reply context of a feed entry.
type ReplyRef struct {
	Root              *ReplyPost `json:"root,omitempty"`
	Parent            *ReplyPost `json:"parent,omitempty"`
	GrandparentAuthor *Actor     `json:"grandparentAuthor,omitempty"`
}

// ReplyPostKind discriminates ReplyPost variants.
type ReplyPostKind string

const (
	ReplyPostView     ReplyPostKind = "post"
	ReplyPostNotFound ReplyPostKind = "notFound"
	ReplyPostBlocked  ReplyPostKind = "blocked"
)

// ReplyPost is the root or parent of a reply: a full post, or a placeholder
// when the post is gone or hidden by a block.
type ReplyPost struct {
	Kind ReplyPostKind `json:"kind"`
	URI  string        `json:"uri"`

	// Post is set for ReplyPostView.
	Post *Post `json:"post,omitempty"`

	// Author is set for ReplyPostBlocked.
	Author *Actor `json:"author,omitempty"`
}

// Blocked reports whether the post is hidden by a block in either direction.
func (r *ReplyPost) Blocked() bool {
	if r == nil {
		return false
	}
	if r.Kind == ReplyPostBlocked {
		return true
	}
	if r.Post != nil && r.Post.Author.Viewer.IsBlocked() {
		return true
	}
	return r.Author != nil && r.Author.Viewer.IsBlocked()
}

// AuthorDID returns the DID of the author, or "" when unknown.
func (r *ReplyPost) AuthorDID() string {
	switch {
	case r == nil:
		return ""
	case r.Post != nil:
		return r.Post.Author.DID
	case r.Author != nil:
		return r.Author.DID
	default:
		return ""
	}
}

// AuthorFollowed reports whether the viewer follows the author.
func (r *ReplyPost) AuthorFollowed() bool {
	switch {
	case r == nil:
		return false
	case r.Post != nil:
		return r.Post.Author.Viewer.IsFollowing()
	case r.Author != nil:
		return r.Author.Viewer.IsFollowing()
	default:
		return false
	}
}

// CID returns the content id of a full post, or "".
func (r *ReplyPost) CID() string {
	if r == nil || r.Post == nil {
		return ""
	}
	return r.Post.CID
}

const (
	typePostView     = "app.bsky.feed.defs#postView"
	typeNotFoundPost = "app.bsky.feed.defs#notFoundPost"
	typeBlockedPost  = "app.bsky.feed.defs#blockedPost"
)

// UnmarshalJSON decodes the lexicon union, dispatching on $type.
func (r *ReplyPost) UnmarshalJSON(data []byte) error {
	var head struct {
		Type   string `json:"$type"`
		URI    string `json:"uri"`
		Author *Actor `json:"author"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}

	*r = ReplyPost{URI: head.URI}
	switch head.Type {
	case typeNotFoundPost:
		r.Kind = ReplyPostNotFound
	case typeBlockedPost:
		r.Kind = ReplyPostBlocked
		r.Author = head.Author
	default:
		// postView, or an untyped post view from older servers.
		var p Post
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		r.Kind = ReplyPostView
		r.Post = &p
	}
	return nil
}

// ReasonKind discriminates Reason variants.
type ReasonKind string

const (
	ReasonRepost ReasonKind = "repost"
	ReasonPin    ReasonKind = "pin"
	ReasonOther  ReasonKind = "other"
)

// Reason explains why an entry appears in a feed other than being authored
// by someone followed.
type Reason struct {
	Kind ReasonKind `json:"kind"`

	// By and IndexedAt are set for ReasonRepost.
	By        *Actor `json:"by,omitempty"`
	IndexedAt string `json:"indexedAt,omitempty"`
}

// IsRepost reports whether the reason is a repost marker.
func (r *Reason) IsRepost() bool {
	return r != nil && r.Kind == ReasonRepost
}

const (
	typeReasonRepost = "app.bsky.feed.defs#reasonRepost"
	typeReasonPin    = "app.bsky.feed.defs#reasonPin"
)

// UnmarshalJSON decodes the lexicon union, dispatching on $type.
func (r *Reason) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type      string `json:"$type"`
		By        *Actor `json:"by"`
		IndexedAt string `json:"indexedAt"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = Reason{}
	switch raw.Type {
	case typeReasonRepost:
		r.Kind = ReasonRepost
		r.By = raw.By
		r.IndexedAt = raw.IndexedAt
	case typeReasonPin:
		r.Kind = ReasonPin
	default:
		r.Kind = ReasonOther
	}
	return nil
}

// FeedPage is one page of a feed.
type FeedPage struct {
	Entries []FeedEntry

	// Cursor is empty when there are no more pages.
	Cursor string
}

// EntriesFromPosts wraps bare posts (search results, getPosts) as feed entries.
func EntriesFromPosts(posts []Post) []FeedEntry {
	entries := make([]FeedEntry, 0, len(posts))
	for i := range posts {
		p := posts[i]
		entries = append(entries, FeedEntry{Post: &p})
	}
	return entries
}
