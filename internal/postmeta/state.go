// Package postmeta keeps a shared, optimistic overlay of engagement counts
// and the viewer's like/repost state per post, so every place showing a post
// sees the same numbers while a mutation is in flight.
package postmeta

import (
	"encoding/json"

	"github.com/blackmichael/skyreader/internal/domain"
)

type stateKind uint8

const (
	stateIdle stateKind = iota
	stateCreating
	stateDeleting
	stateCommitted
)

// RecordState is the viewer's like or repost record for a post: none, being
// written, being deleted, or stored under a record uri.
type RecordState struct {
	kind stateKind
	uri  string
}

// Idle means the viewer has no record.
func Idle() RecordState { return RecordState{} }

// Creating means a create is in flight. The post already shows as liked (or
// reposted).
func Creating() RecordState { return RecordState{kind: stateCreating} }

// Deleting means a delete is in flight. The post already shows as not liked
// (or not reposted).
func Deleting() RecordState { return RecordState{kind: stateDeleting} }

// Committed means the record exists at uri.
func Committed(uri string) RecordState {
	if uri == "" {
		return Idle()
	}
	return RecordState{kind: stateCommitted, uri: uri}
}

func (s RecordState) IsIdle() bool      { return s.kind == stateIdle }
func (s RecordState) IsCommitted() bool { return s.kind == stateCommitted }

// IsPending reports whether a create or delete is in flight.
func (s RecordState) IsPending() bool {
	return s.kind == stateCreating || s.kind == stateDeleting
}

// Active reports whether the post shows as liked (or reposted): the record
// exists or is being created.
func (s RecordState) Active() bool {
	return s.kind == stateCommitted || s.kind == stateCreating
}

// URI returns the record uri of a committed state, or "".
func (s RecordState) URI() string { return s.uri }

func (s RecordState) String() string {
	switch s.kind {
	case stateCommitted:
		return "committed(" + s.uri + ")"
	default:
		return s.name()
	}
}

func (s RecordState) name() string {
	switch s.kind {
	case stateCreating:
		return "creating"
	case stateDeleting:
		return "deleting"
	case stateCommitted:
		return "committed"
	default:
		return "idle"
	}
}

// MarshalJSON encodes the state as {"state": ..., "uri": ...}.
func (s RecordState) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		State string `json:"state"`
		URI   string `json:"uri,omitempty"`
	}{State: s.name(), URI: s.uri})
}

// Meta is the overlay for one post.
type Meta struct {
	LikeCount   int `json:"likeCount"`
	RepostCount int `json:"repostCount"`
	ReplyCount  int `json:"replyCount"`
	QuoteCount  int `json:"quoteCount"`

	Like   RecordState `json:"like"`
	Repost RecordState `json:"repost"`
}

// Liked reports whether the post shows as liked.
func (m Meta) Liked() bool { return m.Like.Active() }

// Reposted reports whether the post shows as reposted.
func (m Meta) Reposted() bool { return m.Repost.Active() }

// FromPost builds the overlay a post view implies.
func FromPost(p *domain.Post) Meta {
	if p == nil {
		return Meta{}
	}
	return Meta{
		LikeCount:   p.LikeCount,
		RepostCount: p.RepostCount,
		ReplyCount:  p.ReplyCount,
		QuoteCount:  p.QuoteCount,
		Like:        Committed(p.Viewer.Like),
		Repost:      Committed(p.Viewer.Repost),
	}
}

// Update is a partial Meta. Nil fields are left alone.
type Update struct {
	LikeCount   *int
	RepostCount *int
	ReplyCount  *int
	QuoteCount  *int
	Like        *RecordState
	Repost      *RecordState
}

// Apply returns m with the non-nil fields of u merged in.
func (u Update) Apply(m Meta) Meta {
	if u.LikeCount != nil {
		m.LikeCount = *u.LikeCount
	}
	if u.RepostCount != nil {
		m.RepostCount = *u.RepostCount
	}
	if u.ReplyCount != nil {
		m.ReplyCount = *u.ReplyCount
	}
	if u.QuoteCount != nil {
		m.QuoteCount = *u.QuoteCount
	}
	if u.Like != nil {
		m.Like = *u.Like
	}
	if u.Repost != nil {
		m.Repost = *u.Repost
	}
	return m
}
