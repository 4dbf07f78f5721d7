package domain

import "encoding/json"

// ThreadNodeKind discriminates ThreadNode variants.
type ThreadNodeKind string

const (
	ThreadPost     ThreadNodeKind = "post"
	ThreadNotFound ThreadNodeKind = "notFound"
	ThreadBlocked  ThreadNodeKind = "blocked"
)

// ThreadNode is a node of app.bsky.feed.getPostThread output.
type ThreadNode struct {
	Kind ThreadNodeKind `json:"kind"`
	URI  string         `json:"uri,omitempty"`

	// Post, Parent and Replies are only set for ThreadPost.
	Post    *Post         `json:"post,omitempty"`
	Parent  *ThreadNode   `json:"parent,omitempty"`
	Replies []*ThreadNode `json:"replies,omitempty"`
}

const (
	typeThreadViewPost = "app.bsky.feed.defs#threadViewPost"
)

// UnmarshalJSON decodes the lexicon union, dispatching on $type.
func (n *ThreadNode) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type    string        `json:"$type"`
		URI     string        `json:"uri"`
		Post    *Post         `json:"post"`
		Parent  *ThreadNode   `json:"parent"`
		Replies []*ThreadNode `json:"replies"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*n = ThreadNode{URI: raw.URI}
	switch raw.Type {
	case typeNotFoundPost:
		n.Kind = ThreadNotFound
	case typeBlockedPost:
		n.Kind = ThreadBlocked
	default:
		// threadViewPost; untyped nodes with a post are treated the same.
		if raw.Type != typeThreadViewPost && raw.Post == nil {
			n.Kind = ThreadNotFound
			return nil
		}
		n.Kind = ThreadPost
		n.Post = raw.Post
		n.Parent = raw.Parent
		n.Replies = raw.Replies
		if raw.Post != nil {
			n.URI = raw.Post.URI
		}
	}
	return nil
}
