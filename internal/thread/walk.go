// Package thread turns a getPostThread response into a flat list of ancestors
// and a list of same-author segments with nested replies by others, then lays
// the replies out with disclosure and indentation rules.
//
// Everything in this package except Service is pure: inputs are never
// modified and no I/O is performed.
package thread

import (
	"slices"

	"github.com/blackmichael/skyreader/internal/domain"
)

// MaxParentDepth bounds how many parent links WalkParents follows.
const MaxParentDepth = 1000

// Segment is one step of a same-author chain: the post and the replies by
// other accounts that branch off at that point.
type Segment struct {
	Post    *domain.Post
	Replies []*domain.ThreadNode
}

// WalkParents follows parent links upward from parent and returns the
// ancestor posts oldest first. Nodes that are not posts (deleted or blocked
// ancestors) are skipped.
func WalkParents(parent *domain.ThreadNode) []*domain.Post {
	var parents []*domain.Post
	for node, depth := parent, 0; node != nil && depth < MaxParentDepth; node, depth = node.Parent, depth+1 {
		if node.Kind == domain.ThreadPost && node.Post != nil {
			parents = append(parents, node.Post)
		}
	}
	slices.Reverse(parents)
	return parents
}

// WalkThread flattens a chain of self-replies into segments. Replies by the
// focal post's author start a new segment each, oldest first, and every
// other reply stays attached to the segment it answers.
//
// A reply whose author has no DID never continues the chain.
func WalkThread(post *domain.Post, replies []*domain.ThreadNode) []Segment {
	if post == nil {
		return nil
	}
	return walkThread(post, replies, nil)
}

func walkThread(post *domain.Post, replies []*domain.ThreadNode, thread []Segment) []Segment {
	var same, others []*domain.ThreadNode
	author := post.Author.DID
	for _, r := range replies {
		if r == nil {
			continue
		}
		if author != "" && r.Post != nil && r.Post.Author.DID == author {
			same = append(same, r)
		} else {
			others = append(others, r)
		}
	}

	slices.SortStableFunc(same, func(a, b *domain.ThreadNode) int {
		return a.Post.Record.Created().Compare(b.Post.Record.Created())
	})

	thread = append(thread, Segment{Post: post, Replies: others})
	for _, r := range same {
		thread = walkThread(r.Post, r.Replies, thread)
	}
	return thread
}

// SortReplies returns the post replies ordered oldest first. Placeholders
// for deleted or blocked replies are left out. The input is not modified.
func SortReplies(replies []*domain.ThreadNode) []*domain.ThreadNode {
	sorted := make([]*domain.ThreadNode, 0, len(replies))
	for _, r := range replies {
		if r != nil && r.Kind == domain.ThreadPost && r.Post != nil {
			sorted = append(sorted, r)
		}
	}
	slices.SortStableFunc(sorted, func(a, b *domain.ThreadNode) int {
		return a.Post.Record.Created().Compare(b.Post.Record.Created())
	})
	return sorted
}

// CountReplies returns the number of post replies in the tree below, direct
// replies included.
func CountReplies(replies []*domain.ThreadNode) int {
	total := 0
	for _, r := range replies {
		if r == nil || r.Kind != domain.ThreadPost || r.Post == nil {
			continue
		}
		total += 1 + CountReplies(r.Replies)
	}
	return total
}
