package thread

import (
	"github.com/dustin/go-humanize/english"

	"github.com/blackmichael/skyreader/internal/domain"
	"github.com/blackmichael/skyreader/internal/moderation"
)

// Layout thresholds.
const (
	// OpenTotalLimit is the total reply count under a lone direct reply below
	// which a segment's replies are shown expanded.
	OpenTotalLimit = 5

	// MaxSiblings is the sibling count at level 1 above which busy branches
	// are collapsed on their own.
	MaxSiblings = 30

	// DeepMaxSiblings is MaxSiblings for levels beyond 1.
	DeepMaxSiblings = 3

	// MinInnerReplies is the nested reply count a branch must exceed to be
	// collapsed on its own.
	MinInnerReplies = 2

	// PreviewLimit is the number of reply snippets in a collapsed summary.
	PreviewLimit = 3
)

// Layout is a reconstructed thread ready for display.
type Layout struct {
	// Parents are the ancestors of the focal post, oldest first.
	Parents  []*domain.Post  `json:"parents"`
	Segments []SegmentLayout `json:"segments"`

	// Filtered counts replies hidden by moderation.
	Filtered int `json:"filtered,omitempty"`

	// Warning is set when moderation would hide the focal post if it were
	// opened on its own. The post is still shown.
	Warning *moderation.Cause `json:"warning,omitempty"`
}

// SegmentLayout is a segment with its replies laid out.
type SegmentLayout struct {
	Post    *domain.Post `json:"post"`
	Replies *Replies     `json:"replies,omitempty"`
}

// Replies is one list of sibling replies.
type Replies struct {
	// ID is the uri of the post the replies answer.
	ID    string `json:"id"`
	Level int    `json:"level"`

	// Open is false when the list is shown behind a disclosure.
	Open bool `json:"open"`

	// Summary describes a list that is collapsed by default. It is kept when
	// the reader opened the list earlier.
	Summary *Summary `json:"summary,omitempty"`

	// Unindented lists continue a one-to-one chain at the parent's level.
	Unindented bool `json:"unindented,omitempty"`

	Items []Reply `json:"items"`
}

// Reply is a single reply and whatever answers it.
type Reply struct {
	Post    *domain.Post `json:"post"`
	Replies *Replies     `json:"replies,omitempty"`
}

// Summary is what a collapsed list shows in place of its replies.
type Summary struct {
	Direct      int    `json:"direct"`
	DirectLabel string `json:"directLabel"`

	// Total and TotalLabel are set only when nested replies exist.
	Total      int    `json:"total,omitempty"`
	TotalLabel string `json:"totalLabel,omitempty"`

	Previews []Preview `json:"previews,omitempty"`
}

// Preview is a snippet of one direct reply.
type Preview struct {
	Author domain.Actor `json:"author"`
	Text   string       `json:"text"`
}

// DisclosureOpen reports whether a segment's replies are expanded by default:
// always when the thread has a single segment, otherwise only for a lone
// direct reply with fewer than OpenTotalLimit replies in total.
func DisclosureOpen(onlyOneSegment bool, replies []*domain.ThreadNode) bool {
	if onlyOneSegment {
		return true
	}
	direct := len(SortReplies(replies))
	return direct == 1 && CountReplies(replies) < OpenTotalLimit
}

// Summarize describes a list of replies for a collapsed disclosure.
func Summarize(replies []*domain.ThreadNode) *Summary {
	sorted := SortReplies(replies)
	s := &Summary{
		Direct:      len(sorted),
		DirectLabel: english.Plural(len(sorted), "reply", "replies"),
	}
	if total := CountReplies(sorted); total != s.Direct {
		s.Total = total
		s.TotalLabel = english.Plural(total, "comment", "comments")
	}
	for _, r := range sorted {
		if len(s.Previews) == PreviewLimit {
			break
		}
		if r.Post.Record.Text == "" {
			continue
		}
		s.Previews = append(s.Previews, Preview{Author: r.Post.Author, Text: r.Post.Record.Text})
	}
	return s
}

// Reconstruct builds the layout of a thread response rooted at the focal
// node. memory may be nil.
func Reconstruct(node *domain.ThreadNode, memory *DisclosureMemory) *Layout {
	layout := &Layout{Segments: []SegmentLayout{}}
	if node == nil || node.Kind != domain.ThreadPost || node.Post == nil {
		return layout
	}

	layout.Parents = WalkParents(node.Parent)

	focal := node.Post.URI
	segments := WalkThread(node.Post, node.Replies)
	for _, seg := range segments {
		open := DisclosureOpen(len(segments) == 1, seg.Replies)
		layout.Segments = append(layout.Segments, SegmentLayout{
			Post:    seg.Post,
			Replies: layoutReplies(seg.Post.URI, focal, seg.Replies, 1, open, false, memory),
		})
	}
	return layout
}

func layoutReplies(id, focal string, replies []*domain.ThreadNode, level int, open, unindented bool, memory *DisclosureMemory) *Replies {
	sorted := SortReplies(replies)
	if len(sorted) == 0 {
		return nil
	}

	list := &Replies{
		ID:         id,
		Level:      level,
		Open:       open,
		Unindented: unindented,
		Items:      make([]Reply, 0, len(sorted)),
	}
	if !open {
		list.Summary = Summarize(sorted)
		list.Open = memory.IsOpen(id, focal)
	}

	maxSiblings := MaxSiblings
	if level > 1 {
		maxSiblings = DeepMaxSiblings
	}

	for _, r := range sorted {
		inner := SortReplies(r.Replies)
		chain := level > 2 && len(inner) == 1 && len(sorted) == 1
		next := level + 1
		if chain {
			next = level
		}

		var nested *Replies
		if len(sorted) > maxSiblings && CountReplies(inner) > MinInnerReplies {
			nested = layoutReplies(r.Post.URI, focal, inner, next, false, false, memory)
		} else {
			nested = layoutReplies(r.Post.URI, focal, inner, next, true, chain, memory)
		}
		list.Items = append(list.Items, Reply{Post: r.Post, Replies: nested})
	}
	return list
}
