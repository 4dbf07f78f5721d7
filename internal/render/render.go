// Package render draws feeds, threads and notifications for the terminal.
package render

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/blackmichael/skyreader/internal/domain"
	"github.com/blackmichael/skyreader/internal/feed"
	"github.com/blackmichael/skyreader/internal/postmeta"
	"github.com/blackmichael/skyreader/internal/thread"
)

var (
	bold    = color.New(color.Bold)
	faint   = color.New(color.Faint)
	handle  = color.New(color.FgCyan)
	repost  = color.New(color.FgGreen)
	warning = color.New(color.FgYellow)
	failure = color.New(color.FgRed)
)

const indentUnit = "  "

// Renderer writes human-readable views to w.
type Renderer struct {
	w   io.Writer
	now func() time.Time
}

// New returns a renderer writing to w.
func New(w io.Writer) *Renderer {
	return &Renderer{w: w, now: time.Now}
}

// Feed renders one feed page.
func (r *Renderer) Feed(page *feed.Page) {
	for _, item := range page.Items {
		switch item.Kind {
		case feed.ItemSubFeed:
			repost.Fprintf(r.w, "↻ %d reposts\n", len(item.SubFeed.Posts))
			for i := range item.SubFeed.Posts {
				r.entry(&item.SubFeed.Posts[i], nil, indentUnit)
			}
		default:
			r.entry(item.Entry, item.Chrome, "")
		}
		fmt.Fprintln(r.w)
	}
	if page.Filtered > 0 {
		faint.Fprintf(r.w, "%s hidden by moderation\n", humanize.Comma(int64(page.Filtered)))
	}
	if page.Cursor != "" {
		faint.Fprintf(r.w, "more: --cursor %s\n", page.Cursor)
	}
}

func (r *Renderer) entry(e *domain.FeedEntry, chrome *feed.Chrome, indent string) {
	if e == nil || e.Post == nil {
		return
	}
	if e.Reason.IsRepost() && e.Reason.By != nil {
		repost.Fprintf(r.w, "%s↻ reposted by %s\n", indent, e.Reason.By.DisplayHandle())
	}
	if e.Reason != nil && e.Reason.Kind == domain.ReasonPin {
		warning.Fprintf(r.w, "%s📌 pinned\n", indent)
	}
	if chrome != nil {
		if chrome.ShowRoot {
			if root := e.Root(); root != nil && root.Post != nil {
				r.post(root.Post, indent)
				if chrome.ShowViewThread {
					faint.Fprintf(r.w, "%s⋮ %s. View full thread\n", indent, pluralReplies(chrome.RootReplyCount))
				}
			}
		}
		if chrome.ShowParent {
			if parent := e.Parent(); parent != nil && parent.Post != nil {
				r.post(parent.Post, indent)
			}
		}
	}
	r.post(e.Post, indent)
}

func (r *Renderer) post(p *domain.Post, indent string) {
	name := p.Author.DisplayName
	if name == "" {
		name = p.Author.DisplayHandle()
	}
	fmt.Fprint(r.w, indent)
	bold.Fprint(r.w, name)
	fmt.Fprint(r.w, " ")
	handle.Fprintf(r.w, "@%s", p.Author.DisplayHandle())
	if created := p.Record.Created(); !created.IsZero() {
		faint.Fprintf(r.w, " · %s", humanize.RelTime(created, r.now(), "ago", "from now"))
	}
	fmt.Fprintln(r.w)

	for _, line := range strings.Split(p.Record.Text, "\n") {
		fmt.Fprintf(r.w, "%s%s\n", indent, line)
	}
	if q := p.Embed.QuotedURI(); q != "" {
		faint.Fprintf(r.w, "%s❝ %s\n", indent, q)
	}
	faint.Fprintf(r.w, "%s💬 %s  ↻ %s  ♥ %s\n", indent,
		humanize.Comma(int64(p.ReplyCount)),
		humanize.Comma(int64(p.RepostCount)),
		humanize.Comma(int64(p.LikeCount)),
	)
}

// Thread renders a reconstructed thread: ancestors, then each segment of the
// focal author's chain with its replies.
func (r *Renderer) Thread(layout *thread.Layout) {
	for _, p := range layout.Parents {
		r.post(p, "")
		faint.Fprintln(r.w, "│")
	}
	if layout.Warning != nil {
		warning.Fprintf(r.w, "⚠ moderated: %s\n", layout.Warning.Name())
	}
	for i, seg := range layout.Segments {
		if i > 0 {
			faint.Fprintln(r.w, "│")
		}
		r.post(seg.Post, "")
		r.replies(seg.Replies, 1)
	}
	if layout.Filtered > 0 {
		faint.Fprintf(r.w, "%s hidden by moderation\n", pluralReplies(layout.Filtered))
	}
}

func (r *Renderer) replies(list *thread.Replies, depth int) {
	if list == nil {
		return
	}
	indent := strings.Repeat(indentUnit, depth)
	if !list.Open {
		s := list.Summary
		if s == nil {
			return
		}
		label := s.DirectLabel
		if s.TotalLabel != "" {
			label += ", " + s.TotalLabel
		}
		warning.Fprintf(r.w, "%s▸ %s\n", indent, label)
		for _, p := range s.Previews {
			faint.Fprintf(r.w, "%s  @%s: %s\n", indent, p.Author.DisplayHandle(), firstLine(p.Text))
		}
		return
	}
	for _, reply := range list.Items {
		r.post(reply.Post, indent)
		next := depth + 1
		if reply.Replies != nil && reply.Replies.Unindented {
			next = depth
		}
		r.replies(reply.Replies, next)
	}
}

// Notifications renders one page of notifications.
func (r *Renderer) Notifications(page *feed.NotificationsPage) {
	for _, n := range page.Items {
		marker := " "
		if !n.IsRead {
			marker = "•"
		}
		fmt.Fprintf(r.w, "%s ", marker)
		bold.Fprint(r.w, n.Author.DisplayHandle())
		fmt.Fprintf(r.w, " %s", describeReason(n.Reason))
		if t, err := time.Parse(time.RFC3339, n.IndexedAt); err == nil {
			faint.Fprintf(r.w, " · %s", humanize.RelTime(t, r.now(), "ago", "from now"))
		}
		fmt.Fprintln(r.w)

		switch {
		case n.Subject != nil:
			faint.Fprintf(r.w, "  %s\n", firstLine(n.Subject.Record.Text))
		case n.Record.Text != "":
			fmt.Fprintf(r.w, "  %s\n", firstLine(n.Record.Text))
		}
	}
	if page.Cursor != "" {
		faint.Fprintf(r.w, "more: --cursor %s\n", page.Cursor)
	}
}

func describeReason(reason string) string {
	switch reason {
	case "like":
		return "liked your post"
	case "repost":
		return "reposted your post"
	case "follow":
		return "followed you"
	case "mention":
		return "mentioned you"
	case "reply":
		return "replied to you"
	case "quote":
		return "quoted your post"
	default:
		return reason
	}
}

// Meta renders a post's engagement overlay on one line.
func (r *Renderer) Meta(uri string, m postmeta.Meta) {
	likeMark, repostMark := "♡", "↻"
	if m.Liked() {
		likeMark = failure.Sprint("♥")
	}
	if m.Reposted() {
		repostMark = repost.Sprint("↻")
	}
	fmt.Fprintf(r.w, "%s %s  %s %s  %s\n",
		likeMark, humanize.Comma(int64(m.LikeCount)),
		repostMark, humanize.Comma(int64(m.RepostCount)),
		faint.Sprint(uri),
	)
}

// Notify implements postmeta.Notifier, printing failures in red.
func (r *Renderer) Notify(_ context.Context, n postmeta.Notice) {
	failure.Fprintf(r.w, "✗ %s\n", n.Message)
	if n.Err != nil {
		faint.Fprintf(r.w, "  %v\n", n.Err)
	}
}

func pluralReplies(n int) string {
	if n == 1 {
		return "1 reply"
	}
	return humanize.Comma(int64(n)) + " replies"
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	const maxPreview = 80
	if r := []rune(line); len(r) > maxPreview {
		return string(r[:maxPreview]) + "…"
	}
	return line
}
