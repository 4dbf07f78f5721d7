package thread

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackmichael/skyreader/internal/domain"
	"github.com/blackmichael/skyreader/internal/moderation"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func post(uri, did string, minute int, text string) *domain.Post {
	return &domain.Post{
		URI:    uri,
		Author: domain.Actor{DID: did},
		Record: domain.PostRecord{
			Text:      text,
			CreatedAt: base.Add(time.Duration(minute) * time.Minute).Format(time.RFC3339),
		},
	}
}

func node(p *domain.Post, replies ...*domain.ThreadNode) *domain.ThreadNode {
	return &domain.ThreadNode{Kind: domain.ThreadPost, URI: p.URI, Post: p, Replies: replies}
}

// chain returns n replies nested one under the other.
func chain(prefix, did string, n int) *domain.ThreadNode {
	var head *domain.ThreadNode
	for i := n - 1; i >= 0; i-- {
		p := post(fmt.Sprintf("%s/%d", prefix, i), did, i, "reply")
		if head == nil {
			head = node(p)
		} else {
			head = node(p, head)
		}
	}
	return head
}

func TestWalkParents(t *testing.T) {
	assert.Empty(t, WalkParents(nil))

	grand := &domain.ThreadNode{Kind: domain.ThreadPost, Post: post("at://g", "did:plc:a", 0, "")}
	missing := &domain.ThreadNode{Kind: domain.ThreadNotFound, URI: "at://m", Parent: grand}
	parent := &domain.ThreadNode{Kind: domain.ThreadPost, Post: post("at://p", "did:plc:b", 1, ""), Parent: missing}

	parents := WalkParents(parent)
	require.Len(t, parents, 2)
	assert.Equal(t, "at://g", parents[0].URI)
	assert.Equal(t, "at://p", parents[1].URI)
}

func TestWalkParentsIsBounded(t *testing.T) {
	loop := &domain.ThreadNode{Kind: domain.ThreadPost, Post: post("at://loop", "did:plc:a", 0, "")}
	loop.Parent = loop

	assert.Len(t, WalkParents(loop), MaxParentDepth)
}

func TestWalkThreadSameAuthorFlattening(t *testing.T) {
	p := post("at://a/p", "did:plc:a", 0, "P")
	r2 := node(post("at://b/r2", "did:plc:b", 2, "R2"))
	r1 := node(post("at://a/r1", "did:plc:a", 1, "R1"), r2)

	thread := WalkThread(p, []*domain.ThreadNode{r1})
	require.Len(t, thread, 2)
	assert.Same(t, p, thread[0].Post)
	assert.Empty(t, thread[0].Replies)
	assert.Same(t, r1.Post, thread[1].Post)
	assert.Equal(t, []*domain.ThreadNode{r2}, thread[1].Replies)
}

func TestWalkThreadSelfRepliesOldestFirst(t *testing.T) {
	p := post("at://a/p", "did:plc:a", 0, "P")
	later := node(post("at://a/later", "did:plc:a", 9, "later"))
	earlier := node(post("at://a/earlier", "did:plc:a", 3, "earlier"))
	other := node(post("at://b/other", "did:plc:b", 1, "other"))

	thread := WalkThread(p, []*domain.ThreadNode{later, other, earlier})
	require.Len(t, thread, 3)
	assert.Same(t, earlier.Post, thread[1].Post)
	assert.Same(t, later.Post, thread[2].Post)
	assert.Equal(t, []*domain.ThreadNode{other}, thread[0].Replies)
}

func TestWalkThreadEmptyDIDNeverChains(t *testing.T) {
	p := post("at://x/p", "", 0, "")
	r := node(post("at://x/r", "", 1, ""))

	thread := WalkThread(p, []*domain.ThreadNode{r})
	require.Len(t, thread, 1)
	assert.Len(t, thread[0].Replies, 1)
}

func TestWalkThreadDoesNotModifyInput(t *testing.T) {
	p := post("at://a/p", "did:plc:a", 0, "")
	replies := []*domain.ThreadNode{
		node(post("at://b/1", "did:plc:b", 5, "")),
		node(post("at://a/1", "did:plc:a", 1, "")),
	}
	before := append([]*domain.ThreadNode(nil), replies...)

	WalkThread(p, replies)
	SortReplies(replies)
	assert.Equal(t, before, replies)
}

func TestSortRepliesOldestFirst(t *testing.T) {
	replies := []*domain.ThreadNode{
		node(post("at://3", "did:plc:a", 3, "")),
		{Kind: domain.ThreadBlocked, URI: "at://blocked"},
		node(post("at://1", "did:plc:a", 1, "")),
		node(post("at://2", "did:plc:a", 2, "")),
	}

	sorted := SortReplies(replies)
	require.Len(t, sorted, 3)
	assert.Equal(t, "at://1", sorted[0].Post.URI)
	assert.Equal(t, "at://2", sorted[1].Post.URI)
	assert.Equal(t, "at://3", sorted[2].Post.URI)
}

func TestDisclosureThreshold(t *testing.T) {
	// One direct reply with three nested below it: four in total.
	four := []*domain.ThreadNode{chain("at://c", "did:plc:c", 4)}
	// One direct reply with four nested below it: five in total.
	five := []*domain.ThreadNode{chain("at://c", "did:plc:c", 5)}

	require.Equal(t, 4, CountReplies(four))
	require.Equal(t, 5, CountReplies(five))

	assert.True(t, DisclosureOpen(false, four))
	assert.False(t, DisclosureOpen(false, five))
	assert.True(t, DisclosureOpen(true, five), "a lone segment is always open")

	two := []*domain.ThreadNode{
		node(post("at://d/1", "did:plc:d", 1, "")),
		node(post("at://d/2", "did:plc:d", 2, "")),
	}
	assert.False(t, DisclosureOpen(false, two))
}

func TestReconstructCollapsesBusySegment(t *testing.T) {
	p := post("at://a/p", "did:plc:a", 0, "P")
	self := node(post("at://a/r1", "did:plc:a", 1, "R1"))
	busy := chain("at://c", "did:plc:c", 5)

	layout := Reconstruct(node(p, self, busy), nil)
	require.Len(t, layout.Segments, 2)

	first := layout.Segments[0].Replies
	require.NotNil(t, first)
	assert.False(t, first.Open)
	require.NotNil(t, first.Summary)
	assert.Equal(t, "1 reply", first.Summary.DirectLabel)
	assert.Equal(t, 5, first.Summary.Total)
	assert.Equal(t, "5 comments", first.Summary.TotalLabel)

	assert.Nil(t, layout.Segments[1].Replies)
}

func TestReconstructRemembersOpenedDisclosures(t *testing.T) {
	p := post("at://a/p", "did:plc:a", 0, "P")
	root := node(p, node(post("at://a/r1", "did:plc:a", 1, "")), chain("at://c", "did:plc:c", 5))
	memory := NewDisclosureMemory()

	assert.False(t, Reconstruct(root, memory).Segments[0].Replies.Open)

	memory.Set("at://a/p", "at://a/p", true)
	replies := Reconstruct(root, memory).Segments[0].Replies
	assert.True(t, replies.Open)
	assert.NotNil(t, replies.Summary)

	memory.Set("at://a/p", "at://a/p", false)
	assert.False(t, Reconstruct(root, memory).Segments[0].Replies.Open)

	// Memory is per focal post.
	memory.Set("at://a/p", "at://elsewhere", true)
	assert.False(t, Reconstruct(root, memory).Segments[0].Replies.Open)
}

func TestSummaryPreviews(t *testing.T) {
	replies := []*domain.ThreadNode{
		node(post("at://5", "did:plc:e", 5, "fifth")),
		node(post("at://1", "did:plc:a", 1, "first")),
		node(post("at://2", "did:plc:b", 2, "")),
		node(post("at://3", "did:plc:c", 3, "third")),
		node(post("at://4", "did:plc:d", 4, "fourth")),
	}

	s := Summarize(replies)
	assert.Equal(t, 5, s.Direct)
	assert.Equal(t, "5 replies", s.DirectLabel)
	assert.Zero(t, s.Total, "no nested replies")
	require.Len(t, s.Previews, 3)
	assert.Equal(t, "first", s.Previews[0].Text)
	assert.Equal(t, "third", s.Previews[1].Text)
	assert.Equal(t, "fourth", s.Previews[2].Text)
}

func TestLayoutUnindentsLongChains(t *testing.T) {
	p := post("at://a/p", "did:plc:a", 0, "P")
	layout := Reconstruct(node(p, chain("at://c", "did:plc:c", 6)), nil)

	levels := []int{}
	unindented := []bool{}
	for list := layout.Segments[0].Replies; list != nil; list = list.Items[0].Replies {
		levels = append(levels, list.Level)
		unindented = append(unindented, list.Unindented)
	}

	// Levels 1 and 2 always indent; from level 3 a lone reply with a lone
	// child keeps its parent's level.
	assert.Equal(t, []int{1, 2, 3, 3, 3, 3}, levels)
	assert.Equal(t, []bool{false, false, false, true, true, true}, unindented)
}

func TestLayoutCollapsesDeepBusyBranches(t *testing.T) {
	// Four siblings at level 2 exceed DeepMaxSiblings; the one with three
	// nested replies is collapsed on its own.
	deep := chain("at://deep", "did:plc:d", 4)
	siblings := []*domain.ThreadNode{
		deep,
		node(post("at://s/1", "did:plc:s", 10, "")),
		node(post("at://s/2", "did:plc:s", 11, "")),
		node(post("at://s/3", "did:plc:s", 12, "")),
	}
	top := node(post("at://top", "did:plc:t", 0, ""), siblings...)
	p := post("at://a/p", "did:plc:a", -1, "P")

	layout := Reconstruct(node(p, top), nil)
	level1 := layout.Segments[0].Replies
	require.NotNil(t, level1)
	level2 := level1.Items[0].Replies
	require.NotNil(t, level2)
	require.Len(t, level2.Items, 4)

	collapsed := level2.Items[0].Replies
	require.NotNil(t, collapsed)
	assert.Equal(t, "at://deep/0", collapsed.ID)
	assert.False(t, collapsed.Open)
	assert.Equal(t, 3, collapsed.Level)

	assert.Nil(t, level2.Items[1].Replies)
}

func TestReconstructNonPost(t *testing.T) {
	layout := Reconstruct(&domain.ThreadNode{Kind: domain.ThreadNotFound}, nil)
	assert.Empty(t, layout.Segments)
	assert.Empty(t, layout.Parents)
}

type fakeThreads struct {
	node *domain.ThreadNode
	err  error

	depth, parentHeight int
}

func (f *fakeThreads) PostThread(_ context.Context, _ string, depth, parentHeight int) (*domain.ThreadNode, error) {
	f.depth, f.parentHeight = depth, parentHeight
	return f.node, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestServiceLoad(t *testing.T) {
	spam := post("at://spam/1", "did:plc:spam", 2, "buy now")
	spam.Labels = []domain.Label{{Val: moderation.LabelHide}}

	p := post("at://a/p", "did:plc:a", 0, "P")
	root := node(p,
		node(post("at://b/1", "did:plc:b", 1, "hi")),
		node(spam, node(post("at://c/1", "did:plc:c", 3, "under spam"))),
	)
	root.Parent = node(post("at://z/0", "did:plc:z", -5, "parent"))

	fetcher := &fakeThreads{node: root}
	svc := NewService(fetcher, discardLogger())

	layout, err := svc.Load(context.Background(), "at://a/p")
	require.NoError(t, err)
	assert.Equal(t, FetchDepth, fetcher.depth)
	assert.Equal(t, FetchParentHeight, fetcher.parentHeight)
	require.Len(t, layout.Parents, 1)
	assert.Len(t, layout.Segments[0].Replies.Items, 2, "fail-open without a moderator")

	svc.SetModerator(moderation.NewLabelEngine("did:plc:me", nil))
	layout, err = svc.Load(context.Background(), "at://a/p")
	require.NoError(t, err)
	assert.Len(t, layout.Segments[0].Replies.Items, 1)
	assert.Equal(t, 1, layout.Filtered)
	assert.Len(t, root.Replies, 2, "the response is not modified")
	assert.Nil(t, layout.Warning)
}

func TestServiceLoadWarnsOnTakenDownFocalPost(t *testing.T) {
	p := post("at://a/p", "did:plc:a", 0, "P")
	p.Labels = []domain.Label{{Val: moderation.LabelTakedown}}
	muted := post("at://m/1", "did:plc:m", 0, "muted focal")
	muted.Author.Viewer.Muted = true

	svc := NewService(&fakeThreads{node: node(p)}, discardLogger())
	svc.SetModerator(moderation.NewLabelEngine("did:plc:me", nil))

	layout, err := svc.Load(context.Background(), "at://a/p")
	require.NoError(t, err)
	require.Len(t, layout.Segments, 1, "the focal post is still shown")
	require.NotNil(t, layout.Warning)
	assert.Equal(t, moderation.LabelTakedown, layout.Warning.Label)

	svc = NewService(&fakeThreads{node: node(muted)}, discardLogger())
	svc.SetModerator(moderation.NewLabelEngine("did:plc:me", nil))
	layout, err = svc.Load(context.Background(), "at://m/1")
	require.NoError(t, err)
	assert.Nil(t, layout.Warning, "muting only hides posts from lists")
}

func TestServiceLoadErrors(t *testing.T) {
	svc := NewService(&fakeThreads{node: &domain.ThreadNode{Kind: domain.ThreadNotFound}}, discardLogger())
	_, err := svc.Load(context.Background(), "at://x")
	assert.ErrorIs(t, err, ErrNotFound)

	svc = NewService(&fakeThreads{node: &domain.ThreadNode{Kind: domain.ThreadBlocked}}, discardLogger())
	_, err = svc.Load(context.Background(), "at://x")
	assert.ErrorIs(t, err, ErrBlocked)

	boom := errors.New("boom")
	svc = NewService(&fakeThreads{err: boom}, discardLogger())
	_, err = svc.Load(context.Background(), "at://x")
	assert.ErrorIs(t, err, boom)
}
