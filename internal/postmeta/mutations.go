package postmeta

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/blackmichael/skyreader/internal/domain"
)

var (
	// ErrPending is returned when a like or repost on the post is already in flight.
	ErrPending = errors.New("mutation already pending")

	// ErrNotCommitted is returned when undoing a like or repost the viewer
	// has no record for.
	ErrNotCommitted = errors.New("no record to delete")
)

// Notice is a user-facing message about a failed mutation.
type Notice struct {
	Message string
	URI     string
	Err     error
}

// Notifier shows notices to the user.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// LogNotifier writes notices to a logger.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify implements Notifier.
func (l LogNotifier) Notify(ctx context.Context, n Notice) {
	l.Logger.WarnContext(ctx, n.Message, "uri", n.URI, "error", n.Err)
}

// Recorder receives mutation outcomes.
type Recorder interface {
	Mutation(kind string, ok bool)
}

// Target identifies the post to mutate. Current is the overlay to seed from
// when no one is tracking the post yet, usually FromPost of a fresh view.
type Target struct {
	URI     string
	CID     string
	Current Meta
}

// Mutations runs optimistic likes and reposts against the store.
type Mutations struct {
	store    *Store
	api      domain.Mutator
	notifier Notifier
	metrics  Recorder
}

// NewMutations creates a mutation runner. metrics may be nil.
func NewMutations(store *Store, api domain.Mutator, notifier Notifier, metrics Recorder) *Mutations {
	return &Mutations{store: store, api: api, notifier: notifier, metrics: metrics}
}

// field binds one record type (like or repost) to its overlay fields and API.
type field struct {
	name   string
	state  func(*Meta) *RecordState
	count  func(*Meta) *int
	create func(ctx context.Context, uri, cid string) (string, error)
	remove func(ctx context.Context, recordURI string) error
}

func (m *Mutations) like() field {
	return field{
		name:   "like",
		state:  func(x *Meta) *RecordState { return &x.Like },
		count:  func(x *Meta) *int { return &x.LikeCount },
		create: m.api.Like,
		remove: m.api.DeleteLike,
	}
}

func (m *Mutations) repost() field {
	return field{
		name:   "repost",
		state:  func(x *Meta) *RecordState { return &x.Repost },
		count:  func(x *Meta) *int { return &x.RepostCount },
		create: m.api.Repost,
		remove: m.api.DeleteRepost,
	}
}

// Like likes the post. Liking a liked post is a no-op.
func (m *Mutations) Like(ctx context.Context, t Target) (Meta, error) {
	return m.create(ctx, t, m.like())
}

// Unlike removes the viewer's like.
func (m *Mutations) Unlike(ctx context.Context, t Target) (Meta, error) {
	return m.remove(ctx, t, m.like())
}

// Repost reposts the post. Reposting a reposted post is a no-op.
func (m *Mutations) Repost(ctx context.Context, t Target) (Meta, error) {
	return m.create(ctx, t, m.repost())
}

// Unrepost removes the viewer's repost.
func (m *Mutations) Unrepost(ctx context.Context, t Target) (Meta, error) {
	return m.remove(ctx, t, m.repost())
}

// ToggleLike likes the post, or unlikes it when the like is committed.
func (m *Mutations) ToggleLike(ctx context.Context, t Target) (Meta, error) {
	return m.toggle(ctx, t, m.like())
}

// ToggleRepost reposts the post, or removes the repost when it is committed.
func (m *Mutations) ToggleRepost(ctx context.Context, t Target) (Meta, error) {
	return m.toggle(ctx, t, m.repost())
}

func (m *Mutations) toggle(ctx context.Context, t Target, f field) (Meta, error) {
	sub := m.store.Subscribe(t.URI, t.Current)
	defer sub.Close()

	if cur := sub.Meta(); f.state(&cur).IsCommitted() {
		return m.remove(ctx, t, f)
	}
	return m.create(ctx, t, f)
}

func (m *Mutations) create(ctx context.Context, t Target, f field) (Meta, error) {
	sub := m.store.Subscribe(t.URI, t.Current)
	defer sub.Close()

	snapshot, err := m.store.Modify(t.URI, func(cur Meta) (Meta, error) {
		switch st := f.state(&cur); {
		case st.IsPending():
			return cur, ErrPending
		case st.IsCommitted():
			return cur, errNoop
		}
		*f.count(&cur)++
		*f.state(&cur) = Creating()
		return cur, nil
	})
	if errors.Is(err, errNoop) {
		return sub.Meta(), nil
	}
	if err != nil {
		return sub.Meta(), err
	}

	recordURI, err := f.create(ctx, t.URI, t.CID)
	if err != nil {
		return m.rollback(ctx, sub, *f.state(&snapshot), 1, f, f.name, err)
	}

	m.store.Modify(t.URI, func(cur Meta) (Meta, error) {
		*f.state(&cur) = Committed(recordURI)
		return cur, nil
	})
	m.record(f.name, true)
	return sub.Meta(), nil
}

func (m *Mutations) remove(ctx context.Context, t Target, f field) (Meta, error) {
	sub := m.store.Subscribe(t.URI, t.Current)
	defer sub.Close()

	delta := 0
	snapshot, err := m.store.Modify(t.URI, func(cur Meta) (Meta, error) {
		switch st := f.state(&cur); {
		case st.IsPending():
			return cur, ErrPending
		case st.IsIdle():
			return cur, ErrNotCommitted
		}
		if *f.count(&cur) > 0 {
			*f.count(&cur)--
			delta = -1
		}
		*f.state(&cur) = Deleting()
		return cur, nil
	})
	if err != nil {
		return sub.Meta(), err
	}

	if err := f.remove(ctx, f.state(&snapshot).URI()); err != nil {
		return m.rollback(ctx, sub, *f.state(&snapshot), delta, f, "un"+f.name, err)
	}

	m.store.Modify(t.URI, func(cur Meta) (Meta, error) {
		*f.state(&cur) = Idle()
		return cur, nil
	})
	m.record("un"+f.name, true)
	return sub.Meta(), nil
}

// rollback undoes the optimistic delta on the field's count and restores its
// record state. Changes made by others in the meantime, such as live
// engagement events, are kept.
func (m *Mutations) rollback(ctx context.Context, sub *Subscription, prev RecordState, delta int, f field, kind string, cause error) (Meta, error) {
	m.store.Modify(sub.URI(), func(cur Meta) (Meta, error) {
		*f.count(&cur) = max(0, *f.count(&cur)-delta)
		*f.state(&cur) = prev
		return cur, nil
	})
	m.record(kind, false)

	err := fmt.Errorf("%s %s: %w", kind, sub.URI(), cause)
	if m.notifier != nil {
		m.notifier.Notify(ctx, Notice{
			Message: fmt.Sprintf("Unable to %s post", kind),
			URI:     sub.URI(),
			Err:     cause,
		})
	}
	return sub.Meta(), err
}

func (m *Mutations) record(kind string, ok bool) {
	if m.metrics != nil {
		m.metrics.Mutation(kind, ok)
	}
}

var errNoop = errors.New("noop")
