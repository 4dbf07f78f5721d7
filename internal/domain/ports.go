package domain

import (
	"context"
	"time"
)

// AuthorFeedFilter selects which posts getAuthorFeed returns.
type AuthorFeedFilter string

const (
	FilterPostsAndAuthorThreads AuthorFeedFilter = "posts_and_author_threads"
	FilterPostsWithReplies      AuthorFeedFilter = "posts_with_replies"
	FilterPostsWithMedia        AuthorFeedFilter = "posts_with_media"
)

// FeedFetcher retrieves feed pages from the AppView. An empty cursor requests
// the first page.
type FeedFetcher interface {
	Timeline(ctx context.Context, cursor string) (*FeedPage, error)

	AuthorFeed(ctx context.Context, actor string, filter AuthorFeedFilter, includePins bool, cursor string) (*FeedPage, error)

	// CustomFeed returns a page of a feed generator by its AT-URI.
	CustomFeed(ctx context.Context, feedURI, cursor string) (*FeedPage, error)

	ListFeed(ctx context.Context, listURI, cursor string) (*FeedPage, error)

	// SearchPosts wraps the matching posts as entries without reasons.
	SearchPosts(ctx context.Context, query, cursor string) (*FeedPage, error)
}

// ThreadFetcher retrieves a post thread.
type ThreadFetcher interface {
	PostThread(ctx context.Context, uri string, depth, parentHeight int) (*ThreadNode, error)
}

// PostFetcher hydrates posts by AT-URI. Implementations accept at most 25
// uris per call.
type PostFetcher interface {
	Posts(ctx context.Context, uris []string) ([]Post, error)
}

// NotificationFetcher lists notifications for the signed-in account.
type NotificationFetcher interface {
	ListNotifications(ctx context.Context, cursor string) (*NotificationPage, error)
}

// PreferencesFetcher loads moderation preferences for the signed-in account.
type PreferencesFetcher interface {
	Preferences(ctx context.Context) (*Preferences, error)
}

// Mutator creates and deletes like and repost records. Create calls return
// the AT-URI of the new record.
type Mutator interface {
	Like(ctx context.Context, uri, cid string) (string, error)
	DeleteLike(ctx context.Context, recordURI string) error
	Repost(ctx context.Context, uri, cid string) (string, error)
	DeleteRepost(ctx context.Context, recordURI string) error
}

// CursorRepository defines persistence operations for firehose cursors.
type CursorRepository interface {
	// GetCursor retrieves the last-processed firehose cursor for the given
	// service name. Returns 0 if no cursor has been saved.
	GetCursor(ctx context.Context, service string) (int64, error)

	// UpdateCursor persists the firehose cursor so we can resume on restart.
	UpdateCursor(ctx context.Context, service string, cursor int64) error
}

// Session is an authenticated PDS session.
type Session struct {
	DID        string
	Handle     string
	PDS        string
	AccessJwt  string
	RefreshJwt string
	UpdatedAt  time.Time
}

// SessionRepository persists sessions so they survive restarts.
type SessionRepository interface {
	// SaveSession upserts a session keyed by DID.
	SaveSession(ctx context.Context, session *Session) error

	// LatestSession returns the most recently saved session, or nil if none.
	LatestSession(ctx context.Context) (*Session, error)

	DeleteSession(ctx context.Context, did string) error
}
