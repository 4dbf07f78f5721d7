package bluesky

import (
	"context"
	"fmt"
	"strconv"

	"github.com/blackmichael/skyreader/internal/domain"
)

const (
	feedPageSize         = 30
	notificationPageSize = 40

	// MaxPostsPerCall is the getPosts limit.
	MaxPostsPerCall = 25
)

type feedResponse struct {
	Feed   []domain.FeedEntry `json:"feed"`
	Cursor string             `json:"cursor"`
}

func (r feedResponse) page() *domain.FeedPage {
	return &domain.FeedPage{Entries: r.Feed, Cursor: r.Cursor}
}

func pageQuery(cursor string, limit int) map[string]string {
	q := map[string]string{"limit": strconv.Itoa(limit)}
	if cursor != "" {
		q["cursor"] = cursor
	}
	return q
}

// Timeline returns a page of the signed-in account's following timeline.
func (c *Client) Timeline(ctx context.Context, cursor string) (*domain.FeedPage, error) {
	var resp feedResponse
	err := c.do(ctx, call{
		nsid:   "app.bsky.feed.getTimeline",
		query:  pageQuery(cursor, feedPageSize),
		result: &resp,
		auth:   true,
	})
	if err != nil {
		return nil, err
	}
	return resp.page(), nil
}

// AuthorFeed returns a page of an actor's posts.
func (c *Client) AuthorFeed(ctx context.Context, actor string, filter domain.AuthorFeedFilter, includePins bool, cursor string) (*domain.FeedPage, error) {
	q := pageQuery(cursor, feedPageSize)
	q["actor"] = actor
	if filter != "" {
		q["filter"] = string(filter)
	}
	if includePins {
		q["includePins"] = "true"
	}

	var resp feedResponse
	if err := c.do(ctx, call{nsid: "app.bsky.feed.getAuthorFeed", query: q, result: &resp}); err != nil {
		return nil, err
	}
	return resp.page(), nil
}

// CustomFeed returns a page of a feed generator.
func (c *Client) CustomFeed(ctx context.Context, feedURI, cursor string) (*domain.FeedPage, error) {
	q := pageQuery(cursor, feedPageSize)
	q["feed"] = feedURI

	var resp feedResponse
	if err := c.do(ctx, call{nsid: "app.bsky.feed.getFeed", query: q, result: &resp}); err != nil {
		return nil, err
	}
	return resp.page(), nil
}

// ListFeed returns a page of posts by the members of a list.
func (c *Client) ListFeed(ctx context.Context, listURI, cursor string) (*domain.FeedPage, error) {
	q := pageQuery(cursor, feedPageSize)
	q["list"] = listURI

	var resp feedResponse
	if err := c.do(ctx, call{nsid: "app.bsky.feed.getListFeed", query: q, result: &resp}); err != nil {
		return nil, err
	}
	return resp.page(), nil
}

// SearchPosts returns a page of posts matching query, newest first.
func (c *Client) SearchPosts(ctx context.Context, query, cursor string) (*domain.FeedPage, error) {
	q := pageQuery(cursor, feedPageSize)
	q["q"] = query
	q["sort"] = "latest"

	var resp struct {
		Posts  []domain.Post `json:"posts"`
		Cursor string        `json:"cursor"`
	}
	if err := c.do(ctx, call{nsid: "app.bsky.feed.searchPosts", query: q, result: &resp}); err != nil {
		return nil, err
	}
	return &domain.FeedPage{Entries: domain.EntriesFromPosts(resp.Posts), Cursor: resp.Cursor}, nil
}

// PostThread returns the thread around uri.
func (c *Client) PostThread(ctx context.Context, uri string, depth, parentHeight int) (*domain.ThreadNode, error) {
	var resp struct {
		Thread *domain.ThreadNode `json:"thread"`
	}
	err := c.do(ctx, call{
		nsid: "app.bsky.feed.getPostThread",
		query: map[string]string{
			"uri":          uri,
			"depth":        strconv.Itoa(depth),
			"parentHeight": strconv.Itoa(parentHeight),
		},
		result: &resp,
	})
	if err != nil {
		return nil, err
	}
	return resp.Thread, nil
}

// Posts hydrates up to MaxPostsPerCall posts.
func (c *Client) Posts(ctx context.Context, uris []string) ([]domain.Post, error) {
	if len(uris) == 0 {
		return nil, nil
	}
	if len(uris) > MaxPostsPerCall {
		return nil, fmt.Errorf("getPosts: %d uris exceeds the limit of %d", len(uris), MaxPostsPerCall)
	}

	var resp struct {
		Posts []domain.Post `json:"posts"`
	}
	err := c.do(ctx, call{
		nsid:   "app.bsky.feed.getPosts",
		multi:  map[string][]string{"uris": uris},
		result: &resp,
	})
	if err != nil {
		return nil, err
	}
	return resp.Posts, nil
}

// ListNotifications returns a page of the signed-in account's notifications.
func (c *Client) ListNotifications(ctx context.Context, cursor string) (*domain.NotificationPage, error) {
	var resp struct {
		Notifications []domain.Notification `json:"notifications"`
		Cursor        string                `json:"cursor"`
	}
	err := c.do(ctx, call{
		nsid:   "app.bsky.notification.listNotifications",
		query:  pageQuery(cursor, notificationPageSize),
		result: &resp,
		auth:   true,
	})
	if err != nil {
		return nil, err
	}
	return &domain.NotificationPage{Notifications: resp.Notifications, Cursor: resp.Cursor}, nil
}
