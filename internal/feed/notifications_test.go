package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackmichael/skyreader/internal/domain"
)

type fakeNotifications struct {
	page *domain.NotificationPage
}

func (f *fakeNotifications) ListNotifications(context.Context, string) (*domain.NotificationPage, error) {
	return f.page, nil
}

type fakePosts struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (f *fakePosts) Posts(_ context.Context, uris []string) ([]domain.Post, error) {
	f.mu.Lock()
	f.calls = append(f.calls, uris)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	posts := make([]domain.Post, 0, len(uris))
	for _, uri := range uris {
		posts = append(posts, domain.Post{URI: uri, Record: domain.PostRecord{Text: "subject " + uri}})
	}
	return posts, nil
}

func notification(reason, subject string) domain.Notification {
	return domain.Notification{
		URI:           "at://n/" + reason + subject,
		Reason:        reason,
		ReasonSubject: subject,
	}
}

func TestNotificationsHydrateSubjects(t *testing.T) {
	list := &fakeNotifications{page: &domain.NotificationPage{
		Notifications: []domain.Notification{
			notification("like", "at://me/1"),
			notification("repost", "at://me/1"),
			notification("reply", "at://me/2"),
			notification("follow", ""),
		},
		Cursor: "c1",
	}}
	posts := &fakePosts{}
	svc := NewNotificationService(list, posts, discardLogger())

	p, err := svc.LoadPage(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, p.Items, 4)
	assert.Equal(t, "c1", p.Cursor)

	require.Len(t, posts.calls, 1)
	assert.Equal(t, []string{"at://me/1"}, posts.calls[0], "replies and duplicates are not fetched")

	require.NotNil(t, p.Items[0].Subject)
	assert.Equal(t, "subject at://me/1", p.Items[0].Subject.Record.Text)
	assert.Same(t, p.Items[0].Subject, p.Items[1].Subject)
	assert.Nil(t, p.Items[2].Subject)
	assert.Nil(t, p.Items[3].Subject)

	// Cached subjects are not fetched again on the next page.
	_, err = svc.LoadPage(context.Background(), "c1")
	require.NoError(t, err)
	assert.Len(t, posts.calls, 1)

	// Refreshing from the top starts over.
	_, err = svc.LoadPage(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, posts.calls, 2)
}

func TestNotificationsBatchesSubjects(t *testing.T) {
	var notifs []domain.Notification
	for i := range 60 {
		notifs = append(notifs, notification("like", fmt.Sprintf("at://me/%d", i)))
	}
	posts := &fakePosts{}
	svc := NewNotificationService(&fakeNotifications{page: &domain.NotificationPage{Notifications: notifs}}, posts, discardLogger())

	p, err := svc.LoadPage(context.Background(), "")
	require.NoError(t, err)

	sizes := make([]int, 0, len(posts.calls))
	for _, c := range posts.calls {
		sizes = append(sizes, len(c))
	}
	assert.ElementsMatch(t, []int{25, 25, 10}, sizes)
	for _, it := range p.Items {
		assert.NotNil(t, it.Subject)
	}
}

func TestNotificationsHydrationFailureIsNotFatal(t *testing.T) {
	list := &fakeNotifications{page: &domain.NotificationPage{
		Notifications: []domain.Notification{notification("like", "at://me/1")},
	}}
	svc := NewNotificationService(list, &fakePosts{err: errors.New("unavailable")}, discardLogger())

	p, err := svc.LoadPage(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, p.Items, 1)
	assert.Nil(t, p.Items[0].Subject)
}
