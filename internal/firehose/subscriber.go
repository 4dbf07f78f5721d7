// Package firehose keeps Post-Meta overlays live by following like and repost
// creations on the Jetstream firehose.
package firehose

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/blackmichael/skyreader/internal/domain"
	"github.com/blackmichael/skyreader/internal/postmeta"
)

const (
	cursorServiceName  = "jetstream"
	cursorSaveInterval = 5 * time.Second
	reconnectDelay     = 5 * time.Second
	statsInterval      = 30 * time.Second
)

// wantedCollections is the set of collection NSIDs requested from Jetstream.
var wantedCollections = []string{
	collectionLike,
	collectionRepost,
}

// Tracker is the part of postmeta.Store the subscriber writes to.
type Tracker interface {
	Modify(uri string, fn func(postmeta.Meta) (postmeta.Meta, error)) (postmeta.Meta, error)
}

// Recorder observes applied engagement events.
type Recorder interface {
	EngagementApplied(collection string)
}

type nopRecorder struct{}

func (nopRecorder) EngagementApplied(string) {}

// Subscriber connects to the Jetstream firehose and applies like and repost
// creations to tracked posts.
type Subscriber struct {
	url     string
	tracker Tracker
	cursors domain.CursorRepository
	viewer  func() string
	logger  *slog.Logger
	metrics Recorder
}

// NewSubscriber creates a new firehose subscriber. viewer returns the DID of
// the signed-in account, whose own events are already counted by optimistic
// mutations. cursors may be nil, in which case every connection starts live.
func NewSubscriber(
	firehoseURL string,
	tracker Tracker,
	cursors domain.CursorRepository,
	viewer func() string,
	logger *slog.Logger,
	metrics Recorder,
) *Subscriber {
	if viewer == nil {
		viewer = func() string { return "" }
	}
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Subscriber{
		url:     firehoseURL,
		tracker: tracker,
		cursors: cursors,
		viewer:  viewer,
		logger:  logger,
		metrics: metrics,
	}
}

// Start connects to the firehose and processes events until the context is
// cancelled. It automatically reconnects on transient errors.
func (s *Subscriber) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := s.subscribe(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logger.Error("firehose connection error, reconnecting", "error", err)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(reconnectDelay):
				}
			}
		}
	}
}

func (s *Subscriber) buildURL(cursor int64) (string, error) {
	u, err := url.Parse(s.url)
	if err != nil {
		return "", fmt.Errorf("parse firehose url: %w", err)
	}
	q := u.Query()
	for _, c := range wantedCollections {
		q.Add("wantedCollections", c)
	}
	if cursor > 0 {
		q.Set("cursor", strconv.FormatInt(cursor, 10))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *Subscriber) loadCursor(ctx context.Context) int64 {
	if s.cursors == nil {
		return 0
	}
	cursor, err := s.cursors.GetCursor(ctx, cursorServiceName)
	if err != nil {
		s.logger.Warn("failed to load cursor, starting from live", "error", err)
		return 0
	}
	return cursor
}

func (s *Subscriber) saveCursor(ctx context.Context, cursor int64) error {
	if s.cursors == nil || cursor == 0 {
		return nil
	}
	return s.cursors.UpdateCursor(ctx, cursorServiceName, cursor)
}

func (s *Subscriber) subscribe(ctx context.Context) error {
	wsURL, err := s.buildURL(s.loadCursor(ctx))
	if err != nil {
		return err
	}
	s.logger.Info("connecting to firehose", "url", wsURL)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial firehose: %w", err)
	}
	defer conn.Close()

	// ReadMessage does not observe ctx.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	s.logger.Info("connected to firehose")

	lastCursorSave := time.Now()
	lastStatsLog := time.Now()
	var latestCursor int64
	var eventsReceived, commitsReceived, applied int64

	defer func() {
		// Best effort on the way out so a restart resumes close to here.
		if err := s.saveCursor(context.WithoutCancel(ctx), latestCursor); err != nil {
			s.logger.Error("failed to save cursor", "error", err)
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}

		event, err := parseEvent(message)
		if err != nil {
			s.logger.Error("failed to parse event", "error", err)
			continue
		}

		eventsReceived++
		latestCursor = event.TimeUS

		if event.Kind == "commit" && event.Commit != nil {
			commitsReceived++
			if s.handleCommit(event) {
				applied++
			}
		}

		if time.Since(lastStatsLog) >= statsInterval {
			s.logger.Info("firehose stats",
				"events_received", eventsReceived,
				"commits_received", commitsReceived,
				"engagements_applied", applied,
			)
			lastStatsLog = time.Now()
		}

		if time.Since(lastCursorSave) >= cursorSaveInterval {
			if err := s.saveCursor(ctx, latestCursor); err != nil {
				s.logger.Error("failed to save cursor", "error", err)
			} else {
				lastCursorSave = time.Now()
			}
		}
	}
}

// handleCommit bumps the like or repost count of a tracked subject. It reports
// whether an overlay changed. Deletes carry no subject and are ignored; the
// next full fetch corrects any drift.
func (s *Subscriber) handleCommit(event *jetstreamEvent) bool {
	commit := event.Commit
	if commit.Operation != "create" || commit.Record == nil || !isEngagement(commit.Collection) {
		return false
	}
	if viewer := s.viewer(); viewer != "" && event.DID == viewer {
		return false
	}
	subject := commit.Record.Subject.URI
	if subject == "" {
		return false
	}

	_, err := s.tracker.Modify(subject, func(m postmeta.Meta) (postmeta.Meta, error) {
		switch commit.Collection {
		case collectionLike:
			m.LikeCount++
		case collectionRepost:
			m.RepostCount++
		}
		return m, nil
	})
	if err != nil {
		// Untracked subjects are the common case.
		return false
	}

	s.metrics.EngagementApplied(commit.Collection)
	s.logger.Debug("engagement applied",
		"collection", commit.Collection,
		"subject", subject,
		"actor", event.DID,
	)
	return true
}
