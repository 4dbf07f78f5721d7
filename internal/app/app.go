// Package app builds the reader's services from configuration. Both the HTTP
// server and the CLI start here.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/blackmichael/skyreader/internal/bluesky"
	"github.com/blackmichael/skyreader/internal/config"
	"github.com/blackmichael/skyreader/internal/domain"
	"github.com/blackmichael/skyreader/internal/feed"
	"github.com/blackmichael/skyreader/internal/metrics"
	"github.com/blackmichael/skyreader/internal/moderation"
	"github.com/blackmichael/skyreader/internal/postmeta"
	"github.com/blackmichael/skyreader/internal/seen"
	"github.com/blackmichael/skyreader/internal/sqlite"
	"github.com/blackmichael/skyreader/internal/thread"
)

// App holds the wired services.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Client  *bluesky.Client
	Repo    *sqlite.Repository
	Metrics *metrics.Metrics

	Feeds         *feed.Service
	Threads       *thread.Service
	Notifications *feed.NotificationService
	Meta          *postmeta.Store
	Mutations     *postmeta.Mutations
}

// New opens the database and builds every service. notifier receives failed
// mutation notices; nil logs them. Call Close when done.
func New(cfg *config.Config, logger *slog.Logger, notifier postmeta.Notifier) (*App, error) {
	repo, err := sqlite.NewRepository(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}

	client := bluesky.NewClient(bluesky.Options{
		PDS:           cfg.PDS,
		PublicAppView: cfg.PublicAppView,
		RateLimit:     cfg.RateLimit,
		Logger:        logger,
	})

	if notifier == nil {
		notifier = postmeta.LogNotifier{Logger: logger}
	}
	m := metrics.New()
	store := postmeta.NewStore()
	m.TrackPostMeta(store.Len)

	return &App{
		Config:        cfg,
		Logger:        logger,
		Client:        client,
		Repo:          repo,
		Metrics:       m,
		Feeds:         feed.NewService(client, seen.NewRegistry(), logger, m),
		Threads:       thread.NewService(client, logger),
		Notifications: feed.NewNotificationService(client, client, logger),
		Meta:          store,
		Mutations:     postmeta.NewMutations(store, client, notifier, m),
	}, nil
}

// Close releases the database.
func (a *App) Close() error {
	return a.Repo.Close()
}

// SignIn establishes a session. A saved session is reused when it belongs to
// the configured handle (or any saved session when no credentials are
// configured); otherwise the configured credentials log in. Without either
// the app stays anonymous.
func (a *App) SignIn(ctx context.Context) error {
	saved, err := a.Repo.LatestSession(ctx)
	if err != nil {
		a.Logger.Warn("failed to load saved session", "error", err)
	}

	switch {
	case saved != nil && (!a.Config.Authenticated() || saved.Handle == a.Config.Handle):
		a.Client.Resume(saved)
		a.Logger.Info("resumed session", "did", saved.DID, "handle", saved.Handle)
	case a.Config.Authenticated():
		if _, err := a.Login(ctx, a.Config.Handle, a.Config.AppPassword); err != nil {
			return err
		}
	default:
		a.Logger.Info("no credentials configured, reading anonymously")
	}

	a.Feeds.SetViewer(a.Client.DID())
	return nil
}

// Login creates a new session and saves it.
func (a *App) Login(ctx context.Context, identifier, password string) (*domain.Session, error) {
	session, err := a.Client.Login(ctx, identifier, password)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if err := a.Repo.SaveSession(ctx, session); err != nil {
		return nil, err
	}
	a.Feeds.SetViewer(session.DID)
	a.Logger.Info("logged in", "did", session.DID, "handle", session.Handle)
	return session, nil
}

// Logout forgets the current session.
func (a *App) Logout(ctx context.Context) error {
	session := a.Client.Session()
	if session == nil {
		return bluesky.ErrNotAuthenticated
	}
	if err := a.Repo.DeleteSession(ctx, session.DID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	a.Client.Resume(nil)
	a.Feeds.SetViewer("")
	return nil
}

// SaveSession persists the client's current session, which may have been
// refreshed since it was loaded.
func (a *App) SaveSession(ctx context.Context) error {
	session := a.Client.Session()
	if session == nil {
		return nil
	}
	return a.Repo.SaveSession(ctx, session)
}

// LoadModeration builds the label engine from the account's preferences and
// installs it on the feed and thread services. Moderation fails open: when
// preferences cannot be loaded nothing is filtered. It reports whether an
// engine was installed.
func (a *App) LoadModeration(ctx context.Context) bool {
	if !a.Client.Authenticated() {
		return false
	}
	prefs, err := a.Client.Preferences(ctx)
	if err != nil {
		a.Logger.Warn("failed to load moderation preferences, not filtering", "error", err)
		return false
	}
	engine := moderation.NewLabelEngine(a.Client.DID(), prefs)
	a.Feeds.SetModerator(engine)
	a.Threads.SetModerator(engine)
	return true
}

// RefreshSessions keeps the session fresh until ctx is cancelled.
func (a *App) RefreshSessions(ctx context.Context) {
	a.Client.StartRefreshJob(ctx, a.Config.SessionRefresh, a.Repo.SaveSession)
}
