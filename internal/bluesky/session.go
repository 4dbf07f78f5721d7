package bluesky

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/blackmichael/skyreader/internal/domain"
)

type sessionResponse struct {
	AccessJwt  string `json:"accessJwt"`
	RefreshJwt string `json:"refreshJwt"`
	DID        string `json:"did"`
	Handle     string `json:"handle"`
}

// Login authenticates with the PDS and stores the session. Use an App
// Password, not your account password.
func (c *Client) Login(ctx context.Context, identifier, password string) (*domain.Session, error) {
	body := map[string]string{
		"identifier": identifier,
		"password":   password,
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var resp sessionResponse
	r, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&resp).
		SetError(&APIError{}).
		Post(c.pds + "/xrpc/com.atproto.server.createSession")
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if r.IsError() {
		return nil, fmt.Errorf("create session: %w", parseError(r))
	}

	session := &domain.Session{
		DID:        resp.DID,
		Handle:     resp.Handle,
		PDS:        c.pds,
		AccessJwt:  resp.AccessJwt,
		RefreshJwt: resp.RefreshJwt,
		UpdatedAt:  time.Now().UTC(),
	}
	c.Resume(session)
	return c.Session(), nil
}

// Resume installs a previously saved session. A nil session logs out.
func (c *Client) Resume(session *domain.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if session == nil {
		c.session = nil
		return
	}
	s := *session
	if s.PDS == "" {
		s.PDS = c.pds
	}
	c.session = &s
}

// RefreshSession exchanges the refresh token for new tokens.
func (c *Client) RefreshSession(ctx context.Context) (*domain.Session, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	before := c.Session()
	if before == nil {
		return nil, ErrNotAuthenticated
	}

	var resp sessionResponse
	err := c.send(ctx, call{
		method:       http.MethodPost,
		nsid:         "com.atproto.server.refreshSession",
		result:       &resp,
		auth:         true,
		refreshToken: true,
	})
	if err != nil {
		return nil, fmt.Errorf("refresh session: %w", err)
	}

	c.mu.Lock()
	if c.session != nil && c.session.DID == before.DID {
		c.session.AccessJwt = resp.AccessJwt
		c.session.RefreshJwt = resp.RefreshJwt
		if resp.Handle != "" {
			c.session.Handle = resp.Handle
		}
		c.session.UpdatedAt = time.Now().UTC()
	}
	c.mu.Unlock()

	return c.Session(), nil
}

// StartRefreshJob refreshes the session at the given interval and hands each
// new session to save. It blocks until ctx is cancelled.
func (c *Client) StartRefreshJob(ctx context.Context, interval time.Duration, save func(context.Context, *domain.Session) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runRefresh(ctx, save)
		}
	}
}

func (c *Client) runRefresh(ctx context.Context, save func(context.Context, *domain.Session) error) {
	if !c.Authenticated() {
		return
	}
	session, err := c.RefreshSession(ctx)
	if err != nil {
		c.logger.Error("session refresh failed", "error", err)
		return
	}
	if save != nil {
		if err := save(ctx, session); err != nil {
			c.logger.Error("failed to save session", "error", err)
			return
		}
	}
	c.logger.Info("session refreshed", "did", session.DID)
}
