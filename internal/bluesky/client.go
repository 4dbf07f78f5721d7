package bluesky

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	jsoniter "github.com/json-iterator/go"
	"golang.org/x/time/rate"

	"github.com/blackmichael/skyreader/internal/domain"
)

const (
	defaultPDS           = "https://bsky.social"
	defaultPublicAppView = "https://public.api.bsky.app"
	defaultTimeout       = 30 * time.Second
	defaultRateLimit     = 10

	userAgent = "skyreader/0.1"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrNotAuthenticated is returned by calls that need a session when there is none.
var ErrNotAuthenticated = errors.New("not authenticated: log in first")

// Options configures a Client.
type Options struct {
	// PDS is the personal data server used once logged in. Defaults to
	// https://bsky.social.
	PDS string

	// PublicAppView serves read calls for anonymous sessions. Defaults to
	// https://public.api.bsky.app.
	PublicAppView string

	// RateLimit caps outgoing requests per second. Zero means the default.
	RateLimit float64

	Timeout time.Duration
	Logger  *slog.Logger
}

// Client is an AT Protocol XRPC client covering the read and write calls a
// timeline reader needs. Without a session it reads from the public AppView.
//
// Client is safe for concurrent use.
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
	logger  *slog.Logger

	pds       string
	publicURL string

	mu      sync.RWMutex
	session *domain.Session

	refreshMu sync.Mutex
}

// NewClient creates a client. Zero option values fall back to defaults.
func NewClient(opts Options) *Client {
	if opts.PDS == "" {
		opts.PDS = defaultPDS
	}
	if opts.PublicAppView == "" {
		opts.PublicAppView = defaultPublicAppView
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = defaultRateLimit
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	c := &Client{
		limiter:   rate.NewLimiter(rate.Limit(opts.RateLimit), int(opts.RateLimit)+1),
		logger:    opts.Logger,
		pds:       opts.PDS,
		publicURL: opts.PublicAppView,
	}

	c.http = resty.New().
		SetTimeout(opts.Timeout).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "application/json").
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)

	c.http.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		c.logger.Debug("xrpc request", "method", req.Method, "url", req.URL)
		return nil
	})
	c.http.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		c.logger.Debug("xrpc response", "status", resp.StatusCode(), "duration", resp.Time())
		return nil
	})

	return c
}

// DID returns the signed-in account DID, or "" when anonymous.
func (c *Client) DID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return ""
	}
	return c.session.DID
}

// Session returns a copy of the current session, or nil.
func (c *Client) Session() *domain.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return nil
	}
	s := *c.session
	return &s
}

// Authenticated reports whether a session is set.
func (c *Client) Authenticated() bool {
	return c.DID() != ""
}

// call describes one XRPC request.
type call struct {
	method string
	nsid   string
	query  map[string]string
	multi  map[string][]string
	body   any
	result any

	// auth requires a session; anonymous calls go to the public AppView.
	auth bool

	// refreshToken authenticates with the refresh token instead.
	refreshToken bool
}

// do sends the call, refreshing an expired access token once.
func (c *Client) do(ctx context.Context, cl call) error {
	err := c.send(ctx, cl)

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Expired() && !cl.refreshToken {
		if _, rerr := c.RefreshSession(ctx); rerr != nil {
			return fmt.Errorf("%s: %w", cl.nsid, err)
		}
		err = c.send(ctx, cl)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", cl.nsid, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, cl call) error {
	c.mu.RLock()
	session := c.session
	c.mu.RUnlock()

	if cl.auth && session == nil {
		return ErrNotAuthenticated
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	base := c.publicURL
	req := c.http.R().SetContext(ctx).SetError(&APIError{})
	if session != nil {
		base = session.PDS
		token := session.AccessJwt
		if cl.refreshToken {
			token = session.RefreshJwt
		}
		req.SetAuthToken(token)
	}
	if cl.query != nil {
		req.SetQueryParams(cl.query)
	}
	for k, vs := range cl.multi {
		for _, v := range vs {
			req.QueryParam.Add(k, v)
		}
	}
	if cl.body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(cl.body)
	}
	if cl.result != nil {
		req.SetResult(cl.result)
	}

	method := cl.method
	if method == "" {
		method = http.MethodGet
	}
	resp, err := req.Execute(method, base+"/xrpc/"+cl.nsid)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	if resp.IsError() {
		return parseError(resp)
	}
	return nil
}
