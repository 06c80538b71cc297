// Package remote is the HTTP client for the pointing API.
//
// Every operation is one request with a fixed method, path and success status. Any
// other status is returned as *StatusError; nothing is retried and no local state is
// touched.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"pointy/cmd/identity/ids"
	v1 "pointy/shared/contracts/pointing/v1"
)

const (
	headerAuthorization  = "Authorization"
	headerFacilitatorKey = "X-Facilitator-Key"
	headerRequestID      = "X-Request-Id"

	defaultTimeout = 15 * time.Second

	// Max response body read for decoding.
	maxResponseBytes = 1 << 20
)

// CredentialSource supplies the Authorization header value ("" when signed out).
// It is read on every call.
type CredentialSource interface {
	Credential() string
}

// CredentialFunc adapts a function to CredentialSource.
type CredentialFunc func() string

// Credential calls f.
func (f CredentialFunc) Credential() string { return f() }

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default http client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// Client calls the pointing HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
	creds   CredentialSource
	log     *slog.Logger
	reqIDs  *ids.RequestIDs
}

// NewClient constructs a client rooted at baseURL.
func NewClient(log *slog.Logger, baseURL string, creds CredentialSource, opts ...Option) *Client {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		creds:   creds,
		log:     log,
		reqIDs:  ids.NewRequestIDs(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// FetchProfile returns the signed-in user's profile.
func (c *Client) FetchProfile(ctx context.Context) (*Profile, error) {
	var out Profile
	if err := c.do(ctx, call{op: "fetchProfile", method: http.MethodGet, path: "/profile", want: http.StatusOK, out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateProfile writes the signed-in user's profile.
func (c *Client) UpdateProfile(ctx context.Context, in ProfileUpdate) error {
	return c.do(ctx, call{op: "updateProfile", method: http.MethodPut, path: "/profile", in: in, want: http.StatusNoContent})
}

// CreateSession creates a session and returns its facilitator view (including the key).
func (c *Client) CreateSession(ctx context.Context, in CreateSessionRequest) (v1.SessionView, error) {
	var out v1.SessionView
	err := c.do(ctx, call{op: "createSession", method: http.MethodPut, path: "/session", in: in, want: http.StatusOK, out: &out})
	return out, err
}

// UpdateSession sets votesShown and facilitatorPoints.
func (c *Client) UpdateSession(ctx context.Context, sessionID, facilitatorKey string, in UpdateSessionRequest) error {
	return c.do(ctx, call{
		op:     "updateSession",
		method: http.MethodPut,
		path:   "/session/" + url.PathEscape(sessionID),
		key:    facilitatorKey,
		in:     in,
		want:   http.StatusNoContent,
	})
}

// SetFacilitatorSession attaches a connection to a session as its facilitator.
func (c *Client) SetFacilitatorSession(ctx context.Context, sessionID, facilitatorKey string, in SetFacilitatorSessionRequest) (v1.SessionView, error) {
	var out v1.SessionView
	err := c.do(ctx, call{
		op:     "setFacilitatorSession",
		method: http.MethodPut,
		path:   "/session/" + url.PathEscape(sessionID) + "/facilitator",
		key:    facilitatorKey,
		in:     in,
		want:   http.StatusOK,
		out:    &out,
	})
	return out, err
}

// JoinSession adds userID to a session as a participant.
func (c *Client) JoinSession(ctx context.Context, sessionID, userID string, in JoinSessionRequest) error {
	return c.do(ctx, call{
		op:     "joinSession",
		method: http.MethodPut,
		path:   "/session/" + url.PathEscape(sessionID) + "/user/" + url.PathEscape(userID),
		in:     in,
		want:   http.StatusNoContent,
	})
}

// Vote casts userID's vote. The value is opaque.
func (c *Client) Vote(ctx context.Context, sessionID, userID, vote string) error {
	return c.do(ctx, call{
		op:     "vote",
		method: http.MethodPut,
		path:   "/session/" + url.PathEscape(sessionID) + "/user/" + url.PathEscape(userID) + "/vote",
		in:     voteRequest{Vote: vote},
		want:   http.StatusNoContent,
	})
}

// WatchSession registers a connection as a passive watcher of a session.
func (c *Client) WatchSession(ctx context.Context, sessionID, connectionID string) error {
	return c.do(ctx, call{
		op:     "watchSession",
		method: http.MethodPost,
		path:   "/session/" + url.PathEscape(sessionID) + "/watcher",
		in:     watchRequest{ConnectionID: connectionID},
		want:   http.StatusNoContent,
	})
}

// ClearVotes resets every vote in a session.
func (c *Client) ClearVotes(ctx context.Context, sessionID, facilitatorKey string) error {
	return c.do(ctx, call{
		op:     "clearVotes",
		method: http.MethodDelete,
		path:   "/session/" + url.PathEscape(sessionID) + "/votes",
		key:    facilitatorKey,
		want:   http.StatusNoContent,
	})
}

// ---- request plumbing ----

type call struct {
	op     string
	method string
	path   string
	key    string
	in     any
	want   int
	out    any
}

func (c *Client) do(ctx context.Context, cl call) error {
	start := time.Now()
	status, err := c.roundTrip(ctx, cl)
	requestDuration.WithLabelValues(cl.op).Observe(time.Since(start).Seconds())
	requestsTotal.WithLabelValues(cl.op, strconv.Itoa(status)).Inc()
	return err
}

func (c *Client) roundTrip(ctx context.Context, cl call) (int, error) {
	var body io.Reader
	if cl.in != nil {
		b, err := json.Marshal(cl.in)
		if err != nil {
			return 0, fmt.Errorf("%s: encode: %w", cl.op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, c.baseURL+cl.path, body)
	if err != nil {
		return 0, fmt.Errorf("%s: build request: %w", cl.op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
	if c.creds != nil {
		if cred := c.creds.Credential(); cred != "" {
			req.Header.Set(headerAuthorization, cred)
		}
	}
	if cl.key != "" {
		req.Header.Set(headerFacilitatorKey, cl.key)
	}
	reqID, _ := c.reqIDs.Next()
	if reqID != "" {
		req.Header.Set(headerRequestID, reqID)
	}

	res, err := c.http.Do(req)
	if err != nil {
		c.log.Info("remote.request.fail", "op", cl.op, "request_id", reqID, "err", err)
		return 0, fmt.Errorf("%s: %w", cl.op, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != cl.want {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, maxResponseBytes))
		c.log.Info("remote.request.status", "op", cl.op, "request_id", reqID, "status", res.StatusCode, "want", cl.want)
		return res.StatusCode, &StatusError{Op: cl.op, Status: res.StatusCode}
	}

	if cl.out != nil {
		if err := json.NewDecoder(io.LimitReader(res.Body, maxResponseBytes)).Decode(cl.out); err != nil {
			return res.StatusCode, fmt.Errorf("%s: decode response: %w", cl.op, err)
		}
	}

	c.log.Debug("remote.request.ok", "op", cl.op, "request_id", reqID, "status", res.StatusCode)
	return res.StatusCode, nil
}
