package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/pickup-room-sync/internal/room"
)

// ErrUnavailable is returned for every failed fetch. Callers treat it as
// recoverable and try again on the next reconnect cycle.
var ErrUnavailable = errors.New("snapshot unavailable")

const (
	defaultTimeout = 5 * time.Second
	maxBodyBytes   = 1 << 20
)

type Fetcher interface {
	Fetch(ctx context.Context, roomID string) (room.Snapshot, error)
}

type FetcherFunc func(ctx context.Context, roomID string) (room.Snapshot, error)

func (f FetcherFunc) Fetch(ctx context.Context, roomID string) (room.Snapshot, error) {
	return f(ctx, roomID)
}

// TokenSource supplies the bearer token for the current session. An empty
// token means the request goes out unauthenticated.
type TokenSource func(ctx context.Context) (string, error)

func StaticToken(token string) TokenSource {
	return func(context.Context) (string, error) { return token, nil }
}

type Client struct {
	baseURL string
	http    *http.Client
	token   TokenSource
	timeout time.Duration
	log     *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }
func WithTokenSource(t TokenSource) Option { return func(c *Client) { c.token = t } }
func WithTimeout(d time.Duration) Option   { return func(c *Client) { c.timeout = d } }
func WithLogger(l *zap.Logger) Option      { return func(c *Client) { c.log = l } }

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
		timeout: defaultTimeout,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	return c
}

// Fetch performs GET {baseURL}/games/{roomID}.
func (c *Client) Fetch(ctx context.Context, roomID string) (room.Snapshot, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	endpoint := c.baseURL + "/games/" + url.PathEscape(roomID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return room.Snapshot{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	if c.token != nil {
		tok, err := c.token(ctx)
		if err != nil {
			return room.Snapshot{}, fmt.Errorf("%w: token: %v", ErrUnavailable, err)
		}
		if tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return room.Snapshot{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return room.Snapshot{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var snap room.Snapshot
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&snap); err != nil {
		return room.Snapshot{}, fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}

	c.log.Debug("snapshot fetched",
		zap.String("room", roomID),
		zap.Int("participants", len(snap.Participants)),
		zap.Int("waitlist", len(snap.Waitlist)))
	return snap, nil
}
