// internal/catalog/client.go

// Package catalog talks to the Spotify Web API: app-level playlist reads, the
// user authorization flow and the user library sync.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	DefaultAPIURL   = "https://api.spotify.com/v1"
	DefaultAuthURL  = "https://accounts.spotify.com/authorize"
	DefaultTokenURL = "https://accounts.spotify.com/api/token"

	// MaxRateLimitRetries bounds how many 429 answers one request may absorb.
	MaxRateLimitRetries = 50
	pageSize            = 50
)

// ErrRateLimited is returned once a request exhausted MaxRateLimitRetries.
var ErrRateLimited = errors.New("spotify: too many rate limited retries")

// errStopPaging ends a listing walk early without failing it.
var errStopPaging = errors.New("stop paging")

// TimeRanges are the windows the top tracks listing accepts.
var TimeRanges = []string{"short_term", "medium_term", "long_term"}

// Scopes requested when a user links their account.
var Scopes = []string{"playlist-read-private", "user-library-read", "user-top-read"}

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// Endpoint overrides, empty means Spotify's.
	APIURL   string
	AuthURL  string
	TokenURL string
}

// Client holds the app credentials. API values derived from it do the requests.
type Client struct {
	apiURL string
	oauth  *oauth2.Config
	app    *http.Client
	logger *logrus.Logger

	// RateLimitPadding is added to every Retry-After wait.
	RateLimitPadding time.Duration
}

func NewClient(cfg Config, logger *logrus.Logger) *Client {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}
	return &Client{
		apiURL: cfg.APIURL,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       Scopes,
			Endpoint:     oauth2.Endpoint{AuthURL: cfg.AuthURL, TokenURL: cfg.TokenURL},
		},
		app:              cc.Client(context.Background()),
		logger:           logger,
		RateLimitPadding: time.Second,
	}
}

// AuthURL is where a user is sent to grant access. state comes back on the callback.
func (c *Client) AuthURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades the callback code for the user's tokens.
func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("spotify: exchanging code: %w", err)
	}
	return tok, nil
}

// App returns an API authenticated with the client credentials grant.
func (c *Client) App() *API {
	return &API{http: c.app, client: c}
}

// ForUser returns an API acting as the owner of tok. The token source hands out
// the refreshed token when tok expired along the way.
func (c *Client) ForUser(ctx context.Context, tok *oauth2.Token) (*API, oauth2.TokenSource) {
	ts := c.oauth.TokenSource(ctx, tok)
	return &API{http: oauth2.NewClient(ctx, ts), client: c}, ts
}

type API struct {
	http   *http.Client
	client *Client
}

// APIError is a non-success answer other than 429.
type APIError struct {
	Status int
	Path   string
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("spotify: GET %s returned %d: %s", e.Path, e.Status, e.Body)
}

// get decodes the JSON answer of path into out. Rate limited answers are retried
// after the advertised delay.
func (a *API) get(ctx context.Context, path string, query url.Values, out any) error {
	u := a.client.apiURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	for attempt := 0; attempt < MaxRateLimitRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		resp, err := a.http.Do(req)
		if err != nil {
			return fmt.Errorf("spotify: GET %s: %w", path, err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			wait := retryAfter(resp.Header.Get("Retry-After")) + a.client.RateLimitPadding
			resp.Body.Close()
			a.client.logger.WithFields(logrus.Fields{
				"path":    path,
				"attempt": attempt + 1,
				"wait":    wait,
			}).Info("spotify rate limit hit, waiting")
			if err := sleepCtx(ctx, wait); err != nil {
				return err
			}
			continue
		}
		return decode(resp, path, out)
	}
	return fmt.Errorf("GET %s: %w", path, ErrRateLimited)
}

func decode(resp *http.Response, path string, out any) error {
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{Status: resp.StatusCode, Path: path, Body: string(body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("spotify: decoding %s: %w", path, err)
	}
	return nil
}

// retryAfter reads a Retry-After header in seconds.
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

// eachPage walks a limit/offset listing until total is reached or a page comes
// back empty. An error from fn stops the walk and is returned, except
// errStopPaging which ends it cleanly.
func eachPage[T any](ctx context.Context, a *API, path string, extra url.Values, fn func(T) error) error {
	offset := 0
	for {
		q := url.Values{
			"limit":  {strconv.Itoa(pageSize)},
			"offset": {strconv.Itoa(offset)},
		}
		for k, v := range extra {
			q[k] = v
		}
		var p page[T]
		if err := a.get(ctx, path, q, &p); err != nil {
			return err
		}
		for _, item := range p.Items {
			if err := fn(item); errors.Is(err, errStopPaging) {
				return nil
			} else if err != nil {
				return err
			}
		}
		offset += len(p.Items)
		if len(p.Items) == 0 || offset >= p.Total {
			return nil
		}
	}
}

func (a *API) Track(ctx context.Context, id string) (*RawTrack, error) {
	var t RawTrack
	if err := a.get(ctx, "/tracks/"+url.PathEscape(id), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Me resolves the account behind the API's token.
func (a *API) Me(ctx context.Context) (*Profile, error) {
	var p Profile
	if err := a.get(ctx, "/me", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// EachPlaylistTrack calls fn for every track of the playlist. Local files and
// removed entries are skipped.
func (a *API) EachPlaylistTrack(ctx context.Context, playlistID string, fn func(RawTrack) error) error {
	type item struct {
		Track *RawTrack `json:"track"`
	}
	return eachPage(ctx, a, "/playlists/"+url.PathEscape(playlistID)+"/tracks", nil, func(it item) error {
		if it.Track == nil || it.Track.IsLocal {
			return nil
		}
		return fn(*it.Track)
	})
}

func (a *API) EachMyPlaylist(ctx context.Context, fn func(RawPlaylist) error) error {
	return eachPage(ctx, a, "/me/playlists", nil, fn)
}

// EachTopTrack walks the user's most played tracks. An empty timeRange uses
// Spotify's default window.
func (a *API) EachTopTrack(ctx context.Context, timeRange string, fn func(RawTrack) error) error {
	var q url.Values
	if timeRange != "" {
		q = url.Values{"time_range": {timeRange}}
	}
	return eachPage(ctx, a, "/me/top/tracks", q, fn)
}
