package spotify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	apiBase   = "https://api.spotify.com/v1"
	userAgent = "spotify-artist-harvester/1.0"
)

// tokenURL is a var, not a const, so tests can redirect the OAuth token
// exchange at a local httptest.Server.
var tokenURL = "https://accounts.spotify.com/api/token"

// Credentials is the local JSON document read once at startup (spec §6).
type Credentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// Outcome is the typed result of one fetch, as dispatched by the fetch cycle
// (spec §4.7 step 5).
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRateLimited
	OutcomeTokenExpired
	OutcomeForbidden
	OutcomeTransportError
)

// Response wraps the decoded body of a fetch that Fetch classes as a success
// (any status other than 401, 403, 429 or 5xx) alongside the route kind so the dispatcher can select its handler without re-parsing the
// path.
type Response struct {
	Endpoint Endpoint
	Status   int
	Data     map[string]any
}

// FetchResult is what Client.Fetch returns: the outcome tag plus whatever
// payload is relevant to it (a Response on success, a Retry-After hint on
// rate limiting).
type FetchResult struct {
	Outcome    Outcome
	Response   *Response
	RetryAfter *float64
}

// Client is the HTTP client adapter of spec §4.7: it performs one request,
// maps wire results onto FetchResult, and owns the bearer token lifecycle.
// It is safe for concurrent use by many workers; only the token field is
// mutated after construction, under tokenMu.
type Client struct {
	http *resty.Client

	tokenMu sync.RWMutex
	token   string

	clientID     string
	clientSecret string
}

// NewClient builds a Client around a resty.Client configured with the
// 60-second total timeout spec §5 requires.
func NewClient(creds Credentials, timeout time.Duration) *Client {
	http := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", userAgent).
		SetBaseURL(apiBase)

	return &Client{
		http:         http,
		clientID:     creds.ClientID,
		clientSecret: creds.ClientSecret,
	}
}

// RefreshToken performs the client-credentials OAuth flow (spec §6) and
// stores the resulting bearer token for subsequent Fetch calls.
func (c *Client) RefreshToken(ctx context.Context) error {
	auth := base64.StdEncoding.EncodeToString([]byte(c.clientID + ":" + c.clientSecret))

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Basic "+auth).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetBody("grant_type=client_credentials").
		Post(tokenURL)
	if err != nil {
		return fmt.Errorf("token request: %w", err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("token request returned status %d", resp.StatusCode())
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}
	if body.AccessToken == "" {
		return fmt.Errorf("token response missing access_token")
	}

	c.tokenMu.Lock()
	c.token = body.AccessToken
	c.tokenMu.Unlock()
	return nil
}

func (c *Client) bearerToken() string {
	c.tokenMu.RLock()
	defer c.tokenMu.RUnlock()
	return c.token
}

// Fetch issues one request for ep and maps the result onto a FetchResult.
// OutcomeTransportError means the request never reached the server, timed
// out, or got a 5xx status; all are treated identically per spec §5
// "Timeouts".
func (c *Client) Fetch(ctx context.Context, ep Endpoint) FetchResult {
	req := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+c.bearerToken())
	if len(ep.Params) > 0 {
		req = req.SetQueryParams(ep.Params)
	}

	resp, err := req.Get(ep.Path)
	if err != nil {
		return FetchResult{Outcome: OutcomeTransportError}
	}

	status := resp.StatusCode()
	switch status {
	case 429:
		var retryAfter *float64
		if h := resp.Header().Get("Retry-After"); h != "" {
			if v, perr := strconv.ParseFloat(h, 64); perr == nil {
				retryAfter = &v
			}
		}
		return FetchResult{Outcome: OutcomeRateLimited, RetryAfter: retryAfter}
	case 401:
		return FetchResult{Outcome: OutcomeTokenExpired}
	case 403:
		return FetchResult{Outcome: OutcomeForbidden}
	}
	if status >= 500 {
		return FetchResult{Outcome: OutcomeTransportError}
	}

	data := map[string]any{}
	if ct := resp.Header().Get("Content-Type"); isJSON(ct) && len(resp.Body()) > 0 {
		_ = json.Unmarshal(resp.Body(), &data)
	}

	return FetchResult{
		Outcome: OutcomeSuccess,
		Response: &Response{
			Endpoint: ep,
			Status:   status,
			Data:     data,
		},
	}
}

func isJSON(contentType string) bool {
	for _, want := range []string{"application/json", "text/json"} {
		if len(contentType) >= len(want) && contentType[:len(want)] == want {
			return true
		}
	}
	return false
}
