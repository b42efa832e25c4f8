package twitter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ClientOption allows for customization of the client
type ClientOption func(*TwitterClient)

type TwitterClient struct {
	config  *TwitterConfig
	auth    *Authenticator
	limiter *rate.Limiter
	logger  *logrus.Logger
}

// NewTwitterClient creates a new Twitter API client
func NewTwitterClient(config *TwitterConfig, opts ...ClientOption) (*TwitterClient, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	auth, err := NewAuthenticator(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create authenticator: %w", err)
	}

	client := &TwitterClient{
		config:  config,
		auth:    auth,
		limiter: newLimiter(config.RateLimit, config.RateWindow),
		logger:  config.Logger,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// HasReadAccess reports whether the client holds usable credentials.
func (c *TwitterClient) HasReadAccess() bool {
	return c.config.HasReadAccess()
}

func (c *TwitterClient) makeRequest(ctx context.Context, endpoint string, query url.Values) (*http.Response, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}

	if err := c.waitForSlot(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	fullURL := c.config.BaseURL + endpoint
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	c.auth.SetAuthHeader(req)

	resp, err := c.auth.GetClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}

	if err := c.handleStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

// handleStatus checks for API errors in the response
func (c *TwitterClient) handleStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read error response: %w", err)
	}

	var errResp struct {
		Errors []TwitterError `json:"errors"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && len(errResp.Errors) > 0 {
		c.logger.WithFields(logrus.Fields{
			"status_code": resp.StatusCode,
			"error_code":  errResp.Errors[0].Code,
			"message":     errResp.Errors[0].Message,
		}).Error("Twitter API error")
		return &errResp.Errors[0]
	}

	return fmt.Errorf("twitter api error: status=%d body=%s", resp.StatusCode, string(body))
}

func decodeResponse(resp *http.Response, dest interface{}) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *TwitterClient) lookupQuery() url.Values {
	q := url.Values{}
	q.Set("tweet.fields", strings.Join(c.config.TweetFields, ","))
	q.Set("expansions", strings.Join(c.config.ExpansionFields, ","))
	q.Set("media.fields", strings.Join(c.config.MediaFields, ","))
	q.Set("user.fields", strings.Join(c.config.UserFields, ","))
	return q
}
