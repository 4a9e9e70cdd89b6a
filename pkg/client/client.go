// Package client talks to the campaign backend on behalf of a signed-in user.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"qanda/pkg/models"
)

const (
	defaultTimeout = 10 * time.Second
	bearerPrefix   = "Bearer "
)

type ctxKeyToken struct{}

// WithToken returns a context carrying the bearer token used for backend requests.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, ctxKeyToken{}, token)
}

// Token returns the bearer token stored in ctx or an empty string.
func Token(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyToken{}).(string); ok {
		return v
	}
	return ""
}

// BearerToken returns the token of a "Bearer" Authorization header, or an empty string.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > len(bearerPrefix) && strings.EqualFold(h[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(h[len(bearerPrefix):])
	}
	return ""
}

type Client struct {
	baseURL string
	client  *http.Client
}

// New returns a client for the backend at baseURL. A zero timeout means 10 seconds.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Comments fetches the flat comment list of a campaign.
func (c *Client) Comments(ctx context.Context, campaignID string) ([]*models.Comment, error) {
	b, err := c.do(ctx, http.MethodGet, c.commentsURL(campaignID), nil)
	if err != nil {
		return nil, err
	}

	return decodeComments(b)
}

// CreateComment posts a new question or answer and returns the comment the backend stored.
func (c *Client) CreateComment(ctx context.Context, campaignID string, comment models.NewComment) (*models.Comment, error) {
	body, err := json.Marshal(comment)
	if err != nil {
		return nil, err
	}

	b, err := c.do(ctx, http.MethodPost, c.commentsURL(campaignID), body)
	if err != nil {
		return nil, err
	}

	return decodeComment(b)
}

func (c *Client) commentsURL(campaignID string) string {
	return fmt.Sprintf("%s/projects/%s/comments", c.baseURL, url.PathEscape(campaignID))
}

func (c *Client) do(ctx context.Context, method, target string, body []byte) ([]byte, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, r)
	if err != nil {
		return nil, fmt.Errorf("error creating request %s %s: %w", method, target, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token := Token(ctx); token != "" {
		req.Header.Set("Authorization", bearerPrefix+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error calling backend %s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response from %s %s: %w", method, target, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Msg: strings.TrimSpace(string(b))}
	}
	log.Debugf("[client] %s %s returned %d", method, target, resp.StatusCode)

	return b, nil
}
