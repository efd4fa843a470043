// Package api fronts every authenticated Outpost API operation with the
// credential guard: a valid bearer token is obtained from the session
// and injected per request before the call goes out.
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/outpost-sec/cli/internal/session"
)

// businessTimeout bounds each guarded business call.
const businessTimeout = 30 * time.Second

// RemoteError is returned when the remote service rejects a guarded
// operation. It is distinct from every authentication failure so callers
// can tell "you're not logged in" from "the server said no".
type RemoteError struct {
	StatusCode int
	Body       []byte
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Body)
}

// Client performs guarded calls against the session's API host.
type Client struct {
	Session    *session.Session
	HTTPClient *http.Client
}

// NewClient wraps a resolved session.
func NewClient(s *session.Session) *Client {
	return &Client{
		Session:    s,
		HTTPClient: &http.Client{Timeout: businessTimeout},
	}
}

// Do performs one authenticated request. The token check happens before
// anything goes on the wire; token failures (ErrNotAuthenticated,
// ErrTokenExpired) propagate untouched and nothing is retried here.
// Headers are assembled fresh for each call.
func (c *Client) Do(method, path string, query url.Values, body any) ([]byte, error) {
	token, err := c.Session.Token()
	if err != nil {
		return nil, err
	}

	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	endpoint := c.Session.HQ + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequest(method, endpoint, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, values := range c.Session.Headers() {
		req.Header[key] = values
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.execute(req)
}

// DoRaw performs one authenticated request with a pre-encoded body, for
// uploads that are not JSON.
func (c *Client) DoRaw(method, path string, contentType string, data []byte) ([]byte, error) {
	token, err := c.Session.Token()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(method, c.Session.HQ+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, values := range c.Session.Headers() {
		req.Header[key] = values
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", contentType)

	return c.execute(req)
}

func (c *Client) execute(req *http.Request) ([]byte, error) {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, fmt.Errorf("%w: %s", session.ErrNetworkTimeout, req.URL)
		}
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RemoteError{StatusCode: resp.StatusCode, Body: responseBody}
	}
	return responseBody, nil
}

// decode unmarshals a guarded response into out, tolerating empty bodies.
func decode(data []byte, out any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
