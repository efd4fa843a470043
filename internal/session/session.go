// Package session unites a resolved identity (account, handle, API host)
// with the shared token cache and performs the credential exchanges
// against the Outpost identity endpoint.
package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/outpost-sec/cli/internal/keychain"
	"github.com/outpost-sec/cli/internal/tokens"
)

const (
	// DefaultHQ is the production API host.
	DefaultHQ = "https://api.us1.outpost-sec.com"
	// Product identifies this client in every outbound request.
	Product = "go-cli"
	// identityTimeout bounds each token exchange round trip.
	identityTimeout = 10 * time.Second
)

var (
	// ErrUnconfiguredProfile is returned when an authenticated operation is
	// attempted on a profile whose identity fields are still empty.
	ErrUnconfiguredProfile = errors.New("profile is not configured")
	// ErrNotAuthenticated is returned when no token is cached for the
	// session's (handle, hq) pair.
	ErrNotAuthenticated = errors.New("not authenticated, please login to continue")
	// ErrTokenExpired is returned when the cached token is past its expiry.
	ErrTokenExpired = errors.New("token expired, please login or refresh to continue")
	// ErrNoRefreshToken is returned when a refresh is attempted without a
	// stored refresh token.
	ErrNoRefreshToken = errors.New("no refresh token found, please login first to continue")
	// ErrNetworkTimeout is returned when a token exchange exceeds its
	// deadline. Safe to retry at the CLI layer.
	ErrNetworkTimeout = errors.New("network timeout")
)

// RejectedError is returned when the identity endpoint rejects a
// credential exchange. Body carries the remote-provided text verbatim.
type RejectedError struct {
	Flow string // "password" or "refresh"
	Body string
}

func (e *RejectedError) Error() string {
	switch e.Flow {
	case "refresh":
		return fmt.Sprintf("error refreshing token: %s", e.Body)
	default:
		return fmt.Sprintf("error logging in using password: %s", e.Body)
	}
}

// TokenStore is the narrow slice of the token cache the session needs.
// *tokens.Cache implements it; tests may substitute an in-memory fake.
type TokenStore interface {
	Get(handle, hq string) (tokens.Record, bool, error)
	Save(handle, hq string, record tokens.Record) error
	Replace(handle, hq string, record tokens.Record) error
}

// Session is the in-memory identity for one CLI invocation. It owns no
// persistent state of its own; tokens live in the shared cache.
type Session struct {
	Account string
	Handle  string
	HQ      string
	// Profile is the keychain profile this session was resolved from, or
	// empty when the identity was supplied explicitly.
	Profile string

	// explicitToken, when set, bypasses the cache entirely (CI use).
	explicitToken string

	Cache      TokenStore
	HTTPClient *http.Client
}

// FromKeychain resolves a session from a named keychain profile.
func FromKeychain(kc *keychain.Keychain, profile string) (*Session, error) {
	p, err := kc.GetProfile(profile)
	if err != nil {
		return nil, err
	}
	s, err := fromProfile(p)
	if err != nil {
		return nil, err
	}
	s.Profile = p.Name
	return s, nil
}

// FromParams builds a session from explicit identity fields, bypassing
// the keychain.
func FromParams(account, handle, hq string) (*Session, error) {
	return fromProfile(keychain.Profile{Account: account, Handle: handle, HQ: hq})
}

// FromToken builds a session around an out-of-band token, for
// non-interactive use. The token is never persisted to the cache.
func FromToken(account, handle, hq, token string) (*Session, error) {
	s, err := fromProfile(keychain.Profile{Account: account, Handle: handle, HQ: hq})
	if err != nil {
		return nil, err
	}
	s.explicitToken = token
	return s, nil
}

func fromProfile(p keychain.Profile) (*Session, error) {
	cache, err := tokens.New()
	if err != nil {
		return nil, err
	}
	if err := cache.Ensure(); err != nil {
		return nil, err
	}
	hq := p.HQ
	if hq == "" {
		hq = DefaultHQ
	}
	return &Session{
		Account:    p.Account,
		Handle:     p.Handle,
		HQ:         hq,
		Cache:      cache,
		HTTPClient: &http.Client{Timeout: identityTimeout},
	}, nil
}

// Headers returns a fresh base header set for one outbound request:
// the account identifier plus the product marker. Callers merge into
// this copy; nothing here is shared between requests.
func (s *Session) Headers() http.Header {
	h := http.Header{}
	h.Set("account", s.Account)
	h.Set("_product", Product)
	return h
}

// verifyProfile fails fast when the session is bound to a profile whose
// identity was never configured.
func (s *Session) verifyProfile() error {
	if s.Profile != "" && s.Handle == "" && s.Account == "" {
		return fmt.Errorf("%w: please configure your %s profile to continue", ErrUnconfiguredProfile, s.Profile)
	}
	return nil
}

// PasswordLogin exchanges the handle and password for a fresh token
// record. The record replaces any prior one wholesale; nothing from an
// older login survives a new one.
func (s *Session) PasswordLogin(password string) error {
	if err := s.verifyProfile(); err != nil {
		return err
	}
	record, err := s.exchange(map[string]string{
		"auth_flow": "password",
		"handle":    s.Handle,
		"password":  password,
	})
	if err != nil {
		return err
	}
	return s.Cache.Replace(s.Handle, s.HQ, record)
}

// Refresh exchanges the stored refresh token for a new token record. The
// response's fields are merged over the prior record, so a response that
// omits refresh_token keeps the old one.
func (s *Session) Refresh() error {
	if err := s.verifyProfile(); err != nil {
		return err
	}
	existing, ok, err := s.Cache.Get(s.Handle, s.HQ)
	if err != nil {
		return err
	}
	if !ok || existing.RefreshToken == "" {
		return ErrNoRefreshToken
	}
	record, err := s.exchange(map[string]string{
		"auth_flow":     "refresh",
		"handle":        s.Handle,
		"refresh_token": existing.RefreshToken,
	})
	if err != nil {
		return err
	}
	return s.Cache.Save(s.Handle, s.HQ, record)
}

// Token returns the currently valid bearer token. It never refreshes:
// expiry is reported to the caller, who decides between login and
// refresh. Sessions built with FromToken return their token as-is.
func (s *Session) Token() (string, error) {
	if s.explicitToken != "" {
		return s.explicitToken, nil
	}
	record, ok, err := s.Cache.Get(s.Handle, s.HQ)
	if err != nil {
		return "", err
	}
	if !ok || record.Token == "" {
		return "", ErrNotAuthenticated
	}
	expires, err := record.Expires.Time()
	if err != nil {
		return "", err
	}
	if !time.Now().UTC().Before(expires) {
		return "", ErrTokenExpired
	}
	return record.Token, nil
}

// exchange performs one POST {hq}/iam/token round trip. The flow is
// selected by the request body; non-2xx responses surface the remote
// text verbatim.
func (s *Session) exchange(body map[string]string) (tokens.Record, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return tokens.Record{}, fmt.Errorf("failed to marshal token request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, s.HQ+"/iam/token", bytes.NewReader(payload))
	if err != nil {
		return tokens.Record{}, fmt.Errorf("failed to create token request: %w", err)
	}
	for key, values := range s.Headers() {
		req.Header[key] = values
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return tokens.Record{}, fmt.Errorf("%w: %s/iam/token", ErrNetworkTimeout, s.HQ)
		}
		return tokens.Record{}, fmt.Errorf("failed to reach identity endpoint: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return tokens.Record{}, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return tokens.Record{}, &RejectedError{Flow: body["auth_flow"], Body: string(respBody)}
	}

	var record tokens.Record
	if err := json.Unmarshal(respBody, &record); err != nil {
		return tokens.Record{}, fmt.Errorf("failed to parse token response: %w", err)
	}
	return record, nil
}
