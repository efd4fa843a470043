package session

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outpost-sec/cli/internal/keychain"
	"github.com/outpost-sec/cli/internal/tokens"
)

// identityStub is a fake /iam/token endpoint. It records the last request
// body and answers from the configured response.
type identityStub struct {
	status   int
	response map[string]any
	lastBody map[string]string
	calls    int
}

func (s *identityStub) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.calls++
		if r.URL.Path != "/iam/token" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		s.lastBody = map[string]string{}
		_ = json.NewDecoder(r.Body).Decode(&s.lastBody)
		w.WriteHeader(s.status)
		_ = json.NewEncoder(w).Encode(s.response)
	}
}

func testSession(t *testing.T, hq string) *Session {
	t.Helper()
	return &Session{
		Account:    "A1",
		Handle:     "u@x.com",
		HQ:         hq,
		Profile:    "default",
		Cache:      tokens.NewAt(filepath.Join(t.TempDir(), "tokens.json")),
		HTTPClient: &http.Client{Timeout: time.Second},
	}
}

func epochIn(d time.Duration) float64 {
	return float64(time.Now().Add(d).UnixNano()) / float64(time.Second)
}

func TestPasswordLoginStoresToken(t *testing.T) {
	stub := &identityStub{status: http.StatusOK, response: map[string]any{
		"token":         "T1",
		"refresh_token": "R1",
		"expires":       epochIn(time.Hour),
	}}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	s := testSession(t, server.URL)
	require.NoError(t, s.PasswordLogin("pw"))

	assert.Equal(t, "password", stub.lastBody["auth_flow"])
	assert.Equal(t, "u@x.com", stub.lastBody["handle"])
	assert.Equal(t, "pw", stub.lastBody["password"])

	token, err := s.Token()
	require.NoError(t, err)
	assert.Equal(t, "T1", token)
}

func TestPasswordLoginReplacesPriorRecord(t *testing.T) {
	// login response with no refresh_token: nothing from the old record
	// may survive, so a later refresh reports NoRefreshToken instead of
	// exchanging a stale one
	stub := &identityStub{status: http.StatusOK, response: map[string]any{
		"token":   "T2",
		"expires": epochIn(time.Hour),
	}}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	s := testSession(t, server.URL)
	require.NoError(t, s.Cache.Save(s.Handle, s.HQ, tokens.Record{
		Token:        "T1",
		RefreshToken: "R1",
		Expires:      "100",
	}))

	require.NoError(t, s.PasswordLogin("pw"))

	record, ok, err := s.Cache.Get(s.Handle, s.HQ)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "T2", record.Token)
	assert.Empty(t, record.RefreshToken, "login must overwrite wholesale, not merge")

	assert.ErrorIs(t, s.Refresh(), ErrNoRefreshToken)
}

func TestPasswordLoginRejected(t *testing.T) {
	stub := &identityStub{status: http.StatusUnauthorized, response: map[string]any{"error": "bad password"}}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	s := testSession(t, server.URL)
	err := s.PasswordLogin("wrong")

	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "password", rejected.Flow)
	assert.Contains(t, rejected.Body, "bad password")

	_, err = s.Token()
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestPasswordLoginUnconfiguredProfile(t *testing.T) {
	s := testSession(t, "https://unused")
	s.Account = ""
	s.Handle = ""

	err := s.PasswordLogin("pw")
	assert.ErrorIs(t, err, ErrUnconfiguredProfile)
}

func TestTokenBeforeLogin(t *testing.T) {
	s := testSession(t, "https://unused")
	_, err := s.Token()
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestTokenExpired(t *testing.T) {
	s := testSession(t, "https://unused")
	require.NoError(t, s.Cache.Save(s.Handle, s.HQ, tokens.Record{
		Token:   "T1",
		Expires: tokens.Epoch(fmt.Sprintf("%f", epochIn(-time.Minute))),
	}))

	_, err := s.Token()
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestRefreshWithoutRefreshToken(t *testing.T) {
	s := testSession(t, "https://unused")

	// no record at all
	assert.ErrorIs(t, s.Refresh(), ErrNoRefreshToken)

	// record without a refresh_token field
	require.NoError(t, s.Cache.Save(s.Handle, s.HQ, tokens.Record{Token: "T1", Expires: "100"}))
	assert.ErrorIs(t, s.Refresh(), ErrNoRefreshToken)
}

func TestRefreshMergesResponse(t *testing.T) {
	// response omits refresh_token: the stored one must survive the merge
	stub := &identityStub{status: http.StatusOK, response: map[string]any{
		"token":   "T2",
		"expires": epochIn(time.Hour),
	}}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	s := testSession(t, server.URL)
	require.NoError(t, s.Cache.Save(s.Handle, s.HQ, tokens.Record{
		Token:        "T1",
		RefreshToken: "R1",
		Expires:      tokens.Epoch(fmt.Sprintf("%f", epochIn(-time.Minute))),
	}))

	_, err := s.Token()
	require.ErrorIs(t, err, ErrTokenExpired)

	require.NoError(t, s.Refresh())
	assert.Equal(t, "refresh", stub.lastBody["auth_flow"])
	assert.Equal(t, "R1", stub.lastBody["refresh_token"])

	record, ok, err := s.Cache.Get(s.Handle, s.HQ)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "T2", record.Token)
	assert.Equal(t, "R1", record.RefreshToken)

	token, err := s.Token()
	require.NoError(t, err)
	assert.Equal(t, "T2", token)
}

func TestRefreshRejected(t *testing.T) {
	stub := &identityStub{status: http.StatusForbidden, response: map[string]any{"error": "refresh token revoked"}}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	s := testSession(t, server.URL)
	require.NoError(t, s.Cache.Save(s.Handle, s.HQ, tokens.Record{Token: "T1", RefreshToken: "R1", Expires: "100"}))

	err := s.Refresh()
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "refresh", rejected.Flow)
	assert.Contains(t, rejected.Body, "revoked")
}

func TestExchangeTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	s := testSession(t, server.URL)
	s.HTTPClient = &http.Client{Timeout: 50 * time.Millisecond}

	err := s.PasswordLogin("pw")
	assert.ErrorIs(t, err, ErrNetworkTimeout)
}

func TestFromTokenBypassesCache(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	s, err := FromToken("A1", "u@x.com", "https://h", "CI-TOKEN")
	require.NoError(t, err)

	token, err := s.Token()
	require.NoError(t, err)
	assert.Equal(t, "CI-TOKEN", token)
}

func TestFromKeychain(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	kc, err := keychain.New()
	require.NoError(t, err)
	require.NoError(t, kc.WriteProfile(keychain.Profile{
		Name:    "staging",
		Account: "A1",
		Handle:  "u@x.com",
		HQ:      "https://h",
	}))

	s, err := FromKeychain(kc, "staging")
	require.NoError(t, err)
	assert.Equal(t, "A1", s.Account)
	assert.Equal(t, "u@x.com", s.Handle)
	assert.Equal(t, "https://h", s.HQ)
	assert.Equal(t, "staging", s.Profile)

	_, err = FromKeychain(kc, "missing")
	assert.ErrorIs(t, err, keychain.ErrProfileNotFound)
}

// memoryStore is an in-memory TokenStore fake.
type memoryStore struct {
	records map[string]tokens.Record
}

func (m *memoryStore) key(handle, hq string) string { return handle + "|" + hq }

func (m *memoryStore) Get(handle, hq string) (tokens.Record, bool, error) {
	record, ok := m.records[m.key(handle, hq)]
	return record, ok, nil
}

func (m *memoryStore) Save(handle, hq string, record tokens.Record) error {
	return m.put(handle, hq, m.records[m.key(handle, hq)].Merge(record))
}

func (m *memoryStore) Replace(handle, hq string, record tokens.Record) error {
	return m.put(handle, hq, record)
}

func (m *memoryStore) put(handle, hq string, record tokens.Record) error {
	if m.records == nil {
		m.records = map[string]tokens.Record{}
	}
	m.records[m.key(handle, hq)] = record
	return nil
}

func TestSessionWithInMemoryStore(t *testing.T) {
	stub := &identityStub{status: http.StatusOK, response: map[string]any{
		"token":         "T1",
		"refresh_token": "R1",
		"expires":       epochIn(time.Hour),
	}}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	s := testSession(t, server.URL)
	s.Cache = &memoryStore{}

	require.NoError(t, s.PasswordLogin("pw"))
	token, err := s.Token()
	require.NoError(t, err)
	assert.Equal(t, "T1", token)
}

func TestHeadersAreFreshPerCall(t *testing.T) {
	s := testSession(t, "https://h")

	first := s.Headers()
	first.Set("Authorization", "Bearer leaked")

	second := s.Headers()
	assert.Empty(t, second.Get("Authorization"), "header state must not leak across calls")
	assert.Equal(t, "A1", second.Get("account"))
	assert.Equal(t, Product, second.Get("_product"))
}
