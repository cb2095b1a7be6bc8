package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type refreshCounter struct {
	mu      sync.Mutex
	results []string
}

func (r *refreshCounter) RecordOAuthTokenRefresh(_ context.Context, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

// newTokenServer serves the OAuth token endpoint and counts requests.
func newTokenServer(t *testing.T, status int) (*httptest.Server, *int) {
	t.Helper()
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		access := "access-from-" + r.Form.Get("grant_type")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  access,
			"token_type":    "Bearer",
			"refresh_token": "refresh-1",
			"expires_in":    3600,
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestAuth(t *testing.T, tokenURL string, rec RefreshRecorder) *Auth {
	t.Helper()
	return NewAuth(Config{
		ClientID:     "client",
		ClientSecret: "secret",
		TokenDir:     t.TempDir(),
		Endpoint:     oauth2.Endpoint{AuthURL: "https://accounts.example.com/auth", TokenURL: tokenURL},
		Metrics:      rec,
	})
}

func writeTokenFile(t *testing.T, a *Auth, account string, tok *oauth2.Token) {
	t.Helper()
	require.NoError(t, a.writeToken(account, tok))
}

func TestValidateAccountName(t *testing.T) {
	tests := []struct {
		name    string
		account string
		wantErr bool
	}{
		{"valid default", "default", false},
		{"valid with hyphen", "work-email", false},
		{"valid with underscore", "personal_email", false},
		{"valid alphanumeric", "account123", false},
		{"empty", "", true},
		{"with spaces", "my account", true},
		{"with special chars", "account@work", true},
		{"with slash", "work/personal", true},
		{"with dot", "work.email", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAccountName(tt.account)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTokenFilePath(t *testing.T) {
	a := NewAuth(Config{TokenDir: "/tmp/tokens"})
	assert.Equal(t, filepath.Join("/tmp/tokens", "google-work.token"), a.TokenFilePath("work"))
}

func TestHasTokenForAccount(t *testing.T) {
	a := newTestAuth(t, "http://unused", nil)

	assert.False(t, a.HasTokenForAccount("invalid account"))
	assert.False(t, a.HasTokenForAccount(""))
	assert.False(t, a.HasTokenForAccount(DefaultAccount))

	writeTokenFile(t, a, DefaultAccount, &oauth2.Token{AccessToken: "a", RefreshToken: "r"})
	assert.True(t, a.HasTokenForAccount(DefaultAccount))
}

func TestAuthURLForAccount(t *testing.T) {
	a := newTestAuth(t, "http://unused", nil)

	u, err := url.Parse(a.AuthURLForAccount("work"))
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "client", q.Get("client_id"))
	assert.Equal(t, "work", q.Get("state"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, DefaultRedirectURL, q.Get("redirect_uri"))
	assert.Contains(t, q.Get("scope"), "gmail.modify")
}

func TestSaveTokenForAccount(t *testing.T) {
	srv, calls := newTokenServer(t, http.StatusOK)
	a := newTestAuth(t, srv.URL, nil)

	err := a.SaveTokenForAccount(context.Background(), "work", "http://localhost/?state=work&code=abc123&scope=x")
	require.NoError(t, err)
	assert.Equal(t, 1, *calls)

	tok, err := a.readToken("work")
	require.NoError(t, err)
	assert.Equal(t, "access-from-authorization_code", tok.AccessToken)
	assert.Equal(t, "refresh-1", tok.RefreshToken)

	info, err := os.Stat(a.TokenFilePath("work"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestSaveTokenForAccount_Errors(t *testing.T) {
	srv, _ := newTokenServer(t, http.StatusBadRequest)
	a := newTestAuth(t, srv.URL, nil)

	assert.Error(t, a.SaveTokenForAccount(context.Background(), "bad name", "code"))
	assert.Error(t, a.SaveTokenForAccount(context.Background(), "work", "   "))
	assert.Error(t, a.SaveTokenForAccount(context.Background(), "work", "code"))
	assert.False(t, a.HasTokenForAccount("work"))
}

func TestTokenSourceForAccount_MissingToken(t *testing.T) {
	a := newTestAuth(t, "http://unused", nil)

	_, err := a.TokenSourceForAccount(context.Background(), "work")
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestTokenSourceForAccount_RefreshesAndPersists(t *testing.T) {
	srv, calls := newTokenServer(t, http.StatusOK)
	rec := &refreshCounter{}
	a := newTestAuth(t, srv.URL, rec)

	writeTokenFile(t, a, "work", &oauth2.Token{
		AccessToken:  "stale",
		RefreshToken: "refresh-0",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(-time.Hour),
	})

	ts, err := a.TokenSourceForAccount(context.Background(), "work")
	require.NoError(t, err)

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "access-from-refresh_token", tok.AccessToken)

	// A second call reuses the still-valid token.
	_, err = ts.Token()
	require.NoError(t, err)
	assert.Equal(t, 1, *calls)
	assert.Equal(t, []string{"success"}, rec.results)

	stored, err := a.readToken("work")
	require.NoError(t, err)
	assert.Equal(t, "access-from-refresh_token", stored.AccessToken)
}

func TestTokenSourceForAccount_RefreshFailure(t *testing.T) {
	srv, _ := newTokenServer(t, http.StatusBadRequest)
	rec := &refreshCounter{}
	a := newTestAuth(t, srv.URL, rec)

	writeTokenFile(t, a, "work", &oauth2.Token{
		AccessToken:  "stale",
		RefreshToken: "revoked",
		Expiry:       time.Now().Add(-time.Hour),
	})

	ts, err := a.TokenSourceForAccount(context.Background(), "work")
	require.NoError(t, err)

	_, err = ts.Token()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inboxreply auth --account work")
	assert.Equal(t, []string{"failure"}, rec.results)
}

func TestGetAuthenticationErrorMessage(t *testing.T) {
	for _, account := range []string{"default", "work"} {
		msg := GetAuthenticationErrorMessage(account)
		assert.Contains(t, msg, account)
		assert.Contains(t, msg, "OAuth")
	}
}

func TestExtractAuthCode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"abc", "abc"},
		{"  abc \n", "abc"},
		{"http://localhost/?code=4/xyz&scope=a", "4/xyz"},
		{"http://localhost/?state=1", "http://localhost/?state=1"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, extractAuthCode(tt.in))
		})
	}
}
