package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/teemow/inboxreply/internal/logging"
)

// DefaultAccount is the account name used when none is configured.
const DefaultAccount = "default"

// DefaultRedirectURL is the loopback redirect registered for desktop OAuth
// clients. Nothing listens on it; the user copies the code from the address bar.
const DefaultRedirectURL = "http://localhost"

// ErrNoToken is returned when an account has not been authorized yet.
var ErrNoToken = errors.New("no Google OAuth token found")

var accountNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// RefreshRecorder receives the outcome of token refreshes.
type RefreshRecorder interface {
	RecordOAuthTokenRefresh(ctx context.Context, result string)
}

// Config configures an Auth.
type Config struct {
	ClientID     string
	ClientSecret string

	// TokenDir holds one token file per account. Defaults to DefaultTokenDir().
	TokenDir string

	// RedirectURL defaults to DefaultRedirectURL.
	RedirectURL string

	// Endpoint defaults to Google's OAuth endpoint.
	Endpoint oauth2.Endpoint

	// Scopes defaults to DefaultOAuthScopes.
	Scopes []string

	Metrics RefreshRecorder
	Logger  *slog.Logger
}

// Auth manages per-account OAuth tokens stored as JSON files.
type Auth struct {
	conf    *oauth2.Config
	dir     string
	metrics RefreshRecorder
	logger  *slog.Logger

	// Guards token file writes from concurrent refreshes.
	mu sync.Mutex
}

// NewAuth creates an Auth from cfg, filling defaults.
func NewAuth(cfg Config) *Auth {
	if cfg.TokenDir == "" {
		cfg.TokenDir = DefaultTokenDir()
	}
	if cfg.RedirectURL == "" {
		cfg.RedirectURL = DefaultRedirectURL
	}
	if cfg.Endpoint.TokenURL == "" {
		cfg.Endpoint = google.Endpoint
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultOAuthScopes
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Auth{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     cfg.Endpoint,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
		},
		dir:     cfg.TokenDir,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}
}

// DefaultTokenDir returns the per-user cache directory for inboxreply tokens.
func DefaultTokenDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "inboxreply")
}

// TokenFilePath returns the token file path for account.
func (a *Auth) TokenFilePath(account string) string {
	return filepath.Join(a.dir, "google-"+account+".token")
}

// HasTokenForAccount reports whether a token file exists for account.
func (a *Auth) HasTokenForAccount(account string) bool {
	if validateAccountName(account) != nil {
		return false
	}
	_, err := os.Stat(a.TokenFilePath(account))
	return err == nil
}

// AuthURLForAccount returns the consent URL the user has to visit.
// Offline access is requested so that a refresh token is issued.
func (a *Auth) AuthURLForAccount(account string) string {
	return a.conf.AuthCodeURL(account, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
}

// SaveTokenForAccount exchanges an authorization code and stores the token.
// input may be the bare code or the full URL the browser was redirected to.
func (a *Auth) SaveTokenForAccount(ctx context.Context, account, input string) error {
	if err := validateAccountName(account); err != nil {
		return err
	}

	code := extractAuthCode(input)
	if code == "" {
		return errors.New("authorization code is empty")
	}

	tok, err := a.conf.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to exchange auth code: %w", err)
	}

	return a.writeToken(account, tok)
}

// TokenSourceForAccount returns a token source that refreshes the stored token
// as needed and writes refreshed tokens back to disk.
func (a *Auth) TokenSourceForAccount(ctx context.Context, account string) (oauth2.TokenSource, error) {
	if err := validateAccountName(account); err != nil {
		return nil, err
	}

	tok, err := a.readToken(account)
	if err != nil {
		return nil, err
	}

	return &persistingTokenSource{
		ctx:     ctx,
		auth:    a,
		account: account,
		base:    a.conf.TokenSource(ctx, tok),
		last:    tok.AccessToken,
	}, nil
}

// HTTPClientForAccount returns an HTTP client that authenticates as account.
func (a *Auth) HTTPClientForAccount(ctx context.Context, account string) (*http.Client, error) {
	ts, err := a.TokenSourceForAccount(ctx, account)
	if err != nil {
		return nil, err
	}
	return oauth2.NewClient(ctx, ts), nil
}

// GetAuthenticationErrorMessage returns the hint shown when an account has no
// usable token.
func GetAuthenticationErrorMessage(account string) string {
	return fmt.Sprintf("Google OAuth token not found or invalid for account %q. Run 'inboxreply auth --account %s' to authorize access.", account, account)
}

func (a *Auth) readToken(account string) (*oauth2.Token, error) {
	data, err := os.ReadFile(a.TokenFilePath(account))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w for account %q", ErrNoToken, account)
		}
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("invalid token file for account %q: %w", account, err)
	}
	if tok.RefreshToken == "" && tok.AccessToken == "" {
		return nil, fmt.Errorf("%w for account %q", ErrNoToken, account)
	}
	return &tok, nil
}

func (a *Auth) writeToken(account string, tok *oauth2.Token) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(a.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}

	path := a.TokenFilePath(account)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace token file: %w", err)
	}
	return nil
}

func (a *Auth) recordRefresh(ctx context.Context, result string) {
	if a.metrics != nil {
		a.metrics.RecordOAuthTokenRefresh(ctx, result)
	}
}

// persistingTokenSource saves every newly issued access token.
type persistingTokenSource struct {
	ctx     context.Context
	auth    *Auth
	account string
	base    oauth2.TokenSource

	mu   sync.Mutex
	last string
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		s.auth.recordRefresh(s.ctx, "failure")
		s.auth.logger.Warn("OAuth token refresh failed",
			logging.Account(s.account),
			logging.Err(err))
		return nil, fmt.Errorf("%s: %w", GetAuthenticationErrorMessage(s.account), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken == s.last {
		return tok, nil
	}
	s.last = tok.AccessToken
	s.auth.recordRefresh(s.ctx, "success")

	if err := s.auth.writeToken(s.account, tok); err != nil {
		// The refreshed token is still usable for this process.
		s.auth.logger.Warn("failed to persist refreshed token",
			logging.Account(s.account),
			logging.Err(err))
	} else {
		s.auth.logger.Debug("OAuth token refreshed",
			logging.Account(s.account),
			slog.String("token", logging.SanitizeToken(tok.AccessToken)))
	}
	return tok, nil
}

// validateAccountName accepts letters, digits, hyphens and underscores only,
// since the name becomes part of a file name.
func validateAccountName(account string) error {
	if account == "" {
		return errors.New("account name cannot be empty")
	}
	if !accountNamePattern.MatchString(account) {
		return fmt.Errorf("invalid account name %q: only letters, digits, '-' and '_' are allowed", account)
	}
	return nil
}

// extractAuthCode returns the code query parameter when input is a redirect
// URL, otherwise input itself.
func extractAuthCode(input string) string {
	input = strings.TrimSpace(input)
	if !strings.Contains(input, "code=") {
		return input
	}
	u, err := url.Parse(input)
	if err != nil {
		return input
	}
	if code := u.Query().Get("code"); code != "" {
		return code
	}
	return input
}
