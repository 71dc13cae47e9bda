// Package identity implements the TokenSource port against an OpenID Connect
// provider whose login form has to be scraped from HTML.
package identity

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/impfwatch/impfwatch/internal/domain/model"
	"github.com/impfwatch/impfwatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.TokenSource = (*SessionManager)(nil)

// The provider rejects requests without a browser-looking user agent.
const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:95.0) Gecko/20100101 Firefox/95.0"

// Config holds the identity-provider endpoints and session tuning.
type Config struct {
	// AuthURL is the provider's authorization endpoint serving the login page.
	AuthURL string
	// TokenURL is the provider's token endpoint.
	TokenURL string
	// RedirectURI must match the client registration; the provider redirects
	// here with the authorization code in the URL fragment.
	RedirectURI string
	// ClientID is the public OAuth client id.
	ClientID string
	// Locale is passed as ui_locales on the login page request.
	Locale string
	// ExpiryMargin is how close to expiry a token may get before Token
	// refreshes it synchronously. Defaults to 30s.
	ExpiryMargin time.Duration
	// RefreshInterval is the background refresh period. Chosen conservatively
	// shorter than the provider's 300s token lifetime. Defaults to 270s.
	RefreshInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Locale == "" {
		c.Locale = "de"
	}
	if c.ExpiryMargin <= 0 {
		c.ExpiryMargin = 30 * time.Second
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = 270 * time.Second
	}
	return c
}

// SessionManager owns the credentials and the current token pair. It performs
// the scrape-login-exchange flow on demand and keeps the token alive from a
// background refresh loop. All session state is guarded by a single mutex;
// the foreground request path and the refresh loop both mutate it.
type SessionManager struct {
	creds model.Credentials
	cfg   Config
	oauth *oauth2.Config
	forms driven.FormLocator

	// browser follows redirects, submit does not. Both share one cookie jar
	// so the provider's session cookies survive between the form fetch and
	// the credential submission.
	browser *http.Client
	submit  *http.Client

	mu    sync.Mutex
	token *oauth2.Token
}

// NewSessionManager creates a SessionManager. The first Token call triggers
// the login flow; call Run in a goroutine to keep the session fresh during a
// long polling run.
func NewSessionManager(creds model.Credentials, cfg Config, forms driven.FormLocator) (*SessionManager, error) {
	cfg = cfg.withDefaults()

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	return &SessionManager{
		creds: creds,
		cfg:   cfg,
		forms: forms,
		oauth: &oauth2.Config{
			ClientID:    cfg.ClientID,
			RedirectURL: cfg.RedirectURI,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		browser: &http.Client{Jar: jar},
		submit: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

// Token returns an access token valid at the time of return. It runs the full
// login flow when no session exists and refreshes synchronously when the
// current token is within the expiry margin. A failed synchronous refresh
// leaves the stale token in place; the next 401 forces a reset and re-login.
func (m *SessionManager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token == nil {
		if err := m.login(ctx); err != nil {
			return "", err
		}
	} else if m.expiringSoon() {
		if err := m.refresh(ctx); err != nil {
			slog.Warn("synchronous token refresh failed, returning stale token", "error", err)
		}
	}

	return m.token.AccessToken, nil
}

// Reset discards the token pair and the provider session cookies. The next
// Token call performs a fresh login.
func (m *SessionManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	slog.Debug("resetting session")
	m.token = nil

	if jar, err := cookiejar.New(nil); err == nil {
		m.browser.Jar = jar
		m.submit.Jar = jar
	}
}

// Run refreshes the token on a fixed period until the context is canceled.
// Refresh failures are logged and leave the stale token in place; recovery
// happens through the next 401-driven reset on the request path.
func (m *SessionManager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("session refresh loop stopped")
			return
		case <-ticker.C:
			m.mu.Lock()
			if m.token == nil {
				m.mu.Unlock()
				continue
			}
			if err := m.refresh(ctx); err != nil {
				slog.Error("background token refresh failed", "error", err)
			}
			m.mu.Unlock()
		}
	}
}

// expiringSoon reports whether the token is within the expiry margin. A zero
// expiry means the provider did not state a lifetime; such tokens are used
// until a 401 forces a reset. Caller holds the mutex.
func (m *SessionManager) expiringSoon() bool {
	if m.token.Expiry.IsZero() {
		return false
	}
	return time.Until(m.token.Expiry) < m.cfg.ExpiryMargin
}

// login runs the full flow: fetch the login page, discover the form target,
// submit credentials, pull the authorization code out of the redirect
// fragment, and exchange it for a token pair. Caller holds the mutex.
func (m *SessionManager) login(ctx context.Context) error {
	slog.Debug("logging in")

	action, err := m.loginFormAction(ctx)
	if err != nil {
		return err
	}

	code, err := m.submitCredentials(ctx, action)
	if err != nil {
		return err
	}

	token, err := m.oauth.Exchange(m.oauthContext(ctx), code)
	if err != nil {
		return fmt.Errorf("%w: exchanging authorization code: %v", driven.ErrLoginFailed, err)
	}

	m.token = token
	slog.Info("logged in", "token_expiry", token.Expiry)
	return nil
}

// loginFormAction fetches the provider's login page and extracts the form's
// submit target.
func (m *SessionManager) loginFormAction(ctx context.Context) (string, error) {
	pageURL, err := url.Parse(m.cfg.AuthURL)
	if err != nil {
		return "", fmt.Errorf("parse auth URL: %w", err)
	}

	params := url.Values{
		"client_id":     {m.cfg.ClientID},
		"redirect_uri":  {m.cfg.RedirectURI},
		"state":         {uuid.NewString()},
		"response_mode": {"fragment"},
		"response_type": {"code"},
		"scope":         {"openid"},
		"nonce":         {uuid.NewString()},
		"ui_locales":    {m.cfg.Locale},
	}
	pageURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL.String(), nil)
	if err != nil {
		return "", fmt.Errorf("build login page request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "*/*")

	resp, err := m.browser.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: fetching login page: %v", driven.ErrLoginFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: login page returned status %d", driven.ErrLoginFailed, resp.StatusCode)
	}

	return m.forms.SubmitTarget(resp.Body)
}

// submitCredentials posts the login form without following the redirect and
// extracts the authorization code from the Location header's fragment.
func (m *SessionManager) submitCredentials(ctx context.Context, action string) (string, error) {
	form := url.Values{
		"username":     {m.creds.Username},
		"password":     {m.creds.Password},
		"credentialId": {""},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, action, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.submit.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: submitting credentials: %v", driven.ErrLoginFailed, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 300 || resp.StatusCode >= 400 {
		return "", fmt.Errorf("%w: credential submission returned status %d", driven.ErrLoginFailed, resp.StatusCode)
	}

	location := resp.Header.Get("Location")
	redirect, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("%w: parsing redirect location %q: %v", driven.ErrLoginFailed, location, err)
	}

	fragment, err := url.ParseQuery(redirect.Fragment)
	if err != nil {
		return "", fmt.Errorf("%w: parsing redirect fragment: %v", driven.ErrLoginFailed, err)
	}

	code := fragment.Get("code")
	if code == "" {
		return "", fmt.Errorf("%w: no authorization code in redirect", driven.ErrLoginFailed)
	}

	return code, nil
}

// refresh exchanges the stored refresh token for a new token pair. Caller
// holds the mutex.
func (m *SessionManager) refresh(ctx context.Context) error {
	if m.token.RefreshToken == "" {
		return fmt.Errorf("no refresh token in session")
	}

	slog.Debug("refreshing auth token")

	// A TokenSource seeded with only the refresh token always hits the token
	// endpoint with a refresh_token grant.
	src := m.oauth.TokenSource(m.oauthContext(ctx), &oauth2.Token{RefreshToken: m.token.RefreshToken})

	token, err := src.Token()
	if err != nil {
		return fmt.Errorf("refresh token grant: %w", err)
	}

	m.token = token
	return nil
}

// oauthContext routes the oauth2 library's HTTP calls through the session's
// cookie-carrying client.
func (m *SessionManager) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, m.browser)
}
