package driven

import (
	"context"
	"errors"
)

// Sentinel errors returned by TokenSource implementations.
var (
	// ErrLoginFormNotFound indicates the identity provider's login page no
	// longer contains the expected form. Scraping is coupled to the
	// provider's markup, so this is fatal rather than retryable.
	ErrLoginFormNotFound = errors.New("login form not found on provider page")

	// ErrLoginFailed indicates the credential submission or code exchange
	// was rejected. There is no recovery path for bad credentials.
	ErrLoginFailed = errors.New("login failed")
)

// TokenSource produces a currently-valid bearer token, hiding the login and
// refresh protocol from callers. Implementations must be safe for concurrent
// use: the background refresh task and the polling loop share one session.
type TokenSource interface {
	// Token returns an access token valid at the time of return. It logs in
	// when no session exists and refreshes synchronously when the current
	// token is close to expiry. A token can still lapse between return and
	// use; callers treat a 401 on the subsequent call as the recovery
	// signal, not as fatal.
	Token(ctx context.Context) (string, error)

	// Reset discards the session. The next Token call performs a full login.
	Reset()
}
