package driven

import "io"

// FormLocator discovers the submit target of the identity provider's login
// form inside a fetched HTML page. Kept behind a port because the discovery is
// coupled to third-party markup and needs swapping in tests.
type FormLocator interface {
	// SubmitTarget returns the action URL of the login form, or
	// ErrLoginFormNotFound when the page no longer carries it.
	SubmitTarget(page io.Reader) (string, error)
}
