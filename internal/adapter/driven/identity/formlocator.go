package identity

import (
	"fmt"
	"io"

	"golang.org/x/net/html"

	"github.com/impfwatch/impfwatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.FormLocator = (*KeycloakForms)(nil)

// KeycloakForms locates the login form on a Keycloak login page by element id
// and extracts its action URL. The id is the one piece of provider markup the
// session manager depends on.
type KeycloakForms struct {
	FormID string
}

// NewKeycloakForms creates a locator for the provider's standard login form.
func NewKeycloakForms() *KeycloakForms {
	return &KeycloakForms{FormID: "kc-form-login"}
}

// SubmitTarget parses the page and returns the action attribute of the form
// with the configured id. Returns driven.ErrLoginFormNotFound when the form is
// absent or carries no action.
func (k *KeycloakForms) SubmitTarget(page io.Reader) (string, error) {
	doc, err := html.Parse(page)
	if err != nil {
		return "", fmt.Errorf("parse login page: %w", err)
	}

	action, found := findFormAction(doc, k.FormID)
	if !found || action == "" {
		return "", driven.ErrLoginFormNotFound
	}

	return action, nil
}

// findFormAction walks the node tree depth-first looking for a form element
// with the given id.
func findFormAction(n *html.Node, id string) (string, bool) {
	if n.Type == html.ElementNode && n.Data == "form" {
		var nodeID, action string
		for _, attr := range n.Attr {
			switch attr.Key {
			case "id":
				nodeID = attr.Val
			case "action":
				action = attr.Val
			}
		}
		if nodeID == id {
			return action, true
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if action, found := findFormAction(c, id); found {
			return action, true
		}
	}

	return "", false
}
