package model

// Credentials holds the identity-provider login. Set once at construction,
// never mutated.
type Credentials struct {
	Username string
	Password string
}
