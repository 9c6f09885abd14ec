package service

import (
	"github.com/and161185/pollbox/internal/csrf"
	"github.com/and161185/pollbox/internal/errs"
	"github.com/and161185/pollbox/internal/model"
)

// TokenValidator checks a submitted CSRF token against the caller's cookie store.
type TokenValidator interface {
	Validate(store csrf.Store, candidate string) bool
}

// Caller carries what a mutating request presents to the gate.
type Caller struct {
	Tokens   csrf.Store
	Token    string
	Identity *model.Identity // nil when not signed in
}

// Gate is the boundary check run before every poll mutation.
type Gate struct {
	tokens TokenValidator
}

// NewGate constructs a gate over a token validator.
func NewGate(tokens TokenValidator) *Gate {
	return &Gate{tokens: tokens}
}

// Admit runs the token check and then the identity check.
func (g *Gate) Admit(c Caller) (model.Identity, error) {
	if c.Tokens == nil || !g.tokens.Validate(c.Tokens, c.Token) {
		return model.Identity{}, errs.InvalidToken()
	}
	if c.Identity == nil {
		return model.Identity{}, errs.Unauthenticated()
	}
	return *c.Identity, nil
}

// Authorize allows admins and the poll's owner.
func Authorize(id model.Identity, p *model.Poll) error {
	if id.IsAdmin() || id.Owns(p) {
		return nil
	}
	return errs.Forbidden()
}
