package service

import (
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/pollbox/internal/csrf"
	"github.com/and161185/pollbox/internal/errs"
	"github.com/and161185/pollbox/internal/model"
)

func newIdentity(role model.Role) *model.Identity {
	return &model.Identity{ID: uuid.Must(uuid.NewV4()), Email: "u@example.com", Role: role}
}

func TestGate_Admit_Order(t *testing.T) {
	t.Parallel()

	tokens := csrf.NewService(false)
	g := NewGate(tokens)
	jar := csrf.NewMemoryStore()
	tok, err := tokens.Issue(jar)
	require.NoError(t, err)
	alice := newIdentity(model.RoleUser)

	// token is checked before identity
	_, err = g.Admit(Caller{Tokens: jar, Token: "", Identity: nil})
	require.Equal(t, errs.KindInvalidToken, errs.KindOf(err))
	require.EqualError(t, err, errs.MsgInvalidToken)

	_, err = g.Admit(Caller{Tokens: jar, Token: "nope", Identity: alice})
	require.Equal(t, errs.KindInvalidToken, errs.KindOf(err))

	_, err = g.Admit(Caller{Tokens: nil, Token: tok, Identity: alice})
	require.Equal(t, errs.KindInvalidToken, errs.KindOf(err))

	_, err = g.Admit(Caller{Tokens: jar, Token: tok})
	require.Equal(t, errs.KindUnauthenticated, errs.KindOf(err))
	require.EqualError(t, err, errs.MsgNotLoggedIn)

	id, err := g.Admit(Caller{Tokens: jar, Token: tok, Identity: alice})
	require.NoError(t, err)
	require.Equal(t, *alice, id)
}

func TestAuthorize_OwnerAdminOther(t *testing.T) {
	t.Parallel()

	owner := newIdentity(model.RoleUser)
	other := newIdentity(model.RoleUser)
	admin := newIdentity(model.RoleAdmin)
	p := &model.Poll{ID: uuid.Must(uuid.NewV4()), UserID: owner.ID}

	require.NoError(t, Authorize(*owner, p))
	require.NoError(t, Authorize(*admin, p))

	err := Authorize(*other, p)
	require.Equal(t, errs.KindForbidden, errs.KindOf(err))
	require.EqualError(t, err, errs.MsgForbidden)
}
