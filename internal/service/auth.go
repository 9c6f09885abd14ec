// Package service contains application services: authentication, the request
// gate and poll operations.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	pkgcrypto "github.com/and161185/pollbox/internal/crypto"
	"github.com/and161185/pollbox/internal/errs"
	"github.com/and161185/pollbox/internal/limiter"
	"github.com/and161185/pollbox/internal/model"
	"github.com/and161185/pollbox/internal/repository"
)

// Sign-up messages.
const (
	MsgInvalidEmail     = "invalid email address"
	MsgPasswordTooShort = "password must be at least 8 characters"
	MsgPasswordTooLong  = "password must be 128 characters or less"
	MsgUserExists       = "user already registered"
)

// AuthEvent is delivered to OnAuthStateChange listeners.
type AuthEvent int

const (
	SignedIn AuthEvent = iota + 1
	SignedOut
)

func (e AuthEvent) String() string {
	switch e {
	case SignedIn:
		return "SIGNED_IN"
	case SignedOut:
		return "SIGNED_OUT"
	}
	return "UNKNOWN"
}

// AuthListener observes sign-in and sign-out. It runs synchronously.
type AuthListener func(ev AuthEvent, id model.Identity)

// AuthService defines account and session operations.
type AuthService interface {
	// SignUp creates an account with a hashed password.
	SignUp(ctx context.Context, email, password string, metadata map[string]string) (model.Identity, error)
	// SignIn applies rate limiting by (email, ip) and issues an access token.
	SignIn(ctx context.Context, email, password, ip string) (model.Session, error)
	// SignOut ends the session from the service's point of view.
	SignOut(ctx context.Context, id model.Identity) error
	// GetUser resolves the identity behind an access token.
	GetUser(ctx context.Context, token string) (model.Identity, error)
	// GetSession returns the token's expiry together with its identity.
	GetSession(ctx context.Context, token string) (model.Session, error)
	// OnAuthStateChange registers a listener and returns its unsubscribe func.
	OnAuthStateChange(fn AuthListener) (unsubscribe func())
}

type AuthServiceImpl struct {
	users     repository.UserRepository
	signKey   []byte
	accessTTL time.Duration
	lim       limiter.Limiter
	admins    map[string]struct{}
	validate  *validator.Validate
	now       func() time.Time
	verify    func(password, encoded string) (bool, error)

	mu        sync.Mutex
	listeners map[int]AuthListener
	nextID    int
}

var _ AuthService = (*AuthServiceImpl)(nil)

// NewAuthService constructs AuthService with required dependencies.
// Accounts whose email is in admins are created with the admin role.
func NewAuthService(users repository.UserRepository, signKey []byte, accessTTL time.Duration, lim limiter.Limiter, admins []string) *AuthServiceImpl {
	set := make(map[string]struct{}, len(admins))
	for _, a := range admins {
		if a = normalizeEmail(a); a != "" {
			set[a] = struct{}{}
		}
	}
	return &AuthServiceImpl{
		users:     users,
		signKey:   signKey,
		accessTTL: accessTTL,
		lim:       lim,
		admins:    set,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		now:       time.Now,
		verify:    pkgcrypto.VerifyPassword,
		listeners: make(map[int]AuthListener),
	}
}

// dummyHash is verified against when the email is unknown.
var dummyHash = sync.OnceValue(func() string {
	h, err := pkgcrypto.HashPassword("no such account")
	if err != nil {
		panic(fmt.Sprintf("dummy password hash: %v", err))
	}
	return h
})

type signUpInput struct {
	Email    string `validate:"required,email,max=254"`
	Password string `validate:"required,min=8,max=128"`
}

// SignUp creates a new user record.
func (s *AuthServiceImpl) SignUp(ctx context.Context, email, password string, metadata map[string]string) (model.Identity, error) {
	in := signUpInput{Email: normalizeEmail(email), Password: password}
	if err := s.validate.Struct(in); err != nil {
		return model.Identity{}, signUpError(err)
	}
	uid, err := uuid.NewV4()
	if err != nil {
		return model.Identity{}, err
	}
	hash, err := pkgcrypto.HashPassword(password)
	if err != nil {
		return model.Identity{}, err
	}
	role := model.RoleUser
	if _, ok := s.admins[in.Email]; ok {
		role = model.RoleAdmin
	}
	u := &model.User{ID: uid, Email: in.Email, PwdHash: hash, Role: role, Metadata: metadata}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, errs.ErrAlreadyExists) {
			return model.Identity{}, errs.Wrap(errs.KindValidation, MsgUserExists, err)
		}
		return model.Identity{}, errs.Upstream(err)
	}
	return u.Identity(), nil
}

func signUpError(err error) error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return errs.Validation(err.Error())
	}
	fe := ve[0]
	switch {
	case fe.Field() == "Email":
		return errs.Validation(MsgInvalidEmail)
	case fe.Tag() == "max":
		return errs.Validation(MsgPasswordTooLong)
	default:
		return errs.Validation(MsgPasswordTooShort)
	}
}

// SignIn authenticates with rate limiting by (email, ip).
func (s *AuthServiceImpl) SignIn(ctx context.Context, email, password, ip string) (model.Session, error) {
	email = normalizeEmail(email)
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, email, ipHash)
	if err != nil {
		return model.Session{}, errs.Upstream(err)
	}
	if !allowed {
		return model.Session{}, errs.Wrap(errs.KindRateLimited, errs.MsgTooManyAttempts, errs.ErrRateLimited)
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return model.Session{}, errs.Upstream(err)
	}
	// Unknown emails pay for a full Argon2 verification too.
	hash := dummyHash()
	if u != nil {
		hash = u.PwdHash
	}
	ok, err := s.verify(password, hash)
	if err != nil {
		return model.Session{}, fmt.Errorf("verify password: %w", err)
	}
	if !ok || u == nil {
		// Record failure; if threshold reached, report rate-limited.
		if blocked, _, ferr := s.lim.Failure(ctx, email, ipHash); ferr == nil && blocked {
			return model.Session{}, errs.Wrap(errs.KindRateLimited, errs.MsgTooManyAttempts, errs.ErrRateLimited)
		}
		// unknown email and wrong password look the same
		return model.Session{}, errs.Wrap(errs.KindUnauthenticated, errs.MsgBadCredentials, errs.ErrUnauthorized)
	}

	// best-effort reset
	_ = s.lim.Success(ctx, email, ipHash)

	id := u.Identity()
	access, exp, err := s.issueAccessToken(id)
	if err != nil {
		return model.Session{}, err
	}
	s.emit(SignedIn, id)
	return model.Session{AccessToken: access, ExpiresAt: exp, User: id}, nil
}

// SignOut notifies listeners. Tokens are stateless; the transport drops the cookie.
func (s *AuthServiceImpl) SignOut(_ context.Context, id model.Identity) error {
	s.emit(SignedOut, id)
	return nil
}

// GetUser verifies the token and reloads the user so role changes apply immediately.
func (s *AuthServiceImpl) GetUser(ctx context.Context, token string) (model.Identity, error) {
	claims, err := s.parse(token)
	if err != nil {
		return model.Identity{}, err
	}
	uid, err := uuid.FromString(claims.Subject)
	if err != nil {
		return model.Identity{}, errs.Unauthenticated()
	}
	u, err := s.users.GetByID(ctx, uid)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.Identity{}, errs.Unauthenticated()
		}
		return model.Identity{}, errs.Upstream(err)
	}
	return u.Identity(), nil
}

// GetSession returns the session described by token.
func (s *AuthServiceImpl) GetSession(ctx context.Context, token string) (model.Session, error) {
	claims, err := s.parse(token)
	if err != nil {
		return model.Session{}, err
	}
	id, err := s.GetUser(ctx, token)
	if err != nil {
		return model.Session{}, err
	}
	return model.Session{AccessToken: token, ExpiresAt: claims.ExpiresAt.Time, User: id}, nil
}

// OnAuthStateChange registers fn until the returned func is called.
func (s *AuthServiceImpl) OnAuthStateChange(fn AuthListener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *AuthServiceImpl) emit(ev AuthEvent, id model.Identity) {
	s.mu.Lock()
	fns := make([]AuthListener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(ev, id)
	}
}

type accessClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// issueAccessToken creates a signed HS256 JWT for the identity.
func (s *AuthServiceImpl) issueAccessToken(id model.Identity) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.accessTTL)
	claims := accessClaims{
		Email: id.Email,
		Role:  string(id.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.signKey)
	return signed, exp, err
}

func (s *AuthServiceImpl) parse(token string) (*accessClaims, error) {
	if token == "" {
		return nil, errs.Unauthenticated()
	}
	var claims accessClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.signKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnauthenticated, errs.MsgNotLoggedIn, err)
	}
	return &claims, nil
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
