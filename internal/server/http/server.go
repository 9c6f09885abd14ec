// Package httpserver exposes the poll service, CSRF issuance and auth over HTTP.
package httpserver

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/and161185/pollbox/internal/csrf"
	"github.com/and161185/pollbox/internal/live"
	"github.com/and161185/pollbox/internal/obs"
	"github.com/and161185/pollbox/internal/service"
)

// Deps are the collaborators the HTTP layer dispatches to.
type Deps struct {
	Auth    service.AuthService
	Polls   service.PollService
	Tokens  *csrf.Service
	Hub     *live.Hub
	Metrics *obs.Metrics
	Ready   func(ctx context.Context) error
	Log     *zap.Logger
}

// Options tune transport behavior.
type Options struct {
	Secure       bool // Secure flag on session cookies
	RateBurst    int
	RatePerSec   float64
	MaxBodyBytes int64
}

const defaultMaxBody = 64 << 10

// Server wires handlers and middleware.
type Server struct {
	auth     service.AuthService
	polls    service.PollService
	tokens   *csrf.Service
	hub      *live.Hub
	metrics  *obs.Metrics
	ready    func(ctx context.Context) error
	log      *zap.Logger
	opts     Options
	limiter  *ipLimiter
	upgrader websocket.Upgrader
}

// New constructs a Server. Zero option values take defaults.
func New(d Deps, o Options) *Server {
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = defaultMaxBody
	}
	if o.RateBurst <= 0 {
		o.RateBurst = 20
	}
	if o.RatePerSec <= 0 {
		o.RatePerSec = 10
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = obs.New("dev")
	}
	if d.Hub == nil {
		d.Hub = live.NewHub(d.Log, nil)
	}
	return &Server{
		auth:     d.Auth,
		polls:    d.Polls,
		tokens:   d.Tokens,
		hub:      d.Hub,
		metrics:  d.Metrics,
		ready:    d.Ready,
		log:      d.Log,
		opts:     o,
		limiter:  newIPLimiter(o.RatePerSec, o.RateBurst),
		upgrader: live.Upgrader(nil),
	}
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/csrf", s.handleCSRF)

	mux.HandleFunc("POST /api/auth/signup", s.handleSignUp)
	mux.HandleFunc("POST /api/auth/signin", s.handleSignIn)
	mux.HandleFunc("POST /api/auth/signout", s.handleSignOut)
	mux.HandleFunc("GET /api/auth/user", s.handleUser)
	mux.HandleFunc("GET /api/auth/session", s.handleSession)

	mux.HandleFunc("GET /api/polls", s.handleListPolls)
	mux.HandleFunc("POST /api/polls", s.handleCreatePoll)
	mux.HandleFunc("GET /api/polls/{id}", s.handleGetPoll)
	mux.HandleFunc("PUT /api/polls/{id}", s.handleUpdatePoll)
	mux.HandleFunc("DELETE /api/polls/{id}", s.handleDeletePoll)
	mux.HandleFunc("POST /api/polls/{id}/votes", s.handleVote)
	mux.HandleFunc("GET /api/polls/{id}/results", s.handleResults)
	mux.HandleFunc("GET /api/polls/{id}/my-vote", s.handleMyVote)
	mux.HandleFunc("GET /api/polls/{id}/live", s.handleLive)

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.Handle("GET /metrics", s.metrics.Handler())

	var h http.Handler = mux
	h = s.authenticate(h)
	h = maxBody(s.opts.MaxBodyBytes)(h)
	h = s.rateLimit(h)
	h = securityHeaders(h)
	h = s.metrics.Instrument(h)
	h = recoverer(s.log)(h)
	h = logging(s.log)(h)
	h = requestID(h)
	return h
}

// caller builds the gate input for a mutating request.
func (s *Server) caller(w http.ResponseWriter, r *http.Request, token string) service.Caller {
	return service.Caller{
		Tokens:   csrf.NewCookieStore(w, r),
		Token:    csrfToken(r, token),
		Identity: IdentityFrom(r.Context()),
	}
}
