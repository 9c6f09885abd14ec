package httpserver

import (
	"net/http"
	"net/url"
	"time"

	"github.com/and161185/pollbox/internal/csrf"
	"github.com/and161185/pollbox/internal/errs"
	"github.com/and161185/pollbox/internal/model"
)

type credentials struct {
	Email    string            `json:"email"`
	Password string            `json:"password"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (c *credentials) fromForm(v url.Values) {
	c.Email = v.Get("email")
	c.Password = v.Get("password")
}

type sessionResponse struct {
	ExpiresAt time.Time      `json:"expires_at"`
	User      model.Identity `json:"user"`
}

// handleCSRF issues a fresh token and stores its digest in a cookie.
func (s *Server) handleCSRF(w http.ResponseWriter, r *http.Request) {
	token, err := s.tokens.Issue(csrf.NewCookieStore(w, r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, map[string]string{"csrfToken": token})
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := readBody(r, &in, in.fromForm); err != nil {
		s.fail(w, r, err)
		return
	}
	id, err := s.auth.SignUp(r.Context(), in.Email, in.Password, in.Metadata)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, id)
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := readBody(r, &in, in.fromForm); err != nil {
		s.fail(w, r, err)
		return
	}
	sess, err := s.auth.SignIn(r.Context(), in.Email, in.Password, clientIP(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.AccessToken,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		MaxAge:   int(time.Until(sess.ExpiresAt) / time.Second),
		HttpOnly: true,
		Secure:   s.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if id := IdentityFrom(r.Context()); id != nil {
		if err := s.auth.SignOut(r.Context(), *id); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	csrf.NewCookieStore(w, r).Clear(csrf.CookieName)
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	id := IdentityFrom(r.Context())
	if id == nil {
		s.fail(w, r, errs.Unauthenticated())
		return
	}
	writeJSON(w, http.StatusOK, id)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	token := accessTokenFrom(r.Context())
	if token == "" {
		s.fail(w, r, errs.Unauthenticated())
		return
	}
	sess, err := s.auth.GetSession(r.Context(), token)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{ExpiresAt: sess.ExpiresAt, User: sess.User})
}
