package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/and161185/pollbox/internal/csrf"
	"github.com/and161185/pollbox/internal/errs"
)

const msgBadBody = "invalid request body"

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps an error kind onto an HTTP status.
func statusFor(k errs.Kind) int {
	switch k {
	case errs.KindInvalidToken, errs.KindForbidden:
		return http.StatusForbidden
	case errs.KindUnauthenticated:
		return http.StatusUnauthorized
	case errs.KindValidation:
		return http.StatusBadRequest
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindAlreadyVoted:
		return http.StatusConflict
	case errs.KindRateLimited:
		return http.StatusTooManyRequests
	case errs.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as {"error","code"}. Internal errors never leak their text.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := errs.KindOf(err)
	status := statusFor(kind)
	msg := err.Error()

	switch kind {
	case errs.KindInternal:
		s.log.Error("request failed",
			zap.String("request_id", RequestIDFrom(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		msg = http.StatusText(status)
	case errs.KindUpstream:
		s.log.Warn("upstream failure",
			zap.String("request_id", RequestIDFrom(r.Context())),
			zap.Error(err),
		)
		fallthrough
	default:
		s.metrics.GateRejections.WithLabelValues(kind.String()).Inc()
	}
	writeJSON(w, status, errorBody{Error: msg, Code: kind.String()})
}

// readBody decodes a JSON or urlencoded body for any method. fromForm copies
// form values into dst. An empty body leaves dst untouched.
func readBody(r *http.Request, dst any, fromForm func(url.Values)) error {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch ct {
	case "application/x-www-form-urlencoded":
		// r.ParseForm ignores the body of DELETE requests.
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			return bodyErr(err)
		}
		form, err := url.ParseQuery(string(raw))
		if err != nil {
			return bodyErr(err)
		}
		if fromForm != nil {
			fromForm(form)
		}
		return nil
	default:
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
			return bodyErr(err)
		}
		return nil
	}
}

func bodyErr(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return errs.Wrap(errs.KindValidation, "request body too large", err)
	}
	return errs.Wrap(errs.KindValidation, msgBadBody, err)
}

// csrfToken picks the header over the body field.
func csrfToken(r *http.Request, bodyToken string) string {
	if h := strings.TrimSpace(r.Header.Get(csrf.HeaderName)); h != "" {
		return h
	}
	return strings.TrimSpace(bodyToken)
}
