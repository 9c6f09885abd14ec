package obs

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                            "/other",
		"/":                           "/other",
		"/metrics":                    "/metrics",
		"/api/csrf":                   "/api/csrf",
		"/api/polls":                  "/api/polls",
		"/api/polls/":                 "/other",
		"/api/polls/abc":              "/api/polls/:id",
		"/api/polls/abc/votes":        "/api/polls/:id/votes",
		"/api/polls/abc/my-vote":      "/api/polls/:id/my-vote",
		"/api/polls/abc/live":         "/api/polls/:id/live",
		"/api/polls/abc/comments":     "/other",
		"/api/polls/abc/results/live": "/other",
		"/api/auth/signin":            "/api/auth/signin",
		"/api/auth/whoami":            "/other",
		"/wp-login.php":               "/other",
	}
	for in, want := range cases {
		if got := CanonicalPath(in); got != want {
			t.Fatalf("CanonicalPath(%q)=%q want %q", in, got, want)
		}
	}
}

func TestInstrument_CountsByCanonicalPath(t *testing.T) {
	m := New("test")
	h := m.Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	for _, id := range []string{"a", "b"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/polls/"+id, nil))
	}
	require.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "/api/polls/:id", "418")))
	require.Equal(t, 0.0, testutil.ToFloat64(m.inFlight))
}

func TestInstrument_UnknownPathsShareOneSeries(t *testing.T) {
	m := New("test")
	h := m.Instrument(http.NotFoundHandler())

	for i := 0; i < 500; i++ {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/scan/"+strconv.Itoa(i), nil))
	}
	require.Equal(t, 1, testutil.CollectAndCount(m.requests))
	require.Equal(t, 500.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "/other", "404")))
}

func TestHandler_ExposesDomainMetrics(t *testing.T) {
	m := New("test")
	m.VotesCast.Inc()
	m.GateRejections.WithLabelValues("invalid_token").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(body, "pollbox_votes_cast_total 1"))
	require.True(t, strings.Contains(body, `pollbox_rejections_total{kind="invalid_token"} 1`))
	require.True(t, strings.Contains(body, `build_info{version="test"} 1`))
}
