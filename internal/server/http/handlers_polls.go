package httpserver

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/pollbox/internal/csrf"
	"github.com/and161185/pollbox/internal/errs"
	"github.com/and161185/pollbox/internal/model"
	"github.com/and161185/pollbox/internal/service"
)

type pollRequest struct {
	Question  string   `json:"question"`
	Options   []string `json:"options"`
	CSRFToken string   `json:"csrf_token"`
}

func (p *pollRequest) fromForm(v url.Values) {
	p.Question = v.Get("question")
	p.Options = v["options"]
	p.CSRFToken = v.Get(csrf.FieldName)
}

func (p pollRequest) input() service.PollInput {
	return service.PollInput{Question: p.Question, Options: p.Options}
}

type voteRequest struct {
	OptionIndex *int   `json:"option_index"`
	CSRFToken   string `json:"csrf_token"`
}

func (v *voteRequest) fromForm(f url.Values) {
	v.CSRFToken = f.Get(csrf.FieldName)
	if s := f.Get("option_index"); s != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			v.OptionIndex = &n
		} else {
			n = -1
			v.OptionIndex = &n
		}
	}
}

type deleteRequest struct {
	CSRFToken string `json:"csrf_token"`
}

func (d *deleteRequest) fromForm(v url.Values) { d.CSRFToken = v.Get(csrf.FieldName) }

type pollList struct {
	Polls  []model.Poll `json:"polls"`
	Total  int64        `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

func pollID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.FromString(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, errs.E(errs.KindNotFound, errs.MsgPollNotFound)
	}
	return id, nil
}

// mutationPollID leaves a malformed id as uuid.Nil so the gate still runs
// first and the lookup then reports the poll as not found.
func mutationPollID(r *http.Request) uuid.UUID {
	id, _ := uuid.FromString(r.PathValue("id"))
	return id
}

func queryInt(r *http.Request, key string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return n
}

func (s *Server) handleListPolls(w http.ResponseWriter, r *http.Request) {
	limit := service.PageSize(queryInt(r, "limit", service.DefaultPageSize))
	offset := max(queryInt(r, "offset", 0), 0)
	polls, err := s.polls.List(r.Context(), limit, offset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	total, err := s.polls.Count(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if polls == nil {
		polls = []model.Poll{}
	}
	writeJSON(w, http.StatusOK, pollList{
		Polls:  polls,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

func (s *Server) handleCreatePoll(w http.ResponseWriter, r *http.Request) {
	var in pollRequest
	if err := readBody(r, &in, in.fromForm); err != nil {
		s.fail(w, r, err)
		return
	}
	p, err := s.polls.Create(r.Context(), s.caller(w, r, in.CSRFToken), in.input())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.metrics.PollsCreated.Inc()
	w.Header().Set("Location", "/api/polls/"+p.ID.String())
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetPoll(w http.ResponseWriter, r *http.Request) {
	id, err := pollID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	p, err := s.polls.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdatePoll(w http.ResponseWriter, r *http.Request) {
	id := mutationPollID(r)
	var in pollRequest
	if err := readBody(r, &in, in.fromForm); err != nil {
		s.fail(w, r, err)
		return
	}
	p, err := s.polls.Update(r.Context(), s.caller(w, r, in.CSRFToken), id, in.input())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeletePoll(w http.ResponseWriter, r *http.Request) {
	id := mutationPollID(r)
	var in deleteRequest
	if err := readBody(r, &in, in.fromForm); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.polls.Delete(r.Context(), s.caller(w, r, in.CSRFToken), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	id := mutationPollID(r)
	var in voteRequest
	if err := readBody(r, &in, in.fromForm); err != nil {
		s.fail(w, r, err)
		return
	}
	idx := -1
	if in.OptionIndex != nil {
		idx = *in.OptionIndex
	}
	v, err := s.polls.Vote(r.Context(), s.caller(w, r, in.CSRFToken), id, idx)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.metrics.VotesCast.Inc()
	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	id, err := pollID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.polls.Results(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleMyVote(w http.ResponseWriter, r *http.Request) {
	id, err := pollID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	v, err := s.polls.MyVote(r.Context(), IdentityFrom(r.Context()), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]*model.Vote{"vote": v})
}

// handleLive upgrades to a websocket streaming result changes for one poll.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	id, err := pollID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	// Subscribe before loading so no change between the two is missed.
	sub := s.hub.Subscribe(id)
	res, err := s.polls.Results(r.Context(), id)
	if err != nil {
		s.hub.Unsubscribe(sub)
		s.fail(w, r, err)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		s.hub.Unsubscribe(sub)
		return
	}
	s.hub.Serve(conn, sub, res)
}
