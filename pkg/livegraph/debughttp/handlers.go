package debughttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/randalmurphal/livegraph/pkg/livegraph"
	"github.com/randalmurphal/livegraph/pkg/livegraph/resultstore"
)

type healthResponse struct {
	Status    string `json:"status"`
	Executors int    `json:"executors"`
}

type executorInfo struct {
	Name  string `json:"name"`
	ID    string `json:"id"`
	Nodes int    `json:"nodes"`
}

type progressResponse struct {
	Node     livegraph.NodeID `json:"node"`
	Active   bool             `json:"active"`
	Fraction float64          `json:"fraction"`
}

type resultResponse struct {
	Key       string          `json:"key"`
	Sequence  int             `json:"sequence"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

func newResultResponse(rec resultstore.Record) resultResponse {
	data := json.RawMessage(rec.Data)
	if !json.Valid(data) {
		// Not written by a sink; hand it out as a JSON string.
		data, _ = json.Marshal(string(rec.Data))
	}
	return resultResponse{Key: rec.Key, Sequence: rec.Sequence, Timestamp: rec.Timestamp, Data: data}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Executors: len(s.executors)})
}

func (s *Server) handleListExecutors(w http.ResponseWriter, _ *http.Request) {
	out := make([]executorInfo, 0, len(s.order))
	for _, name := range s.order {
		e := s.executors[name]
		out = append(out, executorInfo{Name: name, ID: e.ID(), Nodes: e.Len()})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) executor(w http.ResponseWriter, r *http.Request) (*livegraph.Executor, bool) {
	name := chi.URLParam(r, "name")
	e, ok := s.executors[name]
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown executor "+strconv.Quote(name))
	}
	return e, ok
}

func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	e, ok := s.executor(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, e.Status())
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	e, ok := s.executor(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid node id")
		return
	}
	node := livegraph.NodeID(id)
	rx, ok := e.Progress(node)
	if !ok {
		s.writeError(w, http.StatusNotFound, "node reports no progress")
		return
	}
	p := rx.Borrow()
	s.writeJSON(w, http.StatusOK, progressResponse{Node: node, Active: p.Active, Fraction: p.Fraction})
}

func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.store == nil {
		s.writeError(w, http.StatusNotFound, "no result store configured")
		return false
	}
	return true
}

func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	keys, err := s.store.Keys(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, keys)
}

func (s *Server) handleLatestResult(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	rec, err := s.store.Latest(r.Context(), chi.URLParam(r, "key"))
	switch {
	case errors.Is(err, resultstore.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, newResultResponse(rec))
}

func (s *Server) handleResultHistory(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	recs, err := s.store.History(r.Context(), chi.URLParam(r, "key"), parseIntQuery(r, "limit", defaultHistory))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]resultResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, newResultResponse(rec))
	}
	s.writeJSON(w, http.StatusOK, out)
}
