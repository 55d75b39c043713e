package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"

	"github.com/waffletower/InvokeAI/internal/graph"
)

const maxBodyBytes = 1 << 20

func (s *Server) listInvocations(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, graph.Definitions())
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var g *graph.Graph
	if err := decodeBody(r, &g); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, err)
		return
	}
	if g != nil {
		if g.ID == "" {
			g.ID = uuid.NewString()
		}
		if g.Nodes == nil {
			g.Nodes = map[string]*graph.Node{}
		}
	}

	state, err := s.sessions.Create(r.Context(), g)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q := r.URL.Query()
	page, err := intParam(q.Get("page"), 0)
	if err != nil {
		writeError(w, err)
		return
	}
	perPage, err := intParam(q.Get("per_page"), 10)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := s.sessions.List(r.Context(), q.Get("query"), page, perPage)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	state, err := s.sessions.Get(r.Context(), ps.ByName("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) addNode(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var n graph.Node
	if err := decodeBody(r, &n); err != nil {
		writeError(w, err)
		return
	}
	state, err := s.sessions.AddNode(r.Context(), ps.ByName("id"), &n)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) updateNode(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var n graph.Node
	if err := decodeBody(r, &n); err != nil {
		writeError(w, err)
		return
	}
	state, err := s.sessions.UpdateNode(r.Context(), ps.ByName("id"), ps.ByName("path"), &n)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) deleteNode(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	state, err := s.sessions.DeleteNode(r.Context(), ps.ByName("id"), ps.ByName("path"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) addEdge(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var e graph.Edge
	if err := decodeBody(r, &e); err != nil {
		writeError(w, err)
		return
	}
	state, err := s.sessions.AddEdge(r.Context(), ps.ByName("id"), e)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) deleteEdge(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	e := graph.Edge{
		Source:      graph.EdgeConnection{NodeID: ps.ByName("from_node"), Field: ps.ByName("from_field")},
		Destination: graph.EdgeConnection{NodeID: ps.ByName("to_node"), Field: ps.ByName("to_field")},
	}
	state, err := s.sessions.DeleteEdge(r.Context(), ps.ByName("id"), e)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

type invokeResponse struct {
	SessionID    string `json:"session_id"`
	InvocationID string `json:"invocation_id,omitempty"`
}

func (s *Server) invoke(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	all := false
	if v := r.URL.Query().Get("all"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, fmt.Errorf("%w: all must be a boolean", errBadRequest))
			return
		}
		all = b
	}

	id := ps.ByName("id")
	invID, err := s.sessions.Invoke(r.Context(), id, all)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, invokeResponse{SessionID: id, InvocationID: invID})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body: %w", errBadRequest, err)
		}
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return nil
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", errBadRequest, raw)
	}
	return n, nil
}
