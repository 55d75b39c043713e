package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/waffletower/InvokeAI/internal/domain"
)

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

var errBadRequest = errors.New("bad request")

// statusFor maps error kinds onto HTTP status codes.
func statusFor(err error) int {
	if errors.Is(err, errBadRequest) {
		return http.StatusBadRequest
	}
	var oe *domain.OpError
	if !errors.As(err, &oe) {
		return http.StatusInternalServerError
	}
	switch oe.Kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInvalidGraph, domain.KindInvalidConfig, domain.KindMissingVar:
		return http.StatusBadRequest
	case domain.KindNodeExecuted:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	body := errorBody{Error: err.Error()}
	var oe *domain.OpError
	if errors.As(err, &oe) {
		body.Kind = string(oe.Kind)
	}
	writeJSON(w, statusFor(err), body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusLabel(code int) string {
	return strconv.Itoa(code)
}
