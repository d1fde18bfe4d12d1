package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"visitnav/internal/schedule"
	"visitnav/internal/store"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	writeJSON(w, status, Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// writeStoreProblem maps store and schedule sentinel errors onto HTTP statuses.
func writeStoreProblem(w http.ResponseWriter, err error, title, instance string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrInvalidOrder):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrTimeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, schedule.ErrSourceUnavailable):
		status = http.StatusServiceUnavailable
	}
	writeProblem(w, status, title, err.Error(), instance)
}
