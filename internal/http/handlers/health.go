package handlers

import (
	"net/http"
)

type healthResponse struct {
	Status string `json:"status"`
	Ledger bool   `json:"ledger"`
	Events bool   `json:"events"`
}

// Health reports liveness plus which optional run-tracking pieces are wired.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, healthResponse{
		Status: "ok",
		Ledger: a.Ledger != nil,
		Events: a.Events != nil,
	})
}
