package httpapi

import (
	"encoding/json"
	"net/http"
)

// HealthStatus is the health-check response body.
type HealthStatus struct {
	Status   string   `json:"status"`
	Branches []string `json:"branches"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	branches, err := s.repo.ListBranches()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(HealthStatus{Status: "ok", Branches: branches})
}
