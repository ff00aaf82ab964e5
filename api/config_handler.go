package api

import (
	"net/http"

	"github.com/reminex/client/internal/config"
)

// ConfigResponse is the JSON envelope returned by GET /api/v1/config.
type ConfigResponse struct {
	Config  config.Config         `json:"config"`
	Secrets []config.SecretStatus `json:"secrets"`
}

// handleGetConfig returns the running configuration. Secret values are
// replaced by their masked status.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := *s.cfg
	cfg.Speech.APIKey = ""
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: ConfigResponse{
			Config:  cfg,
			Secrets: config.CheckSecrets(s.cfg, s.svc.Session.Token()),
		},
	})
}

// handleGetConfigKeys returns the status of all credentials.
func (s *Server) handleGetConfigKeys(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    config.CheckSecrets(s.cfg, s.svc.Session.Token()),
	})
}
