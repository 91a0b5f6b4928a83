package api

import (
	"encoding/json"
	"net/http"
	"time"

	"freightsched/internal/buildinfo"
)

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"port":            s.cfg.Port,
			"authMode":        s.cfg.Auth.Mode,
			"flightCapacity":  s.cfg.Capacity,
			"rateRps":         s.cfg.RateRPS,
			"rateBurst":       s.cfg.RateBurst,
			"webhookAttempts": s.cfg.Webhooks.MaxAttempts,
			"hasDatabaseUrl":  s.cfg.DatabaseURL != "",
			"hasRedisUrl":     s.cfg.RedisURL != "",
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(info)
}
