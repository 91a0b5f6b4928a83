package api

import (
	"context"
	"net/http"
	"strings"

	"freightsched/internal/auth"
	"freightsched/internal/config"
	"freightsched/internal/store"
	"freightsched/internal/webhooks"
)

type Server struct {
	Store    store.Store
	Pub      *webhooks.Publisher
	Auth     *auth.Verifier
	Broker   EventBroker
	Runs     *RunCache
	Capacity int

	cfg config.Config
}

// NewServer wires a Server from config. With no database URL the in-memory
// store is used; with no Redis URL events stay in-process.
func NewServer(cfg config.Config) (*Server, error) {
	var s store.Store
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := sp.MigrateDir("db/migrations"); err != nil {
			return nil, err
		}
		s = sp
	}
	var broker EventBroker
	if cfg.RedisURL != "" {
		if rb, err := NewRedisBroker(cfg.RedisURL); err == nil {
			broker = rb
		} else {
			broker = NewBroker()
		}
	} else {
		broker = NewBroker()
	}
	return &Server{
		Store:    s,
		Pub:      webhooks.NewPublisher(s),
		Auth:     auth.New(cfg.Auth.Mode, cfg.Auth.HMACSecret),
		Broker:   broker,
		Runs:     NewRunCache(),
		Capacity: cfg.Capacity,
		cfg:      cfg,
	}, nil
}

func (s *Server) withTenant(r *http.Request) (context.Context, string) {
	tenant := s.getPrincipal(r).Tenant
	ctx := context.WithValue(r.Context(), ctxKeyTenant{}, tenant)
	return ctx, tenant
}

type ctxKeyTenant struct{}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store, s.cfg.Webhooks.MaxAttempts)
}
