package handlers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/surajsub/deployassist/db"
	"github.com/surajsub/deployassist/wizard"
	"go.temporal.io/sdk/client"
)

// CredentialService is the part of the credential vault the API exposes.
type CredentialService interface {
	List(ctx context.Context, setupID uuid.UUID) ([]db.Credential, error)
	Reveal(ctx context.Context, credentialID uuid.UUID) (string, error)
	Deactivate(ctx context.Context, credentialID uuid.UUID) error
}

type Options struct {
	RequireAdmin bool
	AdminToken   string
	RateLimit    float64
	RateBurst    int
	// SupportedRegion rejects unknown regions on setup creation when set.
	SupportedRegion func(string) bool
	// Temporal returns the current client, or nil while disconnected.
	Temporal func() client.Client
	Health   func(ctx context.Context) error
	Gatherer prometheus.Gatherer
	Now      func() time.Time
}

type Server struct {
	store       *db.Store
	wizard      *wizard.Orchestrator
	credentials CredentialService
	opts        Options
	logger      *logrus.Logger
}

func NewServer(store *db.Store, wiz *wizard.Orchestrator, creds CredentialService, logger *logrus.Logger, opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Temporal == nil {
		opts.Temporal = func() client.Client { return nil }
	}
	return &Server{
		store:       store,
		wizard:      wiz,
		credentials: creds,
		opts:        opts,
		logger:      logger,
	}
}
