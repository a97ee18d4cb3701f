package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/surajsub/deployassist/activities"
	"github.com/surajsub/deployassist/config"
	"github.com/surajsub/deployassist/credentials"
	"github.com/surajsub/deployassist/db"
	"github.com/surajsub/deployassist/executors"
	"github.com/surajsub/deployassist/instructions"
	"github.com/surajsub/deployassist/logger"
	"github.com/surajsub/deployassist/providers"
	"github.com/surajsub/deployassist/provisioning"
	"github.com/surajsub/deployassist/publish"
	"go.temporal.io/sdk/client"
)

// app holds the components every command shares.
type app struct {
	cfg    *config.Config
	logger *logrus.Logger

	store *db.Store
	sqlDB *sql.DB

	vault      *credentials.Vault
	pipeline   *provisioning.Pipeline
	engine     *instructions.Engine
	activities *activities.Activities
}

func loadConfig() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(envFile, configPath)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.LogLevel, os.Stdout)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}

	gormDB, sqlDB, err := db.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	store := db.NewStore(gormDB)

	keys, err := keyProvider(ctx, cfg, log)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	vault := credentials.NewVault(store, keys, log)

	pipeline := provisioning.NewPipeline(store, executors.DefaultRegistry(log), vault, log,
		provisioning.WithDefaultRegion(cfg.AWS.DefaultRegion),
		provisioning.WithTaskTimeout(cfg.TaskTimeout),
	)
	engine, err := instructions.NewEngine(store, vault, log, instructions.WithDefaultRegion(cfg.AWS.DefaultRegion))
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	acts := &activities.Activities{
		Pipeline:     pipeline,
		Instructions: engine,
		Logger:       log,
	}
	if cfg.GitHub.Enabled() {
		owner, repo, err := cfg.GitHub.OwnerRepo()
		if err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
		pub, err := publish.NewGitHubPublisher(ctx, publish.GitHubOptions{
			Token:   cfg.GitHub.Token,
			Owner:   owner,
			Repo:    repo,
			Labels:  cfg.GitHub.Labels,
			BaseURL: cfg.GitHub.BaseURL,
		}, store, log)
		if err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
		acts.Publisher = pub
		log.WithField("repository", cfg.GitHub.Repository).Info("Publishing instructions to GitHub issues")
	}

	return &app{
		cfg:        cfg,
		logger:     log,
		store:      store,
		sqlDB:      sqlDB,
		vault:      vault,
		pipeline:   pipeline,
		engine:     engine,
		activities: acts,
	}, nil
}

// keyProvider prefers Vault, then a static key. With neither, credentials
// cannot be stored and provisioning tasks that produce secrets fail.
func keyProvider(ctx context.Context, cfg *config.Config, log *logrus.Logger) (credentials.KeyProvider, error) {
	if cfg.Vault.Address != "" {
		p, err := providers.NewVaultKeyProvider(ctx, cfg.Vault, log)
		if err != nil {
			return nil, fmt.Errorf("vault key provider: %w", err)
		}
		return p, nil
	}
	if cfg.EncryptionKey != "" {
		p, err := providers.NewStaticKeyProvider(cfg.EncryptionKey)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	log.Warn("No credential master key configured; secrets cannot be stored")
	return nil, nil
}

func (a *app) temporalOptions() (client.Options, error) {
	tl, err := logger.NewTemporalLogger(a.cfg.LogLevel)
	if err != nil {
		return client.Options{}, err
	}
	return client.Options{
		HostPort:  a.cfg.Temporal.HostPort,
		Namespace: a.cfg.Temporal.Namespace,
		Logger:    tl,
	}, nil
}

func (a *app) Close() {
	if err := a.sqlDB.Close(); err != nil {
		a.logger.Warnf("Closing database pool: %v", err)
	}
	if g, err := a.store.DB().DB(); err == nil {
		_ = g.Close()
	}
}
