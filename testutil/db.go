// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/surajsub/deployassist/db"
	"github.com/surajsub/deployassist/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewStore returns a Store over a private in-memory database with the schema migrated.
func NewStore(t *testing.T) *db.Store {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	g, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := g.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(g))
	return db.NewStore(g)
}

// NewConfiguration creates a setup and a configuration of the given type.
func NewConfiguration(t *testing.T, store *db.Store, it models.IntegrationType) (*db.DeploymentSetup, *db.Configuration) {
	t.Helper()
	ctx := context.Background()

	setup := &db.DeploymentSetup{AppName: "shop", Environment: "production", Domain: "shop.example.com", Region: "eu-west-1"}
	require.NoError(t, store.CreateSetup(ctx, setup))

	cfg, created, err := store.FindOrCreateConfiguration(ctx, setup.ID, it)
	require.NoError(t, err)
	require.True(t, created)
	return setup, cfg
}
