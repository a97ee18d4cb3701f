package cmd

import (
	"github.com/spf13/cobra"
	"github.com/surajsub/deployassist/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		gormDB, sqlDB, err := db.Open(cfg.Database)
		if err != nil {
			return err
		}
		defer sqlDB.Close()
		if err := db.Ping(cmd.Context(), sqlDB); err != nil {
			return err
		}
		if err := db.AutoMigrate(gormDB); err != nil {
			return err
		}
		log.Info("Database schema is up to date")
		return nil
	},
}
