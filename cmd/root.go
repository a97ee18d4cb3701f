// Package cmd implements the deploy-assist command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:   "deploy-assist",
	Short: "Guided setup wizards that provision cloud and SaaS integrations",
	Long: `deploy-assist collects integration settings through step-by-step wizards,
provisions what the providers' APIs allow, and generates the remaining manual
setup instructions.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment is read")

	rootCmd.AddCommand(serveCmd, workerCmd, migrateCmd, exportCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
