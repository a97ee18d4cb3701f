package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/surajsub/deployassist/utils"
)

var (
	exportDir        string
	exportRegenerate bool
)

var exportCmd = &cobra.Command{
	Use:   "export <configuration-id>",
	Short: "Write a configuration's generated code snippets to files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid configuration id: %w", err)
		}

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		out, err := a.store.ListInstructions(ctx, id)
		if err != nil {
			return err
		}
		if exportRegenerate || len(out) == 0 {
			if out, err = a.engine.GenerateAndSave(ctx, id); err != nil {
				return err
			}
		}

		written, err := utils.WriteSnippetFiles(exportDir, out, a.logger)
		if err != nil {
			return err
		}
		for _, path := range written {
			fmt.Fprintln(cmd.OutOrStdout(), path)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportDir, "out", "o", ".", "directory the snippet files are written under")
	exportCmd.Flags().BoolVar(&exportRegenerate, "regenerate", false, "regenerate instructions before exporting")
}
