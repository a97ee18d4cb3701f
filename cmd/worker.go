package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/surajsub/deployassist/workers"
	"go.temporal.io/sdk/client"
)

var taskQueues []string

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run Temporal workers that provision finalized configurations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		opts, err := a.temporalOptions()
		if err != nil {
			return err
		}
		c, err := client.Dial(opts)
		if err != nil {
			return fmt.Errorf("failed to create Temporal client: %w", err)
		}
		defer c.Close()

		queues := taskQueues
		if len(queues) == 0 {
			queues = []string{a.cfg.Temporal.TaskQueue}
		}
		manager := workers.NewWorkerManager(c, a.activities, a.logger)
		for _, q := range queues {
			if err := manager.StartWorker(q); err != nil {
				manager.StopAll()
				return err
			}
		}
		a.logger.Infof("Running %d worker(s)", manager.GetActiveWorkers())

		<-ctx.Done()
		a.logger.Info("Shutting down gracefully...")
		manager.StopAll()
		return nil
	},
}

func init() {
	workerCmd.Flags().StringSliceVarP(&taskQueues, "queue", "q", nil, "task queue to poll (repeatable; defaults to the configured queue)")
}
