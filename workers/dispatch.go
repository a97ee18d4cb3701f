package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/surajsub/deployassist/activities"
	"github.com/surajsub/deployassist/workflows"
	"go.temporal.io/sdk/client"
)

// ErrTemporalUnavailable is returned while no Temporal connection is up.
var ErrTemporalUnavailable = errors.New("temporal client is not connected")

// TemporalDispatcher starts FinalizeConfigurationWorkflow for a configuration.
// A dispatch for a configuration whose workflow is still running attaches to
// that execution.
type TemporalDispatcher struct {
	client    func() client.Client
	taskQueue string
	logger    *logrus.Logger
}

func NewTemporalDispatcher(getClient func() client.Client, taskQueue string, logger *logrus.Logger) *TemporalDispatcher {
	return &TemporalDispatcher{client: getClient, taskQueue: taskQueue, logger: logger}
}

func (d *TemporalDispatcher) Dispatch(ctx context.Context, configID uuid.UUID) error {
	c := d.client()
	if c == nil {
		return ErrTemporalUnavailable
	}
	id := configID.String()
	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        workflows.WorkflowID(id),
		TaskQueue: d.taskQueue,
	}, workflows.FinalizeConfigurationWorkflow, workflows.FinalizeInput{ConfigurationID: id})
	if err != nil {
		return fmt.Errorf("start finalize workflow: %w", err)
	}
	d.logger.WithFields(logrus.Fields{
		"configuration_id": id,
		"workflow_id":      run.GetID(),
		"run_id":           run.GetRunID(),
	}).Info("Started finalize workflow")
	return nil
}

// LocalDispatcher runs the pipeline and instruction generation in-process on
// a fixed number of goroutines. Jobs queued when Stop is called are dropped.
type LocalDispatcher struct {
	pipeline     activities.PipelineRunner
	instructions activities.InstructionGenerator
	publisher    activities.Publisher
	logger       *logrus.Logger

	queue   chan uuid.UUID
	workers int

	mu      sync.Mutex
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewLocalDispatcher(acts *activities.Activities, workers, queueSize int, logger *logrus.Logger) *LocalDispatcher {
	if workers < 1 {
		workers = 1
	}
	return &LocalDispatcher{
		pipeline:     acts.Pipeline,
		instructions: acts.Instructions,
		publisher:    acts.Publisher,
		logger:       logger,
		queue:        make(chan uuid.UUID, queueSize),
		workers:      workers,
	}
}

// Start launches the worker goroutines. They exit when ctx is cancelled or
// Stop is called.
func (d *LocalDispatcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case id := <-d.queue:
					d.Finalize(ctx, id)
				}
			}
		}()
	}
}

func (d *LocalDispatcher) Dispatch(_ context.Context, configID uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return errors.New("local dispatcher is stopped")
	}
	select {
	case d.queue <- configID:
		return nil
	default:
		return fmt.Errorf("local dispatch queue is full (%d jobs)", cap(d.queue))
	}
}

// Finalize runs both units of work for one configuration, in order. There is
// no retry in-process, so a pipeline error fails the configuration at once.
// Instructions are generated even then.
func (d *LocalDispatcher) Finalize(ctx context.Context, configID uuid.UUID) {
	logger := d.logger.WithField("configuration_id", configID)
	if err := d.pipeline.Run(ctx, configID); err != nil {
		logger.Errorf("Provisioning pipeline failed: %v", err)
		if err := d.pipeline.Fail(ctx, configID, err.Error()); err != nil {
			logger.Errorf("Recording provisioning failure failed: %v", err)
		}
	}
	out, err := d.instructions.GenerateAndSave(ctx, configID)
	if err != nil {
		logger.Errorf("Instruction generation failed: %v", err)
		return
	}
	if d.publisher != nil {
		if err := d.publisher.Publish(ctx, configID, out); err != nil {
			logger.Warnf("Publishing instructions failed: %v", err)
		}
	}
}

// Stop rejects new dispatches and waits for running jobs to return.
func (d *LocalDispatcher) Stop() {
	d.mu.Lock()
	d.stopped = true
	cancel := d.cancel
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	d.wg.Wait()
}
