package activities

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/surajsub/deployassist/db"
	"github.com/surajsub/deployassist/instructions"
	"github.com/surajsub/deployassist/provisioning"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
)

// PipelineRunner runs the provisioning tasks of a finalized configuration.
// Run leaves the configuration in_progress on error; Fail records the final
// failure once no further attempt will be made.
type PipelineRunner interface {
	Run(ctx context.Context, configID uuid.UUID) error
	Fail(ctx context.Context, configID uuid.UUID, message string) error
}

// InstructionGenerator renders and stores the setup instructions of a
// configuration whose pipeline has finished.
type InstructionGenerator interface {
	GenerateAndSave(ctx context.Context, configID uuid.UUID) ([]db.Instruction, error)
}

// Publisher receives freshly generated instructions. Publishing failures
// never fail the activity.
type Publisher interface {
	Publish(ctx context.Context, configID uuid.UUID, out []db.Instruction) error
}

// Activities is registered on the worker as a struct so every method below
// becomes a Temporal activity.
type Activities struct {
	Pipeline     PipelineRunner
	Instructions InstructionGenerator
	Publisher    Publisher
	Logger       *logrus.Logger
}

const (
	errTypeBadInput    = "BadInput"
	errTypeNotFound    = "ConfigurationNotFound"
	errTypeNotFinished = "NotFinalized"
	errTypeRunFinished = "RunFinished"
)

// RunPipeline provisions everything the configuration's integration type can
// provision through an API.
func (a *Activities) RunPipeline(ctx context.Context, configID string) error {
	logger := a.logger(ctx).WithField("configuration_id", configID)
	id, err := uuid.Parse(configID)
	if err != nil {
		return temporal.NewNonRetryableApplicationError(fmt.Sprintf("invalid configuration id %q", configID), errTypeBadInput, err)
	}

	info := activity.GetInfo(ctx)
	logger.Infof("Running provisioning pipeline (WorkflowID: %s, attempt %d)", info.WorkflowExecution.ID, info.Attempt)
	activity.RecordHeartbeat(ctx, "provisioning "+configID)

	if err := a.Pipeline.Run(ctx, id); err != nil {
		logger.Errorf("Provisioning pipeline failed: %v", err)
		return classify(err)
	}
	logger.Info("Provisioning pipeline finished")
	return nil
}

// MarkFailed records that the provisioning run of the configuration gave up.
// It is a no-op for configurations that are no longer in_progress.
func (a *Activities) MarkFailed(ctx context.Context, configID string, message string) error {
	logger := a.logger(ctx).WithField("configuration_id", configID)
	id, err := uuid.Parse(configID)
	if err != nil {
		return temporal.NewNonRetryableApplicationError(fmt.Sprintf("invalid configuration id %q", configID), errTypeBadInput, err)
	}
	if err := a.Pipeline.Fail(ctx, id, message); err != nil {
		logger.Errorf("Recording provisioning failure failed: %v", err)
		return classify(err)
	}
	return nil
}

// GenerateInstructions renders the setup instructions and returns how many
// were stored.
func (a *Activities) GenerateInstructions(ctx context.Context, configID string) (int, error) {
	logger := a.logger(ctx).WithField("configuration_id", configID)
	id, err := uuid.Parse(configID)
	if err != nil {
		return 0, temporal.NewNonRetryableApplicationError(fmt.Sprintf("invalid configuration id %q", configID), errTypeBadInput, err)
	}
	activity.RecordHeartbeat(ctx, "instructions "+configID)

	out, err := a.Instructions.GenerateAndSave(ctx, id)
	if err != nil {
		logger.Errorf("Instruction generation failed: %v", err)
		return 0, classify(err)
	}
	if a.Publisher != nil {
		if err := a.Publisher.Publish(ctx, id, out); err != nil {
			logger.Warnf("Publishing instructions failed: %v", err)
		}
	}
	return len(out), nil
}

// classify marks errors a retry cannot fix as non-retryable.
func classify(err error) error {
	switch {
	case errors.Is(err, db.ErrNotFound):
		return temporal.NewNonRetryableApplicationError(err.Error(), errTypeNotFound, err)
	case errors.Is(err, provisioning.ErrNotFinalized), errors.Is(err, instructions.ErrNotProvisioned):
		return temporal.NewNonRetryableApplicationError(err.Error(), errTypeNotFinished, err)
	case errors.Is(err, provisioning.ErrRunFinished):
		return temporal.NewNonRetryableApplicationError(err.Error(), errTypeRunFinished, err)
	}
	return err
}

func (a *Activities) logger(ctx context.Context) *logrus.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return GetActivityLogger(ctx)
}

type loggerKey struct{}

// WithLogger attaches logger to ctx for GetActivityLogger.
func WithLogger(ctx context.Context, logger *logrus.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// GetActivityLogger returns the logger stored in ctx, or a JSON logger at
// info level.
func GetActivityLogger(ctx context.Context) *logrus.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*logrus.Logger); ok && logger != nil {
		return logger
	}
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)
	logger.Warn("Using fallback logger as no logger was passed")
	return logger
}
