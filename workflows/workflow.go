package workflows

import (
	"errors"
	"fmt"
	"time"

	"github.com/surajsub/deployassist/activities"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// FinalizeInput starts FinalizeConfigurationWorkflow.
type FinalizeInput struct {
	ConfigurationID string `json:"configuration_id"`
}

// FinalizeResult is returned by FinalizeConfigurationWorkflow.
type FinalizeResult struct {
	ConfigurationID string `json:"configuration_id"`
	Provisioned     bool   `json:"provisioned"`
	Instructions    int    `json:"instructions"`
}

// WorkflowID is the deterministic id of the finalize workflow for a
// configuration, so repeated dispatches attach to the same execution.
func WorkflowID(configurationID string) string {
	return "finalize-" + configurationID
}

// ActivityOptions is the activity configuration of FinalizeConfigurationWorkflow.
func ActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    5,
		},
	}
}

// FinalizeConfigurationWorkflow runs the provisioning pipeline and then the
// instruction generation for one configuration. Instructions are generated
// even when the pipeline activity gives up, since the configuration is then
// failed and the user still needs the manual steps.
func FinalizeConfigurationWorkflow(ctx workflow.Context, input FinalizeInput) (FinalizeResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting FinalizeConfigurationWorkflow", "configuration_id", input.ConfigurationID)

	result := FinalizeResult{ConfigurationID: input.ConfigurationID}
	ctx = workflow.WithActivityOptions(ctx, ActivityOptions())

	var a *activities.Activities
	pipelineErr := workflow.ExecuteActivity(ctx, a.RunPipeline, input.ConfigurationID).Get(ctx, nil)
	if pipelineErr != nil {
		logger.Error("Provisioning pipeline failed", "configuration_id", input.ConfigurationID, "error", pipelineErr)
		if err := workflow.ExecuteActivity(ctx, a.MarkFailed, input.ConfigurationID, failureMessage(pipelineErr)).Get(ctx, nil); err != nil {
			logger.Error("Recording provisioning failure failed", "configuration_id", input.ConfigurationID, "error", err)
		}
	} else {
		result.Provisioned = true
	}

	if err := workflow.ExecuteActivity(ctx, a.GenerateInstructions, input.ConfigurationID).Get(ctx, &result.Instructions); err != nil {
		logger.Error("Instruction generation failed", "configuration_id", input.ConfigurationID, "error", err)
		if pipelineErr != nil {
			return result, fmt.Errorf("provisioning: %w", pipelineErr)
		}
		return result, fmt.Errorf("instructions: %w", err)
	}
	if pipelineErr != nil {
		return result, fmt.Errorf("provisioning: %w", pipelineErr)
	}

	logger.Info("Workflow complete", "configuration_id", input.ConfigurationID, "instructions", result.Instructions)
	return result, nil
}

// failureMessage strips the activity wrapping Temporal adds around the
// pipeline error.
func failureMessage(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Message()
	}
	return err.Error()
}
