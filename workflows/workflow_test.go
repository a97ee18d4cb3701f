package workflows

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/surajsub/deployassist/activities"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
)

type FinalizeWorkflowSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite

	env *testsuite.TestWorkflowEnvironment
	a   *activities.Activities
}

func (s *FinalizeWorkflowSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	s.a = &activities.Activities{}
	s.env.RegisterWorkflow(FinalizeConfigurationWorkflow)
	s.env.RegisterActivity(s.a)
}

func (s *FinalizeWorkflowSuite) AfterTest(_, _ string) {
	s.env.AssertExpectations(s.T())
}

func (s *FinalizeWorkflowSuite) TestRunsPipelineThenInstructions() {
	var order []string
	s.env.OnActivity(s.a.RunPipeline, mock.Anything, "cfg-1").Return(func(_ context.Context, _ string) error {
		order = append(order, "pipeline")
		return nil
	}).Once()
	s.env.OnActivity(s.a.GenerateInstructions, mock.Anything, "cfg-1").Return(func(_ context.Context, _ string) (int, error) {
		order = append(order, "instructions")
		return 6, nil
	}).Once()

	s.env.ExecuteWorkflow(FinalizeConfigurationWorkflow, FinalizeInput{ConfigurationID: "cfg-1"})

	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
	var result FinalizeResult
	s.NoError(s.env.GetWorkflowResult(&result))
	s.Equal(FinalizeResult{ConfigurationID: "cfg-1", Provisioned: true, Instructions: 6}, result)
	s.Equal([]string{"pipeline", "instructions"}, order)
}

func (s *FinalizeWorkflowSuite) TestPipelineFailureStillGeneratesInstructions() {
	s.env.OnActivity(s.a.RunPipeline, mock.Anything, "cfg-2").
		Return(temporal.NewNonRetryableApplicationError("database unavailable", "StorageError", nil)).Once()
	var failure string
	s.env.OnActivity(s.a.MarkFailed, mock.Anything, "cfg-2", mock.Anything).Return(func(_ context.Context, _ string, message string) error {
		failure = message
		return nil
	}).Once()
	s.env.OnActivity(s.a.GenerateInstructions, mock.Anything, "cfg-2").Return(4, nil).Once()

	s.env.ExecuteWorkflow(FinalizeConfigurationWorkflow, FinalizeInput{ConfigurationID: "cfg-2"})

	s.True(s.env.IsWorkflowCompleted())
	err := s.env.GetWorkflowError()
	s.Error(err)
	s.Contains(err.Error(), "database unavailable")
	s.Contains(failure, "database unavailable")
}

func (s *FinalizeWorkflowSuite) TestInstructionFailureFailsWorkflow() {
	s.env.OnActivity(s.a.RunPipeline, mock.Anything, "cfg-3").Return(nil).Once()
	s.env.OnActivity(s.a.GenerateInstructions, mock.Anything, "cfg-3").
		Return(0, temporal.NewNonRetryableApplicationError("template error", "RenderError", nil)).Once()

	s.env.ExecuteWorkflow(FinalizeConfigurationWorkflow, FinalizeInput{ConfigurationID: "cfg-3"})

	err := s.env.GetWorkflowError()
	s.Error(err)
	s.Contains(err.Error(), "template error")
}

func (s *FinalizeWorkflowSuite) TestTransientFailuresAreRetried() {
	s.env.OnActivity(s.a.RunPipeline, mock.Anything, "cfg-4").Return(errors.New("connection reset")).Twice()
	s.env.OnActivity(s.a.RunPipeline, mock.Anything, "cfg-4").Return(nil).Once()
	s.env.OnActivity(s.a.GenerateInstructions, mock.Anything, "cfg-4").Return(3, nil).Once()

	s.env.ExecuteWorkflow(FinalizeConfigurationWorkflow, FinalizeInput{ConfigurationID: "cfg-4"})

	s.NoError(s.env.GetWorkflowError())
	var result FinalizeResult
	s.NoError(s.env.GetWorkflowResult(&result))
	s.True(result.Provisioned)
}

func (s *FinalizeWorkflowSuite) TestRetriesExhaustedMarksFailedOnce() {
	s.env.OnActivity(s.a.RunPipeline, mock.Anything, "cfg-5").Return(errors.New("storage blip")).Times(5)
	s.env.OnActivity(s.a.MarkFailed, mock.Anything, "cfg-5", mock.Anything).Return(nil).Once()
	s.env.OnActivity(s.a.GenerateInstructions, mock.Anything, "cfg-5").Return(2, nil).Once()

	s.env.ExecuteWorkflow(FinalizeConfigurationWorkflow, FinalizeInput{ConfigurationID: "cfg-5"})

	s.True(s.env.IsWorkflowCompleted())
	err := s.env.GetWorkflowError()
	s.Error(err)
	s.Contains(err.Error(), "storage blip")
}

func TestFinalizeWorkflowSuite(t *testing.T) {
	suite.Run(t, new(FinalizeWorkflowSuite))
}

func TestWorkflowID(t *testing.T) {
	assert.Equal(t, "finalize-abc", WorkflowID("abc"))
}

func TestActivityOptionsRetryPolicy(t *testing.T) {
	opts := ActivityOptions()
	require.NotNil(t, opts.RetryPolicy)
	assert.Equal(t, int32(5), opts.RetryPolicy.MaximumAttempts)
	assert.Equal(t, 2.0, opts.RetryPolicy.BackoffCoefficient)
}
