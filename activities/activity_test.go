package activities

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surajsub/deployassist/db"
	"github.com/surajsub/deployassist/instructions"
	"github.com/surajsub/deployassist/provisioning"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
)

type fakePipeline struct {
	calls   []uuid.UUID
	err     error
	failed  map[uuid.UUID]string
	failErr error
}

func (f *fakePipeline) Run(_ context.Context, id uuid.UUID) error {
	f.calls = append(f.calls, id)
	return f.err
}

func (f *fakePipeline) Fail(_ context.Context, id uuid.UUID, message string) error {
	if f.failed == nil {
		f.failed = map[uuid.UUID]string{}
	}
	f.failed[id] = message
	return f.failErr
}

type fakeGenerator struct {
	out []db.Instruction
	err error
}

func (f *fakeGenerator) GenerateAndSave(context.Context, uuid.UUID) ([]db.Instruction, error) {
	return f.out, f.err
}

type fakePublisher struct {
	published int
	err       error
}

func (f *fakePublisher) Publish(_ context.Context, _ uuid.UUID, out []db.Instruction) error {
	f.published += len(out)
	return f.err
}

func newActivityEnv(t *testing.T, a *Activities) *testsuite.TestActivityEnvironment {
	t.Helper()
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	a.Logger = logger
	env.RegisterActivity(a)
	return env
}

func requireNonRetryable(t *testing.T, err error, errType string) {
	t.Helper()
	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr), "expected application error, got %v", err)
	assert.True(t, appErr.NonRetryable())
	assert.Equal(t, errType, appErr.Type())
}

func TestRunPipeline(t *testing.T) {
	pipeline := &fakePipeline{}
	a := &Activities{Pipeline: pipeline}
	env := newActivityEnv(t, a)
	id := uuid.New()

	_, err := env.ExecuteActivity(a.RunPipeline, id.String())
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{id}, pipeline.calls)
}

func TestRunPipelineErrors(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
		errType   string
	}{
		{"not finalized", fmt.Errorf("wrap: %w", provisioning.ErrNotFinalized), false, errTypeNotFinished},
		{"missing configuration", fmt.Errorf("configuration: %w", db.ErrNotFound), false, errTypeNotFound},
		{"already failed", fmt.Errorf("wrap: %w", provisioning.ErrRunFinished), false, errTypeRunFinished},
		{"transient", errors.New("connection refused"), true, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pipeline := &fakePipeline{err: tc.err}
			a := &Activities{Pipeline: pipeline}
			env := newActivityEnv(t, a)

			_, err := env.ExecuteActivity(a.RunPipeline, uuid.NewString())
			require.Error(t, err)
			assert.Empty(t, pipeline.failed, "a failed attempt must not end the run")
			if tc.retryable {
				var appErr *temporal.ApplicationError
				if errors.As(err, &appErr) {
					assert.False(t, appErr.NonRetryable())
				}
				return
			}
			requireNonRetryable(t, err, tc.errType)
		})
	}
}

func TestRunPipelineRejectsBadID(t *testing.T) {
	pipeline := &fakePipeline{}
	a := &Activities{Pipeline: pipeline}
	env := newActivityEnv(t, a)

	_, err := env.ExecuteActivity(a.RunPipeline, "not-a-uuid")
	requireNonRetryable(t, err, errTypeBadInput)
	assert.Empty(t, pipeline.calls)
}

func TestMarkFailed(t *testing.T) {
	pipeline := &fakePipeline{}
	a := &Activities{Pipeline: pipeline}
	env := newActivityEnv(t, a)
	id := uuid.New()

	_, err := env.ExecuteActivity(a.MarkFailed, id.String(), "task create_identity: storage down")
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]string{id: "task create_identity: storage down"}, pipeline.failed)
}

func TestMarkFailedErrors(t *testing.T) {
	a := &Activities{Pipeline: &fakePipeline{failErr: fmt.Errorf("configuration: %w", db.ErrNotFound)}}
	env := newActivityEnv(t, a)

	_, err := env.ExecuteActivity(a.MarkFailed, uuid.NewString(), "boom")
	requireNonRetryable(t, err, errTypeNotFound)

	_, err = env.ExecuteActivity(a.MarkFailed, "nope", "boom")
	requireNonRetryable(t, err, errTypeBadInput)
}

func TestGenerateInstructions(t *testing.T) {
	publisher := &fakePublisher{err: errors.New("github down")}
	a := &Activities{
		Instructions: &fakeGenerator{out: make([]db.Instruction, 5)},
		Publisher:    publisher,
	}
	env := newActivityEnv(t, a)

	val, err := env.ExecuteActivity(a.GenerateInstructions, uuid.NewString())
	require.NoError(t, err)
	var n int
	require.NoError(t, val.Get(&n))
	assert.Equal(t, 5, n)
	assert.Equal(t, 5, publisher.published)
}

func TestGenerateInstructionsBeforeProvisioning(t *testing.T) {
	a := &Activities{Instructions: &fakeGenerator{err: instructions.ErrNotProvisioned}}
	env := newActivityEnv(t, a)

	_, err := env.ExecuteActivity(a.GenerateInstructions, uuid.NewString())
	requireNonRetryable(t, err, errTypeNotFinished)
}

func TestGetActivityLogger(t *testing.T) {
	logger := logrus.New()
	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, GetActivityLogger(ctx))

	fallback := GetActivityLogger(context.Background())
	require.NotNil(t, fallback)
	assert.IsType(t, &logrus.JSONFormatter{}, fallback.Formatter)
}
