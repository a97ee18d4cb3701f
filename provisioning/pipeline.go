// Package provisioning runs the provider tasks of a finalized configuration
// and records their outcome.
package provisioning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/surajsub/deployassist/db"
	"github.com/surajsub/deployassist/executors"
	"github.com/surajsub/deployassist/metrics"
	"github.com/surajsub/deployassist/models"
)

const (
	DefaultTaskTimeout = 5 * time.Minute

	interruptedMessage = "task was interrupted while running; verify the resource in the provider console and retry"
	unstoredMessage    = "provider credentials were created but could not be stored; revoke them in the provider console and retry"

	codeCredentialStorage = "credential_storage_failed"
	codeNotStored         = "credentials_not_stored"
)

var (
	// ErrNotFinalized is returned when Run is called for a configuration whose
	// wizard has not been completed.
	ErrNotFinalized = errors.New("configuration wizard is not finalized")

	// ErrRunFinished is returned when Run is delivered for a configuration
	// that has already failed. Only an explicit retry moves it back to
	// in_progress.
	ErrRunFinished = errors.New("provisioning run already finished")
)

// ExecutorSource builds executors for per-request credentials.
// *executors.Registry implements it.
type ExecutorSource interface {
	GetExecutor(name string, creds models.ProviderCredentials) (executors.Executor, error)
}

// SecretStore persists secrets produced by providers.
// *credentials.Vault implements it.
type SecretStore interface {
	Store(ctx context.Context, setupID uuid.UUID, service, credentialType, value, identifier string) (uuid.UUID, error)
}

type Pipeline struct {
	store         *db.Store
	executors     ExecutorSource
	secrets       SecretStore
	logger        *logrus.Logger
	defaultRegion string
	taskTimeout   time.Duration
	now           func() time.Time
}

type Option func(*Pipeline)

func WithDefaultRegion(region string) Option {
	return func(p *Pipeline) { p.defaultRegion = region }
}

// WithTaskTimeout bounds each provider call. Non-positive values are ignored.
func WithTaskTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.taskTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

func NewPipeline(store *db.Store, source ExecutorSource, secrets SecretStore, logger *logrus.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:         store,
		executors:     source,
		secrets:       secrets,
		logger:        logger,
		defaultRegion: "us-east-1",
		taskTimeout:   DefaultTaskTimeout,
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes every planned task of the configuration in order. Provider
// failures are recorded on their task and do not stop the run. Any other
// failure is returned and leaves the configuration in_progress, so the
// caller can deliver the run again; Fail ends it for good.
func (p *Pipeline) Run(ctx context.Context, configID uuid.UUID) error {
	cfg, err := p.store.GetConfiguration(ctx, configID)
	if err != nil {
		return err
	}
	logger := p.logger.WithFields(logrus.Fields{
		"configuration_id": cfg.ID,
		"integration_type": cfg.IntegrationType,
	})
	switch cfg.Status {
	case models.StatusInProgress:
	case models.StatusCompleted:
		logger.Info("Provisioning already completed, nothing to run")
		return nil
	case models.StatusFailed:
		return fmt.Errorf("configuration %s is %s: %w", cfg.ID, cfg.Status, ErrRunFinished)
	default:
		return fmt.Errorf("configuration %s is %s: %w", cfg.ID, cfg.Status, ErrNotFinalized)
	}

	results, err := p.run(ctx, cfg, logger)
	if err != nil {
		logger.Errorf("Provisioning attempt failed: %v", err)
		return err
	}

	encoded, err := db.EncodeObject(results)
	if err != nil {
		return err
	}
	moved, err := p.store.TransitionConfiguration(ctx, cfg.ID, models.StatusInProgress, map[string]any{
		"automation_results": encoded,
		"status":             models.StatusCompleted,
		"completed_at":       p.now(),
		"error_message":      "",
	})
	if err != nil {
		return err
	}
	if !moved {
		logger.Warn("Configuration left in_progress while tasks ran, results not recorded")
		return fmt.Errorf("configuration %s: %w", cfg.ID, ErrRunFinished)
	}

	metrics.ProvisioningRuns.WithLabelValues(string(cfg.IntegrationType), string(models.StatusCompleted)).Inc()
	logger.WithField("tasks", len(results)).Info("Provisioning completed")
	return nil
}

// Fail marks an in_progress configuration failed with message as its error.
// Configurations in any other status are left as they are.
func (p *Pipeline) Fail(ctx context.Context, configID uuid.UUID, message string) error {
	cfg, err := p.store.GetConfiguration(ctx, configID)
	if err != nil {
		return err
	}
	logger := p.logger.WithFields(logrus.Fields{
		"configuration_id": cfg.ID,
		"integration_type": cfg.IntegrationType,
	})
	moved, err := p.store.TransitionConfiguration(ctx, cfg.ID, models.StatusInProgress, map[string]any{
		"status":        models.StatusFailed,
		"error_message": message,
	})
	if err != nil {
		return err
	}
	if !moved {
		logger.WithField("status", cfg.Status).Info("Configuration not in progress, failure not recorded")
		return nil
	}
	metrics.ProvisioningRuns.WithLabelValues(string(cfg.IntegrationType), string(models.StatusFailed)).Inc()
	logger.Errorf("Provisioning failed: %s", message)
	return nil
}

func (p *Pipeline) run(ctx context.Context, cfg *db.Configuration, logger *logrus.Entry) (map[string]any, error) {
	data, err := cfg.Data()
	if err != nil {
		return nil, err
	}
	tasks := Plan(cfg.IntegrationType, data, cfg.DeploymentSetup)
	logger.WithField("tasks", len(tasks)).Info("Starting provisioning")

	results := make(map[string]any, len(tasks))
	for _, task := range tasks {
		payload, err := p.runTask(ctx, cfg, task, data, logger.WithField("task_type", task.Type))
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", task.Type, err)
		}
		results[task.Type] = payload
	}
	return results, nil
}

// runTask executes one task and returns its result payload. Only storage and
// credential persistence problems are returned as errors.
func (p *Pipeline) runTask(ctx context.Context, cfg *db.Configuration, task Task, data map[string]any, logger *logrus.Entry) (map[string]any, error) {
	row, err := p.store.FindTask(ctx, cfg.ID, task.Type)
	switch {
	case errors.Is(err, db.ErrNotFound):
		row = &db.AutomationTask{ConfigurationID: cfg.ID, TaskType: task.Type}
	case err != nil:
		return nil, err
	}

	switch row.Status {
	case models.TaskCompleted:
		logger.Info("Task already completed, skipping")
		return db.DecodeObject(row.Result)
	case models.TaskRunning:
		logger.Warn("Task was left running by an earlier attempt, not re-invoking provider")
		return p.finish(ctx, row, models.Failed(interruptedMessage, "interrupted"))
	case models.TaskFailed:
		if row.ErrorCode == codeCredentialStorage {
			logger.Warn("Task created credentials that were never stored, not re-invoking provider")
			return p.finish(ctx, row, models.Failed(unstoredMessage, codeNotStored))
		}
	}

	params, err := db.EncodeObject(task.Params)
	if err != nil {
		return nil, err
	}
	started := p.now()
	row.Description = task.Description
	row.TaskParams = params
	row.Status = models.TaskRunning
	row.Attempts++
	row.ExecutedAt = &started
	row.FinishedAt = nil
	row.ErrorMessage = ""
	row.ErrorCode = ""
	if err := p.store.SaveTask(ctx, row); err != nil {
		return nil, err
	}

	result := p.execute(ctx, cfg, task, data)

	if result.Success && len(result.Secrets) > 0 {
		if err := p.storeSecrets(ctx, cfg, result.Secrets); err != nil {
			if _, finishErr := p.finish(ctx, row, models.Failed("could not store provider credentials", codeCredentialStorage)); finishErr != nil {
				logger.Errorf("Failed to record task failure: %v", finishErr)
			}
			return nil, err
		}
	}

	if result.Success {
		logger.Info("Task completed")
	} else {
		logger.WithField("error_code", result.ErrorCode).Warnf("Task failed: %s", result.Error)
	}
	return p.finish(ctx, row, result)
}

func (p *Pipeline) execute(ctx context.Context, cfg *db.Configuration, task Task, data map[string]any) models.ProviderResult {
	creds := Credentials(task, data, cfg.DeploymentSetup, p.defaultRegion)
	executor, err := p.executors.GetExecutor(task.Executor, creds)
	if err != nil {
		return models.Failed(err.Error(), "executor_unavailable")
	}

	taskCtx, cancel := context.WithTimeout(ctx, p.taskTimeout)
	defer cancel()

	start := time.Now()
	result := executor.Execute(taskCtx, models.ProviderRequest{
		Operation:      task.Operation,
		Credentials:    creds,
		Params:         task.Params,
		IdempotencyKey: cfg.ID.String() + ":" + task.Type,
	})
	metrics.ProvisioningTaskDuration.WithLabelValues(task.Type).Observe(time.Since(start).Seconds())

	if !result.Success && result.ErrorCode == "" && errors.Is(taskCtx.Err(), context.DeadlineExceeded) {
		result.ErrorCode = "timeout"
	}
	return result
}

func (p *Pipeline) storeSecrets(ctx context.Context, cfg *db.Configuration, secrets []models.SecretOutput) error {
	for _, s := range secrets {
		if _, err := p.secrets.Store(ctx, cfg.DeploymentSetupID, s.Service, s.CredentialType, s.Value, s.Identifier); err != nil {
			return fmt.Errorf("store %s/%s credential: %w", s.Service, s.CredentialType, err)
		}
	}
	return nil
}

// finish records the final state of one attempt and returns the payload
// that goes into automation_results.
func (p *Pipeline) finish(ctx context.Context, row *db.AutomationTask, result models.ProviderResult) (map[string]any, error) {
	payload := result.Payload()
	encoded, err := db.EncodeObject(payload)
	if err != nil {
		return nil, err
	}
	finished := p.now()
	row.Result = encoded
	row.FinishedAt = &finished
	row.ErrorMessage = result.Error
	row.ErrorCode = result.ErrorCode
	row.Status = models.TaskFailed
	if result.Success {
		row.Status = models.TaskCompleted
	}
	if err := p.store.SaveTask(ctx, row); err != nil {
		return nil, err
	}
	metrics.ProvisioningTasks.WithLabelValues(row.TaskType, string(row.Status)).Inc()
	return payload, nil
}
