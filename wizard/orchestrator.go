package wizard

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/surajsub/deployassist/db"
	"github.com/surajsub/deployassist/metrics"
	"github.com/surajsub/deployassist/models"
)

// Dispatcher schedules provisioning and instruction generation for a
// finalized configuration. Delivery may be at-least-once.
type Dispatcher interface {
	Dispatch(ctx context.Context, configID uuid.UUID) error
}

// Orchestrator drives a configuration through its wizard steps.
type Orchestrator struct {
	store      *db.Store
	validator  *Validator
	locker     Locker
	dispatcher Dispatcher
	logger     *logrus.Logger
	now        func() time.Time
}

type Option func(*Orchestrator)

// WithClock overrides the time source used for completion timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithLocker(l Locker) Option {
	return func(o *Orchestrator) { o.locker = l }
}

func NewOrchestrator(store *db.Store, validator *Validator, dispatcher Dispatcher, logger *logrus.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:      store,
		validator:  validator,
		locker:     NewLocalLocker(),
		dispatcher: dispatcher,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// CompleteStep validates and records step data. It returns false with a
// *ValidationError when the submission is rejected; in that case nothing is
// persisted. Completing the last step finalizes the wizard and dispatches
// background work once the transaction has committed.
func (o *Orchestrator) CompleteStep(ctx context.Context, configID uuid.UUID, stepNumber int, stepData map[string]any) (bool, error) {
	if len(stepData) == 0 {
		return false, newValidationError(stepNumber, "step_data", "is required")
	}

	unlock, err := o.locker.Lock(ctx, configID.String())
	if err != nil {
		return false, fmt.Errorf("lock configuration %s: %w", configID, err)
	}
	defer unlock()

	var (
		finalize    bool
		integration models.IntegrationType
	)
	err = o.store.Transaction(ctx, func(tx *db.Store) error {
		cfg, err := tx.GetConfiguration(ctx, configID)
		if err != nil {
			return err
		}
		integration = cfg.IntegrationType
		total := TotalSteps(cfg.IntegrationType)

		if stepNumber < 1 || stepNumber > total {
			return newValidationError(stepNumber, "step_number", fmt.Sprintf("must be between 1 and %d", total))
		}
		if cfg.Status.Finalized() {
			verr := newValidationError(stepNumber, "status", fmt.Sprintf("configuration is %s", cfg.Status))
			verr.Err = ErrFinalized
			return verr
		}
		if err := o.validator.Validate(cfg.IntegrationType, stepNumber, stepData); err != nil {
			return err
		}

		if stepNumber > 1 {
			prev, err := tx.FindStep(ctx, configID, stepNumber-1)
			if errors.Is(err, db.ErrNotFound) || (err == nil && !prev.Status.Done()) {
				return newValidationError(stepNumber, "step_number", fmt.Sprintf("step %d must be completed first", stepNumber-1))
			}
			if err != nil {
				return err
			}
		}

		step, err := o.findOrNewStep(ctx, tx, cfg, stepNumber)
		if err != nil {
			return err
		}
		now := o.now()
		encoded, err := db.EncodeObject(stepData)
		if err != nil {
			return err
		}
		step.StepKey = StepKey(cfg.IntegrationType, stepNumber)
		step.Status = models.StepCompleted
		step.StepData = encoded
		step.CompletedAt = &now
		if err := tx.SaveStep(ctx, step); err != nil {
			return err
		}

		existing, err := cfg.Data()
		if err != nil {
			return err
		}
		merged, err := db.EncodeObject(DeepMerge(existing, stepData))
		if err != nil {
			return err
		}

		done, err := tx.CountDoneSteps(ctx, configID)
		if err != nil {
			return err
		}

		status := models.StatusCollectingInfo
		finalize = stepNumber == total
		if finalize {
			status = models.StatusInProgress
		} else {
			next, err := o.findOrNewStep(ctx, tx, cfg, stepNumber+1)
			if err != nil {
				return err
			}
			if next.Status != models.StepCompleted && next.Status != models.StepSkipped {
				next.Status = models.StepInProgress
				if err := tx.SaveStep(ctx, next); err != nil {
					return err
				}
			}
		}

		return tx.UpdateConfiguration(ctx, configID, map[string]any{
			"collected_data":        merged,
			"completion_percentage": Percentage(int(done), total),
			"status":                status,
			"error_message":         "",
		})
	})

	var verr *ValidationError
	if errors.As(err, &verr) {
		o.logger.WithFields(logrus.Fields{
			"configuration_id": configID,
			"step":             stepNumber,
		}).Infof("Rejected wizard step: %v", verr)
		return false, verr
	}
	if err != nil {
		return false, err
	}

	metrics.WizardStepsCompleted.WithLabelValues(string(integration)).Inc()
	o.logger.WithFields(logrus.Fields{
		"configuration_id": configID,
		"integration_type": integration,
		"step":             stepNumber,
	}).Info("Wizard step completed")

	if finalize {
		if err := o.dispatch(ctx, configID); err != nil {
			return true, err
		}
	}
	return true, nil
}

// findOrNewStep loads step n or builds an unsaved row for it.
func (o *Orchestrator) findOrNewStep(ctx context.Context, tx *db.Store, cfg *db.Configuration, n int) (*db.WizardStep, error) {
	step, err := tx.FindStep(ctx, cfg.ID, n)
	if err == nil {
		return step, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}
	return &db.WizardStep{
		ConfigurationID: cfg.ID,
		StepNumber:      n,
		StepKey:         StepKey(cfg.IntegrationType, n),
		Status:          models.StepInProgress,
	}, nil
}

func (o *Orchestrator) dispatch(ctx context.Context, configID uuid.UUID) error {
	if err := o.dispatcher.Dispatch(ctx, configID); err != nil {
		o.logger.WithField("configuration_id", configID).Errorf("Failed to dispatch provisioning: %v", err)
		markErr := o.store.UpdateConfiguration(ctx, configID, map[string]any{
			"status":        models.StatusFailed,
			"error_message": fmt.Sprintf("could not schedule provisioning: %v", err),
		})
		if markErr != nil {
			o.logger.WithField("configuration_id", configID).Errorf("Failed to record dispatch failure: %v", markErr)
		}
		return fmt.Errorf("dispatch configuration %s: %w", configID, err)
	}
	o.logger.WithField("configuration_id", configID).Info("Provisioning dispatched")
	return nil
}

// Retry re-dispatches a configuration whose last run finished.
func (o *Orchestrator) Retry(ctx context.Context, configID uuid.UUID) error {
	unlock, err := o.locker.Lock(ctx, configID.String())
	if err != nil {
		return fmt.Errorf("lock configuration %s: %w", configID, err)
	}
	defer unlock()

	cfg, err := o.store.GetConfiguration(ctx, configID)
	if err != nil {
		return err
	}
	if !cfg.Status.Terminal() {
		return fmt.Errorf("configuration is %s: %w", cfg.Status, ErrNotRetryable)
	}
	if err := o.store.UpdateConfiguration(ctx, configID, map[string]any{
		"status":        models.StatusInProgress,
		"error_message": "",
		"completed_at":  nil,
	}); err != nil {
		return err
	}
	return o.dispatch(ctx, configID)
}

// ErrNotRetryable is returned by Retry for configurations without a finished run.
var ErrNotRetryable = errors.New("configuration has no finished run to retry")

// CurrentStep is the lowest step that is pending or in progress, or 1 when
// the wizard has not started. A finalized wizard reports the last step.
func (o *Orchestrator) CurrentStep(ctx context.Context, configID uuid.UUID) (int, error) {
	cfg, err := o.store.GetConfiguration(ctx, configID)
	if err != nil {
		return 0, err
	}
	steps, err := o.store.ListSteps(ctx, configID)
	if err != nil {
		return 0, err
	}
	for _, s := range steps {
		if s.Status == models.StepPending || s.Status == models.StepInProgress {
			return s.StepNumber, nil
		}
	}
	if cfg.Status.Finalized() {
		return TotalSteps(cfg.IntegrationType), nil
	}
	return 1, nil
}

// CurrentStepData returns what was last submitted for the current step, or
// an empty map.
func (o *Orchestrator) CurrentStepData(ctx context.Context, configID uuid.UUID) (map[string]any, error) {
	n, err := o.CurrentStep(ctx, configID)
	if err != nil {
		return nil, err
	}
	return o.StepData(ctx, configID, n)
}

// StepData returns what was submitted for step n. A step without submitted
// data falls back to the configuration's template, if any.
func (o *Orchestrator) StepData(ctx context.Context, configID uuid.UUID, n int) (map[string]any, error) {
	step, err := o.store.FindStep(ctx, configID, n)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}
	if err == nil {
		data, err := db.DecodeObject(step.StepData)
		if err != nil || len(data) > 0 {
			return data, err
		}
	}
	cfg, err := o.store.GetConfiguration(ctx, configID)
	if err != nil {
		return nil, err
	}
	return o.templateStepData(ctx, cfg, n)
}

// Percentage is round(100 * done / total), clamped to 0..100.
func Percentage(done, total int) int {
	if total <= 0 || done <= 0 {
		return 0
	}
	if done >= total {
		return 100
	}
	return int(math.Round(float64(done) * 100 / float64(total)))
}
