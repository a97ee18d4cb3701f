package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/surajsub/deployassist/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the persistence layer for setups, configurations and everything
// they own. A Store created inside Transaction is bound to that transaction.
type Store struct {
	db *gorm.DB
}

func NewStore(g *gorm.DB) *Store {
	return &Store{db: g}
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

// Transaction runs fn against a transaction-scoped Store.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("load %s: %w", what, err)
}

// Deployment setups

func (s *Store) CreateSetup(ctx context.Context, setup *DeploymentSetup) error {
	if err := s.db.WithContext(ctx).Create(setup).Error; err != nil {
		return fmt.Errorf("create deployment setup: %w", err)
	}
	return nil
}

func (s *Store) GetSetup(ctx context.Context, id uuid.UUID) (*DeploymentSetup, error) {
	var setup DeploymentSetup
	err := s.db.WithContext(ctx).
		Preload("Configurations", func(tx *gorm.DB) *gorm.DB { return tx.Order("created_at") }).
		First(&setup, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err, "deployment setup")
	}
	return &setup, nil
}

// ListSetups returns every deployment setup, newest first, with their
// configurations.
func (s *Store) ListSetups(ctx context.Context) ([]DeploymentSetup, error) {
	var setups []DeploymentSetup
	err := s.db.WithContext(ctx).
		Preload("Configurations", func(tx *gorm.DB) *gorm.DB { return tx.Order("created_at") }).
		Order("created_at DESC").
		Find(&setups).Error
	if err != nil {
		return nil, fmt.Errorf("list deployment setups: %w", err)
	}
	return setups, nil
}

// Configurations

// FindOrCreateConfiguration returns the configuration for (setup, type),
// creating it in not_started when absent.
func (s *Store) FindOrCreateConfiguration(ctx context.Context, setupID uuid.UUID, t models.IntegrationType) (*Configuration, bool, error) {
	cfg := Configuration{DeploymentSetupID: setupID, IntegrationType: t}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&cfg)
	if res.Error != nil {
		return nil, false, fmt.Errorf("create configuration: %w", res.Error)
	}
	created := res.RowsAffected == 1

	var existing Configuration
	err := s.db.WithContext(ctx).
		First(&existing, "deployment_setup_id = ? AND integration_type = ?", setupID, t).Error
	if err != nil {
		return nil, false, notFound(err, "configuration")
	}
	return &existing, created, nil
}

func (s *Store) GetConfiguration(ctx context.Context, id uuid.UUID) (*Configuration, error) {
	var cfg Configuration
	if err := s.db.WithContext(ctx).Preload("DeploymentSetup").First(&cfg, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "configuration")
	}
	return &cfg, nil
}

// UpdateConfiguration writes the given columns. A map is used so zero values
// such as an empty error_message are persisted.
func (s *Store) UpdateConfiguration(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	res := s.db.WithContext(ctx).Model(&Configuration{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update configuration %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("configuration %s: %w", id, ErrNotFound)
	}
	return nil
}

// TransitionConfiguration applies fields only while the configuration is in
// status from, and reports whether it did.
func (s *Store) TransitionConfiguration(ctx context.Context, id uuid.UUID, from models.ConfigurationStatus, fields map[string]any) (bool, error) {
	res := s.db.WithContext(ctx).Model(&Configuration{}).
		Where("id = ? AND status = ?", id, from).
		Updates(fields)
	if res.Error != nil {
		return false, fmt.Errorf("update configuration %s: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Wizard steps

func (s *Store) ListSteps(ctx context.Context, configID uuid.UUID) ([]WizardStep, error) {
	var steps []WizardStep
	err := s.db.WithContext(ctx).
		Where("configuration_id = ?", configID).
		Order("step_number").
		Find(&steps).Error
	if err != nil {
		return nil, fmt.Errorf("list wizard steps: %w", err)
	}
	return steps, nil
}

func (s *Store) FindStep(ctx context.Context, configID uuid.UUID, stepNumber int) (*WizardStep, error) {
	var step WizardStep
	err := s.db.WithContext(ctx).
		First(&step, "configuration_id = ? AND step_number = ?", configID, stepNumber).Error
	if err != nil {
		return nil, notFound(err, "wizard step")
	}
	return &step, nil
}

func (s *Store) SaveStep(ctx context.Context, step *WizardStep) error {
	if err := s.db.WithContext(ctx).Save(step).Error; err != nil {
		return fmt.Errorf("save wizard step %d: %w", step.StepNumber, err)
	}
	return nil
}

func (s *Store) CountDoneSteps(ctx context.Context, configID uuid.UUID) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&WizardStep{}).
		Where("configuration_id = ? AND status IN ?", configID, []models.StepStatus{models.StepCompleted, models.StepSkipped}).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count wizard steps: %w", err)
	}
	return n, nil
}

// Automation tasks

func (s *Store) FindTask(ctx context.Context, configID uuid.UUID, taskType string) (*AutomationTask, error) {
	var task AutomationTask
	err := s.db.WithContext(ctx).
		First(&task, "configuration_id = ? AND task_type = ?", configID, taskType).Error
	if err != nil {
		return nil, notFound(err, "automation task")
	}
	return &task, nil
}

func (s *Store) SaveTask(ctx context.Context, task *AutomationTask) error {
	if err := s.db.WithContext(ctx).Save(task).Error; err != nil {
		return fmt.Errorf("save automation task %s: %w", task.TaskType, err)
	}
	return nil
}

func (s *Store) ListTasks(ctx context.Context, configID uuid.UUID) ([]AutomationTask, error) {
	var tasks []AutomationTask
	err := s.db.WithContext(ctx).
		Where("configuration_id = ?", configID).
		Order("created_at").
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("list automation tasks: %w", err)
	}
	return tasks, nil
}

// Credentials

func (s *Store) CreateCredential(ctx context.Context, c *Credential) error {
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("create credential: %w", err)
	}
	return nil
}

// DeactivateCredentials flips every active credential for (setup, service, type) off.
func (s *Store) DeactivateCredentials(ctx context.Context, setupID uuid.UUID, service, credentialType string) error {
	err := s.db.WithContext(ctx).Model(&Credential{}).
		Where("deployment_setup_id = ? AND service = ? AND credential_type = ? AND active = ?", setupID, service, credentialType, true).
		Update("active", false).Error
	if err != nil {
		return fmt.Errorf("deactivate credentials: %w", err)
	}
	return nil
}

func (s *Store) SetCredentialActive(ctx context.Context, id uuid.UUID, active bool) error {
	res := s.db.WithContext(ctx).Model(&Credential{}).Where("id = ?", id).Update("active", active)
	if res.Error != nil {
		return fmt.Errorf("update credential %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("credential %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *Store) FindActiveCredential(ctx context.Context, setupID uuid.UUID, service, credentialType string) (*Credential, error) {
	var c Credential
	err := s.db.WithContext(ctx).
		Where("deployment_setup_id = ? AND service = ? AND credential_type = ? AND active = ?", setupID, service, credentialType, true).
		Order("created_at DESC").
		First(&c).Error
	if err != nil {
		return nil, notFound(err, "credential")
	}
	return &c, nil
}

func (s *Store) GetCredential(ctx context.Context, id uuid.UUID) (*Credential, error) {
	var c Credential
	if err := s.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "credential")
	}
	return &c, nil
}

func (s *Store) ListCredentials(ctx context.Context, setupID uuid.UUID, activeOnly bool) ([]Credential, error) {
	var creds []Credential
	q := s.db.WithContext(ctx).Where("deployment_setup_id = ?", setupID)
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	if err := q.Order("service, credential_type, created_at").Find(&creds).Error; err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	return creds, nil
}

// Instructions

type instructionKey struct {
	step  int
	title string
}

// ReplaceInstructions swaps the configuration's instruction set for a freshly
// generated one. Instructions the user already completed stay completed when
// the new set has one with the same step number and title.
func (s *Store) ReplaceInstructions(ctx context.Context, configID uuid.UUID, instructions []Instruction) error {
	return s.Transaction(ctx, func(tx *Store) error {
		var previous []Instruction
		if err := tx.db.Where("configuration_id = ? AND completed = ?", configID, true).Find(&previous).Error; err != nil {
			return fmt.Errorf("load completed instructions: %w", err)
		}
		done := make(map[instructionKey]*time.Time, len(previous))
		for _, p := range previous {
			done[instructionKey{p.StepNumber, p.Title}] = p.CompletedAt
		}

		if err := tx.db.Where("configuration_id = ?", configID).Delete(&Instruction{}).Error; err != nil {
			return fmt.Errorf("clear instructions: %w", err)
		}
		if len(instructions) == 0 {
			return nil
		}
		for i := range instructions {
			instructions[i].ConfigurationID = configID
			if at, ok := done[instructionKey{instructions[i].StepNumber, instructions[i].Title}]; ok {
				instructions[i].Completed = true
				instructions[i].CompletedAt = at
			}
		}
		if err := tx.db.Create(&instructions).Error; err != nil {
			return fmt.Errorf("insert instructions: %w", err)
		}
		return nil
	})
}

func (s *Store) ListInstructions(ctx context.Context, configID uuid.UUID) ([]Instruction, error) {
	var out []Instruction
	err := s.db.WithContext(ctx).
		Where("configuration_id = ?", configID).
		Order("step_number").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list instructions: %w", err)
	}
	return out, nil
}

// CompleteInstruction marks one instruction as done. Only the completion flag
// is mutable; text and data are left as generated.
func (s *Store) CompleteInstruction(ctx context.Context, configID, instructionID uuid.UUID, at time.Time) (*Instruction, error) {
	res := s.db.WithContext(ctx).Model(&Instruction{}).
		Where("id = ? AND configuration_id = ?", instructionID, configID).
		Updates(map[string]any{"completed": true, "completed_at": at})
	if res.Error != nil {
		return nil, fmt.Errorf("complete instruction: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("instruction %s: %w", instructionID, ErrNotFound)
	}
	var ins Instruction
	if err := s.db.WithContext(ctx).First(&ins, "id = ?", instructionID).Error; err != nil {
		return nil, notFound(err, "instruction")
	}
	return &ins, nil
}

// Configuration templates

func (s *Store) CreateTemplate(ctx context.Context, t *ConfigurationTemplate) error {
	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		return fmt.Errorf("create configuration template: %w", err)
	}
	return nil
}

func (s *Store) GetTemplate(ctx context.Context, id uuid.UUID) (*ConfigurationTemplate, error) {
	var t ConfigurationTemplate
	if err := s.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "configuration template")
	}
	return &t, nil
}

// TemplateFilter narrows ListTemplates. Zero values match everything.
type TemplateFilter struct {
	IntegrationType models.IntegrationType
	PublicOnly      bool
}

// ListTemplates returns matching templates, most used first.
func (s *Store) ListTemplates(ctx context.Context, f TemplateFilter) ([]ConfigurationTemplate, error) {
	q := s.db.WithContext(ctx).Model(&ConfigurationTemplate{})
	if f.IntegrationType != "" {
		q = q.Where("integration_type = ?", f.IntegrationType)
	}
	if f.PublicOnly {
		q = q.Where("public = ?", true)
	}
	var out []ConfigurationTemplate
	if err := q.Order("usage_count DESC").Order("name").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list configuration templates: %w", err)
	}
	return out, nil
}

func (s *Store) IncrementTemplateUsage(ctx context.Context, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Model(&ConfigurationTemplate{}).
		Where("id = ?", id).
		UpdateColumn("usage_count", gorm.Expr("usage_count + ?", 1))
	if res.Error != nil {
		return fmt.Errorf("update configuration template %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("configuration template %s: %w", id, ErrNotFound)
	}
	return nil
}
