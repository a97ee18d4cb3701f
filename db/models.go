package db

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/surajsub/deployassist/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type DeploymentSetup struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	AppName        string          `gorm:"not null" json:"app_name"`
	Environment    string          `gorm:"not null" json:"environment"`
	Domain         string          `json:"domain,omitempty"`
	Region         string          `json:"region,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Configurations []Configuration `gorm:"foreignKey:DeploymentSetupID;constraint:OnDelete:CASCADE" json:"configurations,omitempty"`
	Credentials    []Credential    `gorm:"foreignKey:DeploymentSetupID;constraint:OnDelete:CASCADE" json:"-"`
}

func (s *DeploymentSetup) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Environment == "" {
		s.Environment = "production"
	}
	return nil
}

// Configuration is one integration instance inside a deployment setup.
type Configuration struct {
	ID                   uuid.UUID                  `gorm:"type:uuid;primaryKey" json:"id"`
	DeploymentSetupID    uuid.UUID                  `gorm:"type:uuid;not null;uniqueIndex:idx_configuration_setup_type" json:"deployment_setup_id"`
	IntegrationType      models.IntegrationType     `gorm:"type:varchar(32);not null;uniqueIndex:idx_configuration_setup_type" json:"integration_type"`
	Status               models.ConfigurationStatus `gorm:"type:varchar(32);not null;index" json:"status"`
	CompletionPercentage int                        `gorm:"not null" json:"completion_percentage"`
	CollectedData        datatypes.JSON             `json:"collected_data"`
	AutomationResults    datatypes.JSON             `json:"automation_results"`
	ErrorMessage         string                     `json:"error_message,omitempty"`
	CompletedAt          *time.Time                 `json:"completed_at,omitempty"`
	TemplateID           *uuid.UUID                 `gorm:"type:uuid;index" json:"template_id,omitempty"`
	CreatedAt            time.Time                  `json:"created_at"`
	UpdatedAt            time.Time                  `json:"updated_at"`

	DeploymentSetup *DeploymentSetup `gorm:"foreignKey:DeploymentSetupID" json:"-"`
	Steps           []WizardStep     `gorm:"foreignKey:ConfigurationID;constraint:OnDelete:CASCADE" json:"steps,omitempty"`
	Tasks           []AutomationTask `gorm:"foreignKey:ConfigurationID;constraint:OnDelete:CASCADE" json:"tasks,omitempty"`
	Instructions    []Instruction    `gorm:"foreignKey:ConfigurationID;constraint:OnDelete:CASCADE" json:"instructions,omitempty"`
}

func (c *Configuration) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = models.StatusNotStarted
	}
	if len(c.CollectedData) == 0 {
		c.CollectedData = datatypes.JSON("{}")
	}
	if len(c.AutomationResults) == 0 {
		c.AutomationResults = datatypes.JSON("{}")
	}
	return nil
}

// Data decodes collected_data. A missing document decodes to an empty map.
func (c *Configuration) Data() (map[string]any, error) {
	return DecodeObject(c.CollectedData)
}

func (c *Configuration) Results() (map[string]any, error) {
	return DecodeObject(c.AutomationResults)
}

type WizardStep struct {
	ID              uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	ConfigurationID uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex:idx_step_configuration_key;index:idx_step_configuration_number" json:"configuration_id"`
	StepNumber      int               `gorm:"not null;index:idx_step_configuration_number" json:"step_number"`
	StepKey         string            `gorm:"type:varchar(64);not null;uniqueIndex:idx_step_configuration_key" json:"step_key"`
	Status          models.StepStatus `gorm:"type:varchar(32);not null" json:"status"`
	StepData        datatypes.JSON    `json:"step_data"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

func (s *WizardStep) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Status == "" {
		s.Status = models.StepPending
	}
	if len(s.StepData) == 0 {
		s.StepData = datatypes.JSON("{}")
	}
	return nil
}

// AutomationTask records one provisioning call. At most one row exists per
// configuration and task type.
type AutomationTask struct {
	ID              uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	ConfigurationID uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex:idx_task_configuration_type" json:"configuration_id"`
	TaskType        string            `gorm:"type:varchar(64);not null;uniqueIndex:idx_task_configuration_type" json:"task_type"`
	Description     string            `json:"description"`
	Status          models.TaskStatus `gorm:"type:varchar(32);not null" json:"status"`
	TaskParams      datatypes.JSON    `json:"task_params"`
	Result          datatypes.JSON    `json:"result"`
	ErrorMessage    string            `json:"error_message,omitempty"`
	ErrorCode       string            `json:"error_code,omitempty"`
	Attempts        int               `gorm:"not null" json:"attempts"`
	ExecutedAt      *time.Time        `json:"executed_at,omitempty"`
	FinishedAt      *time.Time        `json:"finished_at,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

func (t *AutomationTask) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = models.TaskPending
	}
	if len(t.TaskParams) == 0 {
		t.TaskParams = datatypes.JSON("{}")
	}
	if len(t.Result) == 0 {
		t.Result = datatypes.JSON("{}")
	}
	return nil
}

// Credential holds one envelope-encrypted secret. Rows are never updated in
// place except to flip Active off.
type Credential struct {
	ID                uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	DeploymentSetupID uuid.UUID  `gorm:"type:uuid;not null;index:idx_credential_lookup" json:"deployment_setup_id"`
	Service           string     `gorm:"type:varchar(64);not null;index:idx_credential_lookup" json:"service"`
	CredentialType    string     `gorm:"type:varchar(64);not null;index:idx_credential_lookup" json:"credential_type"`
	EncryptedValue    string     `gorm:"type:text;not null" json:"-"`
	KeyIdentifier     string     `json:"-"`
	KeyVersion        string     `json:"key_version"`
	Active            bool       `gorm:"not null;index:idx_credential_lookup" json:"active"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (c *Credential) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

type Instruction struct {
	ID              uuid.UUID              `gorm:"type:uuid;primaryKey" json:"id"`
	ConfigurationID uuid.UUID              `gorm:"type:uuid;not null;index" json:"configuration_id"`
	StepNumber      int                    `gorm:"not null" json:"step_number"`
	Title           string                 `gorm:"not null" json:"title"`
	InstructionType models.InstructionType `gorm:"type:varchar(32);not null" json:"instruction_type"`
	InstructionText string                 `gorm:"type:text;not null" json:"instruction_text"`
	Data            datatypes.JSON         `json:"data"`
	Completed       bool                   `gorm:"not null" json:"completed"`
	CompletedAt     *time.Time             `json:"completed_at,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

func (i *Instruction) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	if len(i.Data) == 0 {
		i.Data = datatypes.JSON("{}")
	}
	return nil
}

// DataMap decodes the instruction's structured payload.
func (i *Instruction) DataMap() (map[string]any, error) {
	return DecodeObject(i.Data)
}

// ConfigurationTemplate is reusable wizard data for one integration type.
// TemplateData is a flat map of step field names to values.
type ConfigurationTemplate struct {
	ID              uuid.UUID              `gorm:"type:uuid;primaryKey" json:"id"`
	Name            string                 `gorm:"not null" json:"name"`
	Description     string                 `gorm:"type:text" json:"description,omitempty"`
	IntegrationType models.IntegrationType `gorm:"type:varchar(32);not null;index" json:"integration_type"`
	TemplateData    datatypes.JSON         `json:"template_data"`
	Public          bool                   `gorm:"not null;default:false;index" json:"public"`
	UsageCount      int                    `gorm:"not null;default:0" json:"usage_count"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

func (t *ConfigurationTemplate) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if len(t.TemplateData) == 0 {
		t.TemplateData = datatypes.JSON("{}")
	}
	return nil
}

func (t *ConfigurationTemplate) Data() (map[string]any, error) {
	return DecodeObject(t.TemplateData)
}

// AutoMigrate creates or updates every table the service owns.
func AutoMigrate(g *gorm.DB) error {
	return g.AutoMigrate(
		&DeploymentSetup{},
		&Configuration{},
		&WizardStep{},
		&AutomationTask{},
		&Credential{},
		&Instruction{},
		&ConfigurationTemplate{},
	)
}

// EncodeObject marshals a JSON object for a jsonb column.
func EncodeObject(v map[string]any) (datatypes.JSON, error) {
	if v == nil {
		return datatypes.JSON("{}"), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode json document: %w", err)
	}
	return datatypes.JSON(b), nil
}

func DecodeObject(raw datatypes.JSON) (map[string]any, error) {
	out := map[string]any{}
	if len(raw) == 0 || string(raw) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode json document: %w", err)
	}
	return out, nil
}
