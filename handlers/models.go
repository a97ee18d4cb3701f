package handlers

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/surajsub/deployassist/credentials"
	"github.com/surajsub/deployassist/db"
	"github.com/surajsub/deployassist/models"
)

type CreateSetupRequest struct {
	AppName     string `json:"app_name"`
	Environment string `json:"environment"`
	Domain      string `json:"domain"`
	Region      string `json:"region"`
}

type CreateConfigurationRequest struct {
	IntegrationType string `json:"integration_type"`
}

type TaskView struct {
	TaskType     string            `json:"task_type"`
	Description  string            `json:"description"`
	Status       models.TaskStatus `json:"status"`
	Result       map[string]any    `json:"result,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	ErrorCode    string            `json:"error_code,omitempty"`
	Attempts     int               `json:"attempts"`
	ExecutedAt   *time.Time        `json:"executed_at,omitempty"`
	FinishedAt   *time.Time        `json:"finished_at,omitempty"`
}

type ConfigurationView struct {
	ID                   uuid.UUID                  `json:"id"`
	DeploymentSetupID    uuid.UUID                  `json:"deployment_setup_id"`
	IntegrationType      models.IntegrationType     `json:"integration_type"`
	Status               models.ConfigurationStatus `json:"status"`
	CompletionPercentage int                        `json:"completion_percentage"`
	CurrentStep          int                        `json:"current_step"`
	TotalSteps           int                        `json:"total_steps"`
	ErrorMessage         string                     `json:"error_message,omitempty"`
	CompletedAt          *time.Time                 `json:"completed_at,omitempty"`
	TemplateID           *uuid.UUID                 `json:"template_id,omitempty"`
	Tasks                []TaskView                 `json:"tasks"`
}

type StepView struct {
	Step       int            `json:"step"`
	StepKey    string         `json:"step_key"`
	TotalSteps int            `json:"total_steps"`
	Fields     []string       `json:"fields"`
	Data       map[string]any `json:"data"`
}

type CredentialView struct {
	ID             uuid.UUID  `json:"id"`
	Service        string     `json:"service"`
	CredentialType string     `json:"credential_type"`
	Masked         string     `json:"masked_identifier"`
	Active         bool       `json:"active"`
	KeyVersion     string     `json:"key_version"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func credentialView(c *db.Credential) CredentialView {
	return CredentialView{
		ID:             c.ID,
		Service:        c.Service,
		CredentialType: c.CredentialType,
		Masked:         credentials.Masked(c),
		Active:         c.Active,
		KeyVersion:     c.KeyVersion,
		ExpiresAt:      c.ExpiresAt,
		CreatedAt:      c.CreatedAt,
	}
}

type WorkflowStatus struct {
	WorkflowID string     `json:"workflow_id"`
	RunID      string     `json:"run_id"`
	Status     string     `json:"status"`
	StartTime  *time.Time `json:"start_time,omitempty"`
	CloseTime  *time.Time `json:"close_time,omitempty"`
	Duration   string     `json:"duration,omitempty"`
}

const redacted = "********"

// redact replaces secret-looking values in step data before it leaves the
// service.
func redact(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		switch t := v.(type) {
		case map[string]any:
			out[k] = redact(t)
		case string:
			if t != "" && sensitiveKey(k) {
				out[k] = redacted
			} else {
				out[k] = t
			}
		default:
			out[k] = v
		}
	}
	return out
}

func sensitiveKey(k string) bool {
	k = strings.ToLower(k)
	for _, s := range []string{"secret", "password", "api_key", "token"} {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

type ConfigurationSummary struct {
	ID                   uuid.UUID                  `json:"id"`
	IntegrationType      models.IntegrationType     `json:"integration_type"`
	Status               models.ConfigurationStatus `json:"status"`
	CompletionPercentage int                        `json:"completion_percentage"`
}

type SetupView struct {
	ID             uuid.UUID              `json:"id"`
	AppName        string                 `json:"app_name"`
	Environment    string                 `json:"environment"`
	Domain         string                 `json:"domain,omitempty"`
	Region         string                 `json:"region,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	Configurations []ConfigurationSummary `json:"configurations"`
}

func setupView(s *db.DeploymentSetup) SetupView {
	v := SetupView{
		ID:             s.ID,
		AppName:        s.AppName,
		Environment:    s.Environment,
		Domain:         s.Domain,
		Region:         s.Region,
		CreatedAt:      s.CreatedAt,
		Configurations: []ConfigurationSummary{},
	}
	for _, c := range s.Configurations {
		v.Configurations = append(v.Configurations, ConfigurationSummary{
			ID:                   c.ID,
			IntegrationType:      c.IntegrationType,
			Status:               c.Status,
			CompletionPercentage: c.CompletionPercentage,
		})
	}
	return v
}

func taskView(t *db.AutomationTask) TaskView {
	result, err := db.DecodeObject(t.Result)
	if err != nil {
		result = map[string]any{"error": "invalid result document"}
	}
	return TaskView{
		TaskType:     t.TaskType,
		Description:  t.Description,
		Status:       t.Status,
		Result:       result,
		ErrorMessage: t.ErrorMessage,
		ErrorCode:    t.ErrorCode,
		Attempts:     t.Attempts,
		ExecutedAt:   t.ExecutedAt,
		FinishedAt:   t.FinishedAt,
	}
}

type CreateTemplateRequest struct {
	Name            string         `json:"name"`
	Description     string         `json:"description"`
	IntegrationType string         `json:"integration_type"`
	TemplateData    map[string]any `json:"template_data"`
	Public          bool           `json:"public"`
}

type ApplyTemplateRequest struct {
	TemplateID uuid.UUID `json:"template_id"`
}

type TemplateView struct {
	ID              uuid.UUID              `json:"id"`
	Name            string                 `json:"name"`
	Description     string                 `json:"description,omitempty"`
	IntegrationType models.IntegrationType `json:"integration_type"`
	TemplateData    map[string]any         `json:"template_data"`
	Public          bool                   `json:"public"`
	UsageCount      int                    `json:"usage_count"`
	CreatedAt       time.Time              `json:"created_at"`
}

func templateView(t *db.ConfigurationTemplate) (TemplateView, error) {
	data, err := t.Data()
	if err != nil {
		return TemplateView{}, err
	}
	return TemplateView{
		ID:              t.ID,
		Name:            t.Name,
		Description:     t.Description,
		IntegrationType: t.IntegrationType,
		TemplateData:    data,
		Public:          t.Public,
		UsageCount:      t.UsageCount,
		CreatedAt:       t.CreatedAt,
	}, nil
}
