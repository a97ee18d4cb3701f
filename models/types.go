package models

import "fmt"

// IntegrationType is the closed set of integrations a configuration can target.
type IntegrationType string

const (
	CloudDeployment    IntegrationType = "cloud_deployment"
	OAuth              IntegrationType = "oauth"
	TransactionalEmail IntegrationType = "transactional_email"
	Payments           IntegrationType = "payments"
	BrowserExtension   IntegrationType = "browser_extension"
)

var IntegrationTypes = []IntegrationType{
	CloudDeployment,
	OAuth,
	TransactionalEmail,
	Payments,
	BrowserExtension,
}

func (t IntegrationType) Valid() bool {
	for _, it := range IntegrationTypes {
		if it == t {
			return true
		}
	}
	return false
}

func ParseIntegrationType(s string) (IntegrationType, error) {
	t := IntegrationType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown integration type %q", s)
	}
	return t, nil
}

type ConfigurationStatus string

const (
	StatusNotStarted     ConfigurationStatus = "not_started"
	StatusCollectingInfo ConfigurationStatus = "collecting_info"
	StatusInProgress     ConfigurationStatus = "in_progress"
	StatusCompleted      ConfigurationStatus = "completed"
	StatusFailed         ConfigurationStatus = "failed"
)

// Finalized reports whether the wizard has handed the configuration to the pipeline.
func (s ConfigurationStatus) Finalized() bool {
	return s == StatusInProgress || s == StatusCompleted || s == StatusFailed
}

// Terminal reports whether a pipeline run has finished.
func (s ConfigurationStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepSkipped    StepStatus = "skipped"
)

// Done reports whether the step unblocks the one after it.
func (s StepStatus) Done() bool {
	return s == StepCompleted || s == StepSkipped
}

type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

type InstructionType string

const (
	CopySnippet  InstructionType = "copy_snippet"
	ManualAction InstructionType = "manual_action"
	ExternalLink InstructionType = "external_link"
)

// Credential services and types written by the provisioning pipeline.
const (
	ServiceIAM    = "aws_iam"
	ServiceRDS    = "rds"
	ServiceStripe = "stripe"

	CredentialAccessKeyID     = "access_key_id"
	CredentialSecretAccessKey = "secret_access_key"
	CredentialMasterPassword  = "master_password"
	CredentialWebhookSecret   = "webhook_secret"
)
