package executors

import (
	"context"
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"
	"github.com/surajsub/deployassist/models"
)

// Executor is a narrow adapter over one external provider. Provider errors
// are returned in the ProviderResult, never as Go errors.
type Executor interface {
	Execute(ctx context.Context, req models.ProviderRequest) models.ProviderResult
	ValidateOperation(operation string) error
}

type ExecutorBase struct {
	Name                string
	Credentials         models.ProviderCredentials
	SupportedOperations []string
	Logger              *logrus.Logger
}

func NewExecutorBase(name string, creds models.ProviderCredentials, operations []string, logger *logrus.Logger) *ExecutorBase {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetLevel(logrus.InfoLevel)
	}
	return &ExecutorBase{
		Name:                name,
		Credentials:         creds,
		SupportedOperations: operations,
		Logger:              logger,
	}
}

func (e *ExecutorBase) Execute(_ context.Context, req models.ProviderRequest) models.ProviderResult {
	return models.Failed(fmt.Sprintf("execute not implemented for %s/%s", e.Name, req.Operation), "not_implemented")
}

func (e *ExecutorBase) ValidateOperation(operation string) error {
	if !slices.Contains(e.SupportedOperations, operation) {
		return fmt.Errorf("operation %s not supported by executor %s", operation, e.Name)
	}
	return nil
}

func (e *ExecutorBase) log(req models.ProviderRequest) *logrus.Entry {
	return e.Logger.WithFields(logrus.Fields{
		"executor":  e.Name,
		"operation": req.Operation,
	})
}
