package executors

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/surajsub/deployassist/models"
)

const (
	IAM    = "aws_iam"
	S3     = "aws_s3"
	RDS    = "aws_rds"
	SES    = "aws_ses"
	STRIPE = "stripe"

	CreateDeploymentUser  = "create_deployment_user"
	CreateStorageBucket   = "create_storage_bucket"
	CreateDatabase        = "create_database"
	VerifyDomain          = "verify_domain"
	VerifyEmail           = "verify_email"
	CreateProducts        = "create_products"
	CreateWebhookEndpoint = "create_webhook_endpoint"
)

type ExecutorConstructor func(creds models.ProviderCredentials, logger *logrus.Logger) (Executor, error)

// Registry maps executor names to constructors and their supported operations.
type Registry struct {
	mu                  sync.RWMutex
	constructors        map[string]ExecutorConstructor
	supportedOperations map[string][]string
	logger              *logrus.Logger
}

func NewRegistry(logger *logrus.Logger) *Registry {
	return &Registry{
		constructors:        make(map[string]ExecutorConstructor),
		supportedOperations: make(map[string][]string),
		logger:              logger,
	}
}

// RegisterExecutor registers an executor and its supported operations.
func (r *Registry) RegisterExecutor(name string, constructor ExecutorConstructor, operations []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.constructors[name]; exists {
		panic(fmt.Sprintf("Executor %s is already registered", name))
	}
	r.constructors[name] = constructor
	r.supportedOperations[name] = operations
}

// GetExecutor builds the named executor with per-request credentials.
func (r *Registry) GetExecutor(name string, creds models.ProviderCredentials) (Executor, error) {
	r.mu.RLock()
	constructor, exists := r.constructors[name]
	r.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("executor %s not found", name)
	}
	return constructor(creds, r.logger)
}

func (r *Registry) Operations(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.supportedOperations[name]...)
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.constructors))
	for name := range r.constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry wires the AWS and Stripe executors.
func DefaultRegistry(logger *logrus.Logger) *Registry {
	r := NewRegistry(logger)
	r.RegisterExecutor(IAM, func(creds models.ProviderCredentials, logger *logrus.Logger) (Executor, error) {
		return NewIAMExecutor(creds, logger)
	}, []string{CreateDeploymentUser})
	r.RegisterExecutor(S3, func(creds models.ProviderCredentials, logger *logrus.Logger) (Executor, error) {
		return NewS3Executor(creds, logger)
	}, []string{CreateStorageBucket})
	r.RegisterExecutor(RDS, func(creds models.ProviderCredentials, logger *logrus.Logger) (Executor, error) {
		return NewRDSExecutor(creds, logger)
	}, []string{CreateDatabase})
	r.RegisterExecutor(SES, func(creds models.ProviderCredentials, logger *logrus.Logger) (Executor, error) {
		return NewSESExecutor(creds, logger)
	}, []string{VerifyDomain, VerifyEmail})
	r.RegisterExecutor(STRIPE, func(creds models.ProviderCredentials, logger *logrus.Logger) (Executor, error) {
		return NewStripeExecutor(creds, logger, nil)
	}, []string{CreateProducts, CreateWebhookEndpoint})
	return r
}
