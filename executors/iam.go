package executors

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/sirupsen/logrus"
	"github.com/surajsub/deployassist/models"
)

var deployUserPolicies = []string{
	"arn:aws:iam::aws:policy/AmazonEC2ContainerRegistryFullAccess",
	"arn:aws:iam::aws:policy/AmazonS3FullAccess",
	"arn:aws:iam::aws:policy/AmazonRDSFullAccess",
}

type iamAPI interface {
	GetUser(ctx context.Context, in *iam.GetUserInput, optFns ...func(*iam.Options)) (*iam.GetUserOutput, error)
	CreateUser(ctx context.Context, in *iam.CreateUserInput, optFns ...func(*iam.Options)) (*iam.CreateUserOutput, error)
	AttachUserPolicy(ctx context.Context, in *iam.AttachUserPolicyInput, optFns ...func(*iam.Options)) (*iam.AttachUserPolicyOutput, error)
	CreateAccessKey(ctx context.Context, in *iam.CreateAccessKeyInput, optFns ...func(*iam.Options)) (*iam.CreateAccessKeyOutput, error)
}

// IAMExecutor creates the deploy user an application ships with.
type IAMExecutor struct {
	*ExecutorBase
	client iamAPI
}

func NewIAMExecutor(creds models.ProviderCredentials, logger *logrus.Logger) (*IAMExecutor, error) {
	cfg, err := LoadAWSConfig(context.Background(), creds)
	if err != nil {
		return nil, err
	}
	return newIAMExecutor(iam.NewFromConfig(cfg), creds, logger), nil
}

func newIAMExecutor(client iamAPI, creds models.ProviderCredentials, logger *logrus.Logger) *IAMExecutor {
	return &IAMExecutor{
		ExecutorBase: NewExecutorBase(IAM, creds, []string{CreateDeploymentUser}, logger),
		client:       client,
	}
}

func (e *IAMExecutor) Execute(ctx context.Context, req models.ProviderRequest) models.ProviderResult {
	if err := e.ValidateOperation(req.Operation); err != nil {
		return models.Failed(err.Error(), "unsupported_operation")
	}
	return e.createDeploymentUser(ctx, req)
}

func (e *IAMExecutor) createDeploymentUser(ctx context.Context, req models.ProviderRequest) models.ProviderResult {
	username := resourceName(stringParam(req.Params, "app_name", "app"), "deploy")
	logger := e.log(req).WithField("username", username)

	var (
		userARN string
		reused  bool
	)
	existing, err := e.client.GetUser(ctx, &iam.GetUserInput{UserName: aws.String(username)})
	switch {
	case err == nil:
		userARN = aws.ToString(existing.User.Arn)
		reused = true
		logger.Info("Deploy user already exists, reusing it")
	case isNoSuchEntity(err):
		created, err := e.client.CreateUser(ctx, &iam.CreateUserInput{
			UserName: aws.String(username),
			Tags: []iamtypes.Tag{
				{Key: aws.String("managed-by"), Value: aws.String("deployassist")},
			},
		})
		if err != nil {
			return awsFailure("create IAM user", err)
		}
		userARN = aws.ToString(created.User.Arn)
		logger.Info("Created deploy user")
	default:
		return awsFailure("look up IAM user", err)
	}

	for _, policy := range deployUserPolicies {
		if _, err := e.client.AttachUserPolicy(ctx, &iam.AttachUserPolicyInput{
			UserName:  aws.String(username),
			PolicyArn: aws.String(policy),
		}); err != nil {
			return awsFailure(fmt.Sprintf("attach policy %s", policy), err)
		}
	}

	key, err := e.client.CreateAccessKey(ctx, &iam.CreateAccessKeyInput{UserName: aws.String(username)})
	if err != nil {
		return awsFailure("create access key", err)
	}
	accessKeyID := aws.ToString(key.AccessKey.AccessKeyId)

	return models.Succeeded(
		map[string]any{
			"username":    username,
			"user_arn":    userARN,
			"policies":    deployUserPolicies,
			"reused_user": reused,
		},
		models.SecretOutput{
			Service:        models.ServiceIAM,
			CredentialType: models.CredentialAccessKeyID,
			Value:          accessKeyID,
			Identifier:     accessKeyID,
		},
		models.SecretOutput{
			Service:        models.ServiceIAM,
			CredentialType: models.CredentialSecretAccessKey,
			Value:          aws.ToString(key.AccessKey.SecretAccessKey),
			Identifier:     accessKeyID,
		},
	)
}

func isNoSuchEntity(err error) bool {
	return isAWSErrorCode(err, (&iamtypes.NoSuchEntityException{}).ErrorCode())
}
