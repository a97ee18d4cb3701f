package executors

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/sirupsen/logrus"
	"github.com/surajsub/deployassist/models"
)

const (
	defaultDBInstanceClass = "db.t3.small"
	defaultDBStorageGB     = 20
	defaultDBEngineVersion = "16.1"
	dbMasterUsername       = "dbadmin"
)

type rdsAPI interface {
	DescribeDBInstances(ctx context.Context, in *rds.DescribeDBInstancesInput, optFns ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error)
	CreateDBInstance(ctx context.Context, in *rds.CreateDBInstanceInput, optFns ...func(*rds.Options)) (*rds.CreateDBInstanceOutput, error)
}

// RDSExecutor initiates creation of the application's Postgres instance. It
// does not wait for the instance to become available.
type RDSExecutor struct {
	*ExecutorBase
	client   rdsAPI
	password func() (string, error)
}

func NewRDSExecutor(creds models.ProviderCredentials, logger *logrus.Logger) (*RDSExecutor, error) {
	cfg, err := LoadAWSConfig(context.Background(), creds)
	if err != nil {
		return nil, err
	}
	return newRDSExecutor(rds.NewFromConfig(cfg), creds, logger), nil
}

func newRDSExecutor(client rdsAPI, creds models.ProviderCredentials, logger *logrus.Logger) *RDSExecutor {
	return &RDSExecutor{
		ExecutorBase: NewExecutorBase(RDS, creds, []string{CreateDatabase}, logger),
		client:       client,
		password:     func() (string, error) { return generatePassword(32) },
	}
}

func (e *RDSExecutor) Execute(ctx context.Context, req models.ProviderRequest) models.ProviderResult {
	if err := e.ValidateOperation(req.Operation); err != nil {
		return models.Failed(err.Error(), "unsupported_operation")
	}
	return e.createDatabase(ctx, req)
}

func (e *RDSExecutor) createDatabase(ctx context.Context, req models.ProviderRequest) models.ProviderResult {
	app := stringParam(req.Params, "app_name", "app")
	identifier := resourceName(app, stringParam(req.Params, "environment", "production"), "db")
	dbName := resourceName(app)
	logger := e.log(req).WithField("db_instance", identifier)

	existing, err := e.client.DescribeDBInstances(ctx, &rds.DescribeDBInstancesInput{
		DBInstanceIdentifier: aws.String(identifier),
	})
	if err == nil && len(existing.DBInstances) > 0 {
		inst := existing.DBInstances[0]
		logger.Info("Database instance already exists")
		fields := instanceFields(identifier, inst)
		fields["existed"] = true
		return models.Succeeded(fields)
	}
	if err != nil && !isDBInstanceNotFound(err) {
		return awsFailure("describe database instance", err)
	}

	password, err := e.password()
	if err != nil {
		return models.Failed("generate master password: "+err.Error(), "")
	}

	out, err := e.client.CreateDBInstance(ctx, &rds.CreateDBInstanceInput{
		DBInstanceIdentifier:       aws.String(identifier),
		DBInstanceClass:            aws.String(stringParam(req.Params, "db_instance_class", defaultDBInstanceClass)),
		DBName:                     aws.String(underscored(dbName)),
		Engine:                     aws.String("postgres"),
		EngineVersion:              aws.String(defaultDBEngineVersion),
		MasterUsername:             aws.String(dbMasterUsername),
		MasterUserPassword:         aws.String(password),
		AllocatedStorage:           aws.Int32(int32(intParam(req.Params, "storage_gb", defaultDBStorageGB))),
		StorageType:                aws.String("gp3"),
		StorageEncrypted:           aws.Bool(true),
		MultiAZ:                    aws.Bool(boolParam(req.Params, "multi_az", false)),
		PubliclyAccessible:         aws.Bool(false),
		BackupRetentionPeriod:      aws.Int32(7),
		PreferredBackupWindow:      aws.String("03:00-04:00"),
		PreferredMaintenanceWindow: aws.String("sun:04:00-sun:05:00"),
		Tags: []rdstypes.Tag{
			{Key: aws.String("managed-by"), Value: aws.String("deployassist")},
		},
	})
	if err != nil {
		return awsFailure("create database instance", err)
	}

	logger.Info("Database instance creation initiated")
	fields := instanceFields(identifier, *out.DBInstance)
	fields["existed"] = false
	return models.Succeeded(fields, models.SecretOutput{
		Service:        models.ServiceRDS,
		CredentialType: models.CredentialMasterPassword,
		Value:          password,
		Identifier:     identifier,
	})
}

func instanceFields(identifier string, inst rdstypes.DBInstance) map[string]any {
	status := aws.ToString(inst.DBInstanceStatus)
	if status == "" {
		status = "creating"
	}
	fields := map[string]any{
		"db_instance_identifier": identifier,
		"status":                 status,
		"engine":                 "postgres",
		"master_username":        dbMasterUsername,
		"database_name":          aws.ToString(inst.DBName),
	}
	if inst.Endpoint != nil {
		fields["endpoint"] = aws.ToString(inst.Endpoint.Address)
		fields["port"] = aws.ToInt32(inst.Endpoint.Port)
	}
	return fields
}

func isDBInstanceNotFound(err error) bool {
	var nf *rdstypes.DBInstanceNotFoundFault
	if errors.As(err, &nf) {
		return true
	}
	return isAWSErrorCode(err, "DBInstanceNotFound")
}

func underscored(s string) string {
	out := []byte(s)
	for i, c := range out {
		if c == '-' {
			out[i] = '_'
		}
	}
	return string(out)
}
