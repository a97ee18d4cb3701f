package provisioning

import (
	"strings"

	"github.com/surajsub/deployassist/db"
	"github.com/surajsub/deployassist/executors"
	"github.com/surajsub/deployassist/models"
)

const (
	TaskCreateIdentity        = "create_identity"
	TaskCreateStorage         = "create_storage"
	TaskCreateDatabase        = "create_database"
	TaskVerifyDomainIdentity  = "verify_domain_identity"
	TaskVerifyEmailIdentity   = "verify_email_identity"
	TaskCreateProducts        = "create_products"
	TaskCreateWebhookEndpoint = "create_webhook_endpoint"
)

// Task is one provider call in a pipeline run. Params never carry secrets;
// credentials are resolved separately at execution time.
type Task struct {
	Type        string
	Description string
	Executor    string
	Operation   string
	Params      map[string]any
}

// Plan returns the ordered task list for a configuration. Conditional tasks
// are left out when the collected data does not ask for them.
func Plan(t models.IntegrationType, data map[string]any, setup *db.DeploymentSetup) []Task {
	app, env, domain := setupFields(setup)

	switch t {
	case models.CloudDeployment:
		tasks := []Task{{
			Type:        TaskCreateIdentity,
			Description: "Create IAM deploy user with access key",
			Executor:    executors.IAM,
			Operation:   executors.CreateDeploymentUser,
			Params:      map[string]any{"app_name": app},
		}}
		if create, ok := data["create_s3_bucket"].(bool); !ok || create {
			tasks = append(tasks, Task{
				Type:        TaskCreateStorage,
				Description: "Create S3 bucket with versioning, CORS and encryption",
				Executor:    executors.S3,
				Operation:   executors.CreateStorageBucket,
				Params: compact(map[string]any{
					"app_name":    app,
					"environment": env,
					"bucket_name": data["s3_bucket_name"],
				}),
			})
		}
		tasks = append(tasks, Task{
			Type:        TaskCreateDatabase,
			Description: "Create RDS PostgreSQL instance",
			Executor:    executors.RDS,
			Operation:   executors.CreateDatabase,
			Params: compact(map[string]any{
				"app_name":          app,
				"environment":       env,
				"db_instance_class": data["db_instance_class"],
				"storage_gb":        data["storage_gb"],
				"multi_az":          data["multi_az"],
			}),
		})
		return tasks

	case models.TransactionalEmail:
		if str(data, "verification_type", "domain") == "email" {
			return []Task{{
				Type:        TaskVerifyEmailIdentity,
				Description: "Verify sender email address in SES",
				Executor:    executors.SES,
				Operation:   executors.VerifyEmail,
				Params: compact(map[string]any{
					"email_address": data["email_address"],
					"from_email":    data["from_email"],
				}),
			}}
		}
		return []Task{{
			Type:        TaskVerifyDomainIdentity,
			Description: "Verify sending domain in SES and enable DKIM",
			Executor:    executors.SES,
			Operation:   executors.VerifyDomain,
			Params:      map[string]any{"domain": str(data, "domain", domain)},
		}}

	case models.Payments:
		if str(data, "api_key", "") == "" {
			return nil
		}
		tasks := []Task{{
			Type:        TaskCreateProducts,
			Description: "Create Stripe products and prices",
			Executor:    executors.STRIPE,
			Operation:   executors.CreateProducts,
			Params: compact(map[string]any{
				"product_names": data["product_names"],
				"price_type":    data["price_type"],
				"currency":      data["currency"],
			}),
		}}
		if automate, _ := data["enable_webhook_automation"].(bool); automate && str(data, "webhook_url", "") != "" {
			tasks = append(tasks, Task{
				Type:        TaskCreateWebhookEndpoint,
				Description: "Create Stripe webhook endpoint",
				Executor:    executors.STRIPE,
				Operation:   executors.CreateWebhookEndpoint,
				Params: compact(map[string]any{
					"webhook_url": data["webhook_url"],
					"events":      data["events"],
				}),
			})
		}
		return tasks
	}

	// oauth and browser_extension are instruction-only.
	return nil
}

// Credentials resolves the provider credentials for a task from the
// collected data. Region falls back to the setup's region and then to
// defaultRegion.
func Credentials(task Task, data map[string]any, setup *db.DeploymentSetup, defaultRegion string) models.ProviderCredentials {
	if task.Executor == executors.STRIPE {
		return models.ProviderCredentials{APIKey: str(data, "api_key", "")}
	}
	region := defaultRegion
	if setup != nil && setup.Region != "" {
		region = setup.Region
	}
	return models.ProviderCredentials{
		AccessKeyID:     str(data, "access_key_id", ""),
		SecretAccessKey: str(data, "secret_access_key", ""),
		Region:          str(data, "region", region),
	}
}

func setupFields(setup *db.DeploymentSetup) (app, env, domain string) {
	if setup == nil {
		return "app", "production", ""
	}
	return setup.AppName, setup.Environment, setup.Domain
}

func str(data map[string]any, key, fallback string) string {
	if v, ok := data[key].(string); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

// compact drops nil values so executors fall back to their defaults.
func compact(params map[string]any) map[string]any {
	for k, v := range params {
		if v == nil {
			delete(params, k)
		}
	}
	return params
}
