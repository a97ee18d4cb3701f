package wizard

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surajsub/deployassist/db"
	"github.com/surajsub/deployassist/models"
)

func TestValidateTemplate(t *testing.T) {
	require.NoError(t, ValidateTemplate(models.CloudDeployment, map[string]any{
		"company_name": "Acme", "region": "eu-west-1", "storage_gb": 50,
	}))

	err := ValidateTemplate(models.CloudDeployment, map[string]any{
		"secret_access_key": "x",
		"favourite_color":   "blue",
	})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields["secret_access_key"], "secret")
	assert.Equal(t, "is not a wizard field", verr.Fields["favourite_color"])

	err = ValidateTemplate(models.Payments, map[string]any{"api_key": "sk_live"})
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "api_key")

	assert.Error(t, ValidateTemplate("fax", nil))
}

func TestTemplateStepData(t *testing.T) {
	data := map[string]any{"company_name": "Acme", "storage_gb": 50, "multi_az": true}
	assert.Equal(t, map[string]any{"company_name": "Acme"}, TemplateStepData(models.CloudDeployment, 1, data))
	assert.Equal(t, map[string]any{"storage_gb": 50, "multi_az": true}, TemplateStepData(models.CloudDeployment, 3, data))
	assert.Empty(t, TemplateStepData(models.CloudDeployment, 2, data))
}

func newTemplate(t *testing.T, store *db.Store, it models.IntegrationType, data map[string]any) *db.ConfigurationTemplate {
	t.Helper()
	encoded, err := db.EncodeObject(data)
	require.NoError(t, err)
	tpl := &db.ConfigurationTemplate{Name: "standard", IntegrationType: it, TemplateData: encoded}
	require.NoError(t, store.CreateTemplate(context.Background(), tpl))
	return tpl
}

func TestApplyTemplatePrefillsSteps(t *testing.T) {
	o, store, cfg, _ := newTestOrchestrator(t, models.CloudDeployment)
	ctx := context.Background()
	tpl := newTemplate(t, store, models.CloudDeployment, map[string]any{
		"company_name": "Acme", "storage_gb": 100.0, "create_s3_bucket": false,
	})

	applied, err := o.ApplyTemplate(ctx, cfg.ID, tpl.ID)
	require.NoError(t, err)
	require.NotNil(t, applied.TemplateID)
	assert.Equal(t, tpl.ID, *applied.TemplateID)

	data, err := o.CurrentStepData(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"company_name": "Acme"}, data)

	_, err = o.CompleteStep(ctx, cfg.ID, 1, map[string]any{"company_name": "Acme Ltd"})
	require.NoError(t, err)

	data, err = o.StepData(ctx, cfg.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "Acme Ltd", data["company_name"], "submitted data wins over the template")

	data, err = o.StepData(ctx, cfg.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"storage_gb": 100.0, "create_s3_bucket": false}, data)

	loaded, err := store.GetTemplate(ctx, tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.UsageCount)
}

func TestApplyTemplateRejections(t *testing.T) {
	o, store, cfg, _ := newTestOrchestrator(t, models.CloudDeployment)
	ctx := context.Background()

	other := newTemplate(t, store, models.Payments, map[string]any{"currency": "eur"})
	_, err := o.ApplyTemplate(ctx, cfg.ID, other.ID)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "template_id")

	tpl := newTemplate(t, store, models.CloudDeployment, map[string]any{"company_name": "Acme"})
	require.NoError(t, store.UpdateConfiguration(ctx, cfg.ID, map[string]any{"status": models.StatusInProgress}))
	_, err = o.ApplyTemplate(ctx, cfg.ID, tpl.ID)
	assert.ErrorIs(t, err, ErrFinalized)

	loaded, err := store.GetTemplate(ctx, tpl.ID)
	require.NoError(t, err)
	assert.Zero(t, loaded.UsageCount)
}
