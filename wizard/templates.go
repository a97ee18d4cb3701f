package wizard

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/surajsub/deployassist/db"
	"github.com/surajsub/deployassist/models"
)

// ValidateTemplate checks that every key of data is a field one of the
// wizard steps of t accepts, and that none of them is a secret.
func ValidateTemplate(t models.IntegrationType, data map[string]any) error {
	defs, ok := stepDefinitions[t]
	if !ok {
		return newValidationError(0, "integration_type", fmt.Sprintf("unknown integration type %q", t))
	}
	known := map[string]field{}
	for _, d := range defs {
		for _, f := range d.Fields {
			known[f.Name] = f
		}
	}

	verr := &ValidationError{Fields: map[string]string{}}
	for name := range data {
		f, ok := known[name]
		switch {
		case !ok:
			verr.Fields[name] = "is not a wizard field"
		case f.Secret:
			verr.Fields[name] = "is a secret and cannot be stored in a template"
		}
	}
	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

// TemplateStepData picks the template values that belong to step n.
func TemplateStepData(t models.IntegrationType, n int, data map[string]any) map[string]any {
	out := map[string]any{}
	for _, name := range FieldNames(t, n) {
		if v, ok := data[name]; ok {
			out[name] = v
		}
	}
	return out
}

// ApplyTemplate links a template to a configuration that is still collecting
// data. Steps without submitted data are then prefilled from the template.
func (o *Orchestrator) ApplyTemplate(ctx context.Context, configID, templateID uuid.UUID) (*db.Configuration, error) {
	unlock, err := o.locker.Lock(ctx, configID.String())
	if err != nil {
		return nil, fmt.Errorf("lock configuration %s: %w", configID, err)
	}
	defer unlock()

	var cfg *db.Configuration
	err = o.store.Transaction(ctx, func(tx *db.Store) error {
		cfg, err = tx.GetConfiguration(ctx, configID)
		if err != nil {
			return err
		}
		if cfg.Status.Finalized() {
			verr := newValidationError(0, "status", fmt.Sprintf("configuration is %s", cfg.Status))
			verr.Err = ErrFinalized
			return verr
		}
		tpl, err := tx.GetTemplate(ctx, templateID)
		if err != nil {
			return err
		}
		if tpl.IntegrationType != cfg.IntegrationType {
			return newValidationError(0, "template_id", fmt.Sprintf("template is for %s", tpl.IntegrationType))
		}
		if err := tx.UpdateConfiguration(ctx, configID, map[string]any{"template_id": templateID}); err != nil {
			return err
		}
		cfg.TemplateID = &templateID
		return tx.IncrementTemplateUsage(ctx, templateID)
	})
	if err != nil {
		return nil, err
	}

	o.logger.WithFields(logrus.Fields{
		"configuration_id": configID,
		"template_id":      templateID,
	}).Info("Configuration template applied")
	return cfg, nil
}

// templateStepData returns the prefill for step n, or an empty map when the
// configuration has no usable template.
func (o *Orchestrator) templateStepData(ctx context.Context, cfg *db.Configuration, n int) (map[string]any, error) {
	if cfg.TemplateID == nil {
		return map[string]any{}, nil
	}
	tpl, err := o.store.GetTemplate(ctx, *cfg.TemplateID)
	if errors.Is(err, db.ErrNotFound) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, err
	}
	data, err := tpl.Data()
	if err != nil {
		return nil, err
	}
	return TemplateStepData(cfg.IntegrationType, n, data), nil
}
