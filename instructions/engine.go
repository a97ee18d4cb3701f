// Package instructions renders the ordered, human-readable setup steps for a
// configuration once provisioning has finished.
package instructions

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/surajsub/deployassist/credentials"
	"github.com/surajsub/deployassist/db"
	"github.com/surajsub/deployassist/metrics"
	"github.com/surajsub/deployassist/models"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// ErrNotProvisioned is returned by GenerateAndSave while the configuration's
// pipeline run has not finished.
var ErrNotProvisioned = errors.New("configuration has not finished provisioning")

// Setup is the immutable deployment descriptor instructions are rendered for.
type Setup struct {
	ID          uuid.UUID
	AppName     string
	Environment string
	Domain      string
	Region      string
}

// CredentialRef points at a stored credential without carrying its value.
type CredentialRef struct {
	ID     uuid.UUID
	Masked string
}

// Input is everything a producer may read. Generate reads nothing else, so
// the same Input always renders the same instructions.
type Input struct {
	IntegrationType models.IntegrationType
	Setup           Setup
	Data            map[string]any
	Results         map[string]any
	// Credentials is keyed by "service/credential_type".
	Credentials map[string]CredentialRef
}

// CredentialLister lists a setup's stored credentials. *credentials.Vault
// implements it.
type CredentialLister interface {
	List(ctx context.Context, setupID uuid.UUID) ([]db.Credential, error)
}

type Engine struct {
	store         *db.Store
	credentials   CredentialLister
	templates     *template.Template
	logger        *logrus.Logger
	defaultRegion string
}

type Option func(*Engine)

func WithDefaultRegion(region string) Option {
	return func(e *Engine) { e.defaultRegion = region }
}

func NewEngine(store *db.Store, creds CredentialLister, logger *logrus.Logger, opts ...Option) (*Engine, error) {
	tmpl, err := template.New("instructions").Funcs(funcMap).ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse instruction templates: %w", err)
	}
	e := &Engine{
		store:         store,
		credentials:   creds,
		templates:     tmpl,
		logger:        logger,
		defaultRegion: "us-east-1",
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Generate renders the instruction list for in. Step numbers are dense and
// start at 1. Rows are returned unsaved.
func (e *Engine) Generate(in Input) ([]db.Instruction, error) {
	produce, ok := producers[in.IntegrationType]
	if !ok {
		return nil, fmt.Errorf("no instruction producer for %q", in.IntegrationType)
	}
	b := &builder{tmpl: e.templates, in: in, region: e.region(in)}
	if b.in.Data == nil {
		b.in.Data = map[string]any{}
	}
	if b.in.Results == nil {
		b.in.Results = map[string]any{}
	}
	produce(b)
	if b.err != nil {
		return nil, fmt.Errorf("render %s instructions: %w", in.IntegrationType, b.err)
	}
	return b.out, nil
}

func (e *Engine) region(in Input) string {
	if r := text(in.Data["region"]); r != "" {
		return r
	}
	if in.Setup.Region != "" {
		return in.Setup.Region
	}
	return e.defaultRegion
}

// Load assembles the Input for a stored configuration.
func (e *Engine) Load(ctx context.Context, configID uuid.UUID) (Input, error) {
	cfg, err := e.store.GetConfiguration(ctx, configID)
	if err != nil {
		return Input{}, err
	}
	return e.input(ctx, cfg)
}

func (e *Engine) input(ctx context.Context, cfg *db.Configuration) (Input, error) {
	data, err := cfg.Data()
	if err != nil {
		return Input{}, err
	}
	results, err := cfg.Results()
	if err != nil {
		return Input{}, err
	}
	in := Input{
		IntegrationType: cfg.IntegrationType,
		Data:            data,
		Results:         results,
		Credentials:     map[string]CredentialRef{},
	}
	if s := cfg.DeploymentSetup; s != nil {
		in.Setup = Setup{ID: s.ID, AppName: s.AppName, Environment: s.Environment, Domain: s.Domain, Region: s.Region}
	}
	if e.credentials != nil {
		creds, err := e.credentials.List(ctx, cfg.DeploymentSetupID)
		if err != nil {
			return Input{}, err
		}
		for i := range creds {
			c := &creds[i]
			if !c.Active {
				continue
			}
			in.Credentials[c.Service+"/"+c.CredentialType] = CredentialRef{ID: c.ID, Masked: credentials.Masked(c)}
		}
	}
	return in, nil
}

// GenerateAndSave renders the configuration's instructions and replaces any
// previously generated set in one transaction.
func (e *Engine) GenerateAndSave(ctx context.Context, configID uuid.UUID) ([]db.Instruction, error) {
	cfg, err := e.store.GetConfiguration(ctx, configID)
	if err != nil {
		return nil, err
	}
	if !cfg.Status.Terminal() {
		return nil, fmt.Errorf("configuration %s is %s: %w", configID, cfg.Status, ErrNotProvisioned)
	}
	in, err := e.input(ctx, cfg)
	if err != nil {
		return nil, err
	}
	out, err := e.Generate(in)
	if err != nil {
		return nil, err
	}
	if err := e.store.ReplaceInstructions(ctx, configID, out); err != nil {
		return nil, err
	}

	metrics.InstructionsGenerated.WithLabelValues(string(cfg.IntegrationType)).Inc()
	e.logger.WithFields(logrus.Fields{
		"configuration_id": configID,
		"integration_type": cfg.IntegrationType,
		"instructions":     len(out),
	}).Info("Generated setup instructions")
	return out, nil
}

// view is the template context of a single instruction.
type view struct {
	Setup   Setup
	Data    map[string]any
	Results map[string]any
	Region  string
	V       map[string]any
}

type builder struct {
	tmpl   *template.Template
	in     Input
	region string
	out    []db.Instruction
	err    error
}

func (b *builder) render(name string, extra map[string]any) string {
	if b.err != nil {
		return ""
	}
	var buf bytes.Buffer
	err := b.tmpl.ExecuteTemplate(&buf, name, view{
		Setup:   b.in.Setup,
		Data:    b.in.Data,
		Results: b.in.Results,
		Region:  b.region,
		V:       extra,
	})
	if err != nil {
		b.err = err
		return ""
	}
	return strings.TrimSpace(buf.String()) + "\n"
}

func (b *builder) add(title string, kind models.InstructionType, name string, extra, data map[string]any) {
	body := b.render(name, extra)
	if b.err != nil {
		return
	}
	encoded, err := db.EncodeObject(data)
	if err != nil {
		b.err = err
		return
	}
	b.out = append(b.out, db.Instruction{
		StepNumber:      len(b.out) + 1,
		Title:           title,
		InstructionType: kind,
		InstructionText: body,
		Data:            encoded,
	})
}

// snippet builds a file snippet and records the first error.
func (b *builder) snippet(s string, err error) string {
	if err != nil && b.err == nil {
		b.err = err
	}
	return s
}

// result is the stored outcome of a successful task, or nil.
func (b *builder) result(taskType string) map[string]any {
	r, ok := b.in.Results[taskType].(map[string]any)
	if !ok {
		return nil
	}
	if success, _ := r["success"].(bool); !success {
		return nil
	}
	return r
}

// secretRef renders a pointer to a stored credential, or a placeholder when
// none was stored. Secret values are never rendered.
func (b *builder) secretRef(service, credentialType, what string) string {
	ref, ok := b.in.Credentials[service+"/"+credentialType]
	if !ok {
		return need(nil, what)
	}
	label := ref.Masked
	if label == "" {
		label = service + "/" + credentialType
	}
	return fmt.Sprintf("<reveal %s (%s): POST /v1/setups/%s/credentials/%s/reveal>", what, label, b.in.Setup.ID, ref.ID)
}

func (b *builder) app() string {
	if b.in.Setup.AppName != "" {
		return b.in.Setup.AppName
	}
	return need(b.in.Data["app_name"], "app name")
}

func (b *builder) domain() string {
	if b.in.Setup.Domain != "" {
		return b.in.Setup.Domain
	}
	return need(b.in.Data["domain"], "domain")
}
