package wizard

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/surajsub/deployassist/models"
)

const totalSteps = 4

// field describes one property a wizard step accepts.
type field struct {
	Name     string
	Type     string
	Required bool
	Format   string
	Enum     []string
	Items    string
	Minimum  *int
	Maximum  *int
	// Secret fields are never copied into configuration templates.
	Secret bool
}

type stepDefinition struct {
	Key    string
	Fields []field
}

func intPtr(v int) *int { return &v }

var (
	awsCredentialFields = []field{
		{Name: "access_key_id", Type: "string", Required: true, Secret: true},
		{Name: "secret_access_key", Type: "string", Required: true, Secret: true},
		{Name: "region", Type: "string"},
	}
	reviewFields = []field{
		{Name: "confirm", Type: "boolean", Required: true},
		{Name: "notes", Type: "string"},
	}
)

var stepDefinitions = map[models.IntegrationType][totalSteps]stepDefinition{
	models.CloudDeployment: {
		{Key: "business_info", Fields: []field{
			{Name: "company_name", Type: "string", Required: true},
			{Name: "contact_email", Type: "string", Format: "email"},
			{Name: "docker_username", Type: "string"},
			{Name: "project_description", Type: "string"},
		}},
		{Key: "aws_credentials", Fields: awsCredentialFields},
		{Key: "infrastructure", Fields: []field{
			{Name: "db_instance_class", Type: "string"},
			{Name: "storage_gb", Type: "integer", Minimum: intPtr(20), Maximum: intPtr(65536)},
			{Name: "multi_az", Type: "boolean"},
			{Name: "create_s3_bucket", Type: "boolean"},
			{Name: "s3_bucket_name", Type: "string"},
		}},
		{Key: "review", Fields: reviewFields},
	},
	models.OAuth: {
		{Key: "project_info", Fields: []field{
			{Name: "app_name", Type: "string", Required: true},
			{Name: "support_email", Type: "string", Required: true, Format: "email"},
			{Name: "developer_contact", Type: "string", Format: "email"},
		}},
		{Key: "consent_screen", Fields: []field{
			{Name: "privacy_policy_url", Type: "string", Format: "uri"},
			{Name: "terms_of_service_url", Type: "string", Format: "uri"},
			{Name: "logo_url", Type: "string", Format: "uri"},
			{Name: "scopes", Type: "array", Items: "string"},
		}},
		{Key: "credentials", Fields: []field{
			{Name: "redirect_uris", Type: "array", Items: "string", Required: true},
			{Name: "authorized_domains", Type: "array", Items: "string"},
		}},
		{Key: "verification", Fields: reviewFields},
	},
	models.TransactionalEmail: {
		{Key: "email_config", Fields: []field{
			{Name: "verification_type", Type: "string", Required: true, Enum: []string{"domain", "email"}},
			{Name: "domain", Type: "string"},
			{Name: "email_address", Type: "string", Format: "email"},
			{Name: "from_name", Type: "string"},
			{Name: "from_email", Type: "string", Format: "email"},
		}},
		{Key: "aws_credentials", Fields: awsCredentialFields},
		{Key: "configuration", Fields: []field{
			{Name: "enable_configuration_set", Type: "boolean"},
			{Name: "enable_bounce_handling", Type: "boolean"},
		}},
		{Key: "review", Fields: reviewFields},
	},
	models.Payments: {
		{Key: "business_details", Fields: []field{
			{Name: "legal_business_name", Type: "string", Required: true},
			{Name: "country", Type: "string"},
			{Name: "business_type", Type: "string", Enum: []string{"individual", "company", "non_profit"}},
			{Name: "business_url", Type: "string", Format: "uri"},
			{Name: "support_email", Type: "string", Format: "email"},
			{Name: "support_phone", Type: "string"},
		}},
		{Key: "products", Fields: []field{
			{Name: "product_names", Type: "array", Items: "string", Required: true},
			{Name: "price_type", Type: "string", Enum: []string{"recurring", "one_time"}},
			{Name: "currency", Type: "string"},
			{Name: "enable_subscriptions", Type: "boolean"},
			{Name: "api_key", Type: "string", Secret: true},
		}},
		{Key: "webhook_config", Fields: []field{
			{Name: "webhook_url", Type: "string", Format: "uri"},
			{Name: "enable_webhook_automation", Type: "boolean"},
			{Name: "events", Type: "array", Items: "string"},
		}},
		{Key: "review", Fields: reviewFields},
	},
	models.BrowserExtension: {
		{Key: "extension_details", Fields: []field{
			{Name: "extension_name", Type: "string", Required: true},
			{Name: "short_description", Type: "string"},
			{Name: "detailed_description", Type: "string"},
			{Name: "category", Type: "string"},
			{Name: "primary_language", Type: "string"},
			{Name: "permissions", Type: "array", Items: "string"},
		}},
		{Key: "store_assets", Fields: []field{
			{Name: "small_icon_url", Type: "string", Format: "uri"},
			{Name: "large_icon_url", Type: "string", Format: "uri"},
			{Name: "promotional_tile_url", Type: "string", Format: "uri"},
			{Name: "screenshot_urls", Type: "array", Items: "string"},
			{Name: "demo_video_url", Type: "string", Format: "uri"},
		}},
		{Key: "privacy_compliance", Fields: []field{
			{Name: "privacy_policy_url", Type: "string", Required: true, Format: "uri"},
			{Name: "homepage_url", Type: "string", Format: "uri"},
			{Name: "support_email", Type: "string", Format: "email"},
			{Name: "permissions_justification", Type: "string"},
			{Name: "single_purpose_description", Type: "string"},
		}},
		{Key: "review", Fields: reviewFields},
	},
}

// TotalSteps is the number of wizard steps for an integration type.
func TotalSteps(models.IntegrationType) int {
	return totalSteps
}

// StepKey is the semantic name of step n, falling back to "step_n".
func StepKey(t models.IntegrationType, n int) string {
	defs, ok := stepDefinitions[t]
	if !ok || n < 1 || n > totalSteps {
		return fmt.Sprintf("step_%d", n)
	}
	return defs[n-1].Key
}

func (d stepDefinition) schemaDocument() map[string]any {
	props := map[string]any{}
	required := []string{}
	for _, f := range d.Fields {
		p := map[string]any{"type": f.Type}
		if f.Format != "" {
			p["format"] = f.Format
		}
		if len(f.Enum) > 0 {
			p["enum"] = f.Enum
		}
		if f.Items != "" {
			p["items"] = map[string]any{"type": f.Items}
			if f.Required {
				p["minItems"] = 1
			}
		}
		if f.Type == "string" && f.Required {
			p["minLength"] = 1
		}
		if f.Minimum != nil {
			p["minimum"] = *f.Minimum
		}
		if f.Maximum != nil {
			p["maximum"] = *f.Maximum
		}
		if f.Name == "confirm" {
			p["const"] = true
		}
		props[f.Name] = p
		if f.Required {
			required = append(required, f.Name)
		}
	}
	return map[string]any{
		"$schema":              "https://json-schema.org/draft/2020-12/schema",
		"type":                 "object",
		"additionalProperties": false,
		"required":             required,
		"properties":           props,
	}
}

type schemaKey struct {
	integration models.IntegrationType
	step        int
}

// Validator checks step payloads against the compiled step schemas.
type Validator struct {
	definitions map[schemaKey]stepDefinition
	schemas     map[schemaKey]*jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	v := &Validator{
		definitions: map[schemaKey]stepDefinition{},
		schemas:     map[schemaKey]*jsonschema.Schema{},
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	compiler.AssertFormat = true

	for it, defs := range stepDefinitions {
		for i, def := range defs {
			key := schemaKey{integration: it, step: i + 1}
			url := fmt.Sprintf("https://deployassist.local/schemas/%s/%d-%s.json", it, i+1, def.Key)

			doc, err := json.Marshal(def.schemaDocument())
			if err != nil {
				return nil, fmt.Errorf("marshal schema %s: %w", url, err)
			}
			if err := compiler.AddResource(url, strings.NewReader(string(doc))); err != nil {
				return nil, fmt.Errorf("add schema %s: %w", url, err)
			}
			compiled, err := compiler.Compile(url)
			if err != nil {
				return nil, fmt.Errorf("compile schema %s: %w", url, err)
			}
			v.definitions[key] = def
			v.schemas[key] = compiled
		}
	}
	return v, nil
}

// Validate returns a *ValidationError listing every offending field, or nil.
func (v *Validator) Validate(t models.IntegrationType, step int, data map[string]any) error {
	key := schemaKey{integration: t, step: step}
	def, ok := v.definitions[key]
	if !ok {
		return newValidationError(step, "step_number", fmt.Sprintf("no step %d for %s", step, t))
	}

	verr := &ValidationError{Step: step, Fields: map[string]string{}}

	known := map[string]bool{}
	for _, f := range def.Fields {
		known[f.Name] = true
		if _, present := data[f.Name]; f.Required && !present {
			verr.Fields[f.Name] = "is required"
		}
	}
	for name := range data {
		if !known[name] {
			verr.Fields[name] = "is not a recognized field"
		}
	}

	// Round-trip through JSON so the validator sees plain decoded values.
	raw, err := json.Marshal(data)
	if err != nil {
		verr.Fields["step_data"] = "must be a JSON object"
		return verr
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		verr.Fields["step_data"] = "must be a JSON object"
		return verr
	}

	if err := v.schemas[key].Validate(doc); err != nil {
		var schemaErr *jsonschema.ValidationError
		if errors.As(err, &schemaErr) {
			collectLeafErrors(schemaErr, verr.Fields)
		} else {
			verr.Fields["step_data"] = err.Error()
		}
	}

	if len(verr.Fields) == 0 {
		return nil
	}
	return verr
}

// collectLeafErrors records the first message reported for each instance
// location. Required and unknown-field errors are already recorded by name.
func collectLeafErrors(e *jsonschema.ValidationError, out map[string]string) {
	if len(e.Causes) == 0 {
		name := strings.TrimPrefix(e.InstanceLocation, "/")
		if name == "" {
			return
		}
		if i := strings.Index(name, "/"); i >= 0 {
			name = name[:i]
		}
		if _, exists := out[name]; !exists {
			out[name] = e.Message
		}
		return
	}
	for _, c := range e.Causes {
		collectLeafErrors(c, out)
	}
}

// FieldNames lists the accepted field names for a step in sorted order.
func FieldNames(t models.IntegrationType, step int) []string {
	defs, ok := stepDefinitions[t]
	if !ok || step < 1 || step > totalSteps {
		return nil
	}
	names := make([]string, 0, len(defs[step-1].Fields))
	for _, f := range defs[step-1].Fields {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}
