package models

// ProviderCredentials are the per-request credentials handed to a capability provider.
type ProviderCredentials struct {
	AccessKeyID     string `json:"-"`
	SecretAccessKey string `json:"-"`
	APIKey          string `json:"-"`
	Region          string `json:"region,omitempty"`
}

type ProviderRequest struct {
	Operation      string              `json:"operation"`
	Credentials    ProviderCredentials `json:"-"`
	Params         map[string]any      `json:"params"`
	IdempotencyKey string              `json:"idempotency_key,omitempty"`
}

// SecretOutput is a secret produced by a provider. It is written to the
// credential vault and never stored in task results.
type SecretOutput struct {
	Service        string
	CredentialType string
	Value          string
	Identifier     string
}

// ProviderResult is the normalized outcome of a provider call.
type ProviderResult struct {
	Success   bool           `json:"success"`
	Fields    map[string]any `json:"fields,omitempty"`
	Secrets   []SecretOutput `json:"-"`
	Error     string         `json:"error,omitempty"`
	ErrorCode string         `json:"error_code,omitempty"`
}

func Succeeded(fields map[string]any, secrets ...SecretOutput) ProviderResult {
	if fields == nil {
		fields = map[string]any{}
	}
	return ProviderResult{Success: true, Fields: fields, Secrets: secrets}
}

func Failed(message, code string) ProviderResult {
	return ProviderResult{Success: false, Error: message, ErrorCode: code}
}

// Payload flattens the result into the shape stored in automation_results.
func (r ProviderResult) Payload() map[string]any {
	if !r.Success {
		return map[string]any{
			"success":    false,
			"error":      r.Error,
			"error_code": r.ErrorCode,
		}
	}
	out := make(map[string]any, len(r.Fields)+1)
	for k, v := range r.Fields {
		out[k] = v
	}
	out["success"] = true
	return out
}
