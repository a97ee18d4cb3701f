package executors

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/smithy-go"
	"github.com/surajsub/deployassist/models"
)

// LoadAWSConfig builds an SDK config from static per-request credentials.
func LoadAWSConfig(ctx context.Context, creds models.ProviderCredentials) (aws.Config, error) {
	if creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
		return aws.Config{}, errors.New("aws credentials are required")
	}
	region := creds.Region
	if region == "" {
		region = "us-east-1"
	}
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, "")),
	)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}

// awsFailure converts an SDK error into a failed ProviderResult, keeping the
// service's error code when there is one.
func awsFailure(action string, err error) models.ProviderResult {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.Failed(fmt.Sprintf("%s: timed out", action), "timeout")
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.ErrorMessage()
		if msg == "" {
			msg = apiErr.Error()
		}
		return models.Failed(fmt.Sprintf("%s: %s", action, msg), apiErr.ErrorCode())
	}
	return models.Failed(fmt.Sprintf("%s: %v", action, err), "")
}

func isAWSErrorCode(err error, codes ...string) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, c := range codes {
		if apiErr.ErrorCode() == c {
			return true
		}
	}
	return false
}

func stringParam(params map[string]any, key, fallback string) string {
	if v, ok := params[key].(string); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func boolParam(params map[string]any, key string, fallback bool) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return fallback
}

func intParam(params map[string]any, key string, fallback int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}

// stringSliceParam accepts a JSON array or a newline separated string.
func stringSliceParam(params map[string]any, key string) []string {
	var raw []string
	switch v := params[key].(type) {
	case []string:
		raw = v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	case string:
		raw = strings.Split(v, "\n")
	}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

const passwordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// generatePassword returns an alphanumeric password from crypto/rand.
func generatePassword(n int) (string, error) {
	var b strings.Builder
	max := big.NewInt(int64(len(passwordAlphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(passwordAlphabet[idx.Int64()])
	}
	return b.String(), nil
}

// resourceName joins parts into a lower-case, dash separated AWS name.
func resourceName(parts ...string) string {
	clean := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		p = strings.Map(func(r rune) rune {
			switch {
			case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
				return r
			case r == ' ' || r == '_' || r == '.':
				return '-'
			}
			return -1
		}, p)
		if p != "" {
			clean = append(clean, strings.Trim(p, "-"))
		}
	}
	return strings.Join(clean, "-")
}
