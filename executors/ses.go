package executors

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/sirupsen/logrus"
	"github.com/surajsub/deployassist/models"
)

type sesAPI interface {
	GetIdentityVerificationAttributes(ctx context.Context, in *ses.GetIdentityVerificationAttributesInput, optFns ...func(*ses.Options)) (*ses.GetIdentityVerificationAttributesOutput, error)
	VerifyDomainIdentity(ctx context.Context, in *ses.VerifyDomainIdentityInput, optFns ...func(*ses.Options)) (*ses.VerifyDomainIdentityOutput, error)
	VerifyDomainDkim(ctx context.Context, in *ses.VerifyDomainDkimInput, optFns ...func(*ses.Options)) (*ses.VerifyDomainDkimOutput, error)
	VerifyEmailIdentity(ctx context.Context, in *ses.VerifyEmailIdentityInput, optFns ...func(*ses.Options)) (*ses.VerifyEmailIdentityOutput, error)
}

// SESExecutor starts SES identity verification for a domain or a single address.
type SESExecutor struct {
	*ExecutorBase
	client sesAPI
}

func NewSESExecutor(creds models.ProviderCredentials, logger *logrus.Logger) (*SESExecutor, error) {
	cfg, err := LoadAWSConfig(context.Background(), creds)
	if err != nil {
		return nil, err
	}
	return newSESExecutor(ses.NewFromConfig(cfg), creds, logger), nil
}

func newSESExecutor(client sesAPI, creds models.ProviderCredentials, logger *logrus.Logger) *SESExecutor {
	return &SESExecutor{
		ExecutorBase: NewExecutorBase(SES, creds, []string{VerifyDomain, VerifyEmail}, logger),
		client:       client,
	}
}

func (e *SESExecutor) Execute(ctx context.Context, req models.ProviderRequest) models.ProviderResult {
	if err := e.ValidateOperation(req.Operation); err != nil {
		return models.Failed(err.Error(), "unsupported_operation")
	}
	if req.Operation == VerifyEmail {
		return e.verifyEmail(ctx, req)
	}
	return e.verifyDomain(ctx, req)
}

// DNSRecord is one record the user must publish for SES domain verification.
type DNSRecord struct {
	Type  string `json:"type"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

// DomainRecords lists the verification, DKIM, SPF and DMARC records for domain.
func DomainRecords(domain, verificationToken string, dkimTokens []string) []DNSRecord {
	records := []DNSRecord{
		{Type: "TXT", Name: "_amazonses." + domain, Value: verificationToken},
	}
	for _, token := range dkimTokens {
		records = append(records, DNSRecord{
			Type:  "CNAME",
			Name:  fmt.Sprintf("%s._domainkey.%s", token, domain),
			Value: fmt.Sprintf("%s.dkim.amazonses.com", token),
		})
	}
	records = append(records,
		DNSRecord{Type: "TXT", Name: domain, Value: "v=spf1 include:amazonses.com ~all"},
		DNSRecord{Type: "TXT", Name: "_dmarc." + domain, Value: fmt.Sprintf("v=DMARC1; p=none; rua=mailto:postmaster@%s", domain)},
	)
	return records
}

func recordsPayload(records []DNSRecord) []any {
	out := make([]any, 0, len(records))
	for _, r := range records {
		out = append(out, map[string]any{"type": r.Type, "name": r.Name, "value": r.Value})
	}
	return out
}

func (e *SESExecutor) verificationStatus(ctx context.Context, identity string) (string, error) {
	out, err := e.client.GetIdentityVerificationAttributes(ctx, &ses.GetIdentityVerificationAttributesInput{
		Identities: []string{identity},
	})
	if err != nil {
		return "", err
	}
	if attrs, ok := out.VerificationAttributes[identity]; ok {
		return string(attrs.VerificationStatus), nil
	}
	return "", nil
}

func (e *SESExecutor) verifyDomain(ctx context.Context, req models.ProviderRequest) models.ProviderResult {
	domain := stringParam(req.Params, "domain", "")
	if domain == "" {
		return models.Failed("a domain is required for domain verification", "missing_parameter")
	}
	logger := e.log(req).WithField("domain", domain)

	status, err := e.verificationStatus(ctx, domain)
	if err != nil {
		return awsFailure("check domain identity", err)
	}

	// VerifyDomainIdentity is idempotent and returns the existing token.
	identity, err := e.client.VerifyDomainIdentity(ctx, &ses.VerifyDomainIdentityInput{Domain: aws.String(domain)})
	if err != nil {
		return awsFailure("verify domain identity", err)
	}
	dkim, err := e.client.VerifyDomainDkim(ctx, &ses.VerifyDomainDkimInput{Domain: aws.String(domain)})
	if err != nil {
		return awsFailure("enable DKIM", err)
	}

	if status == "" {
		status = "Pending"
	}
	logger.WithField("status", status).Info("Domain verification initiated")
	return models.Succeeded(map[string]any{
		"verification_type":   "domain",
		"domain":              domain,
		"verification_token":  aws.ToString(identity.VerificationToken),
		"dkim_tokens":         dkim.DkimTokens,
		"dns_records":         recordsPayload(DomainRecords(domain, aws.ToString(identity.VerificationToken), dkim.DkimTokens)),
		"verification_status": status,
	})
}

func (e *SESExecutor) verifyEmail(ctx context.Context, req models.ProviderRequest) models.ProviderResult {
	email := stringParam(req.Params, "email_address", stringParam(req.Params, "from_email", ""))
	if email == "" {
		return models.Failed("an email address is required for email verification", "missing_parameter")
	}
	logger := e.log(req).WithField("email", email)

	status, err := e.verificationStatus(ctx, email)
	if err != nil {
		return awsFailure("check email identity", err)
	}
	if status == "Success" {
		logger.Info("Email identity already verified")
		return models.Succeeded(map[string]any{
			"verification_type":   "email",
			"email_address":       email,
			"verification_status": status,
		})
	}

	if _, err := e.client.VerifyEmailIdentity(ctx, &ses.VerifyEmailIdentityInput{EmailAddress: aws.String(email)}); err != nil {
		return awsFailure("verify email identity", err)
	}
	logger.Info("Verification email sent")
	return models.Succeeded(map[string]any{
		"verification_type":   "email",
		"email_address":       email,
		"verification_status": "Pending",
	})
}
