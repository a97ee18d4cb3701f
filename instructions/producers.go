package instructions

import (
	"fmt"
	"strings"

	"github.com/surajsub/deployassist/executors"
	"github.com/surajsub/deployassist/models"
	"github.com/surajsub/deployassist/provisioning"
	"golang.org/x/oauth2/google"
)

var producers = map[models.IntegrationType]func(*builder){
	models.CloudDeployment:    cloudDeployment,
	models.OAuth:              oauth,
	models.TransactionalEmail: transactionalEmail,
	models.Payments:           payments,
	models.BrowserExtension:   browserExtension,
}

const (
	stripeRegisterURL   = "https://dashboard.stripe.com/register"
	chromeDevConsoleURL = "https://chrome.google.com/webstore/devconsole"
)

func cloudDeployment(b *builder) {
	data := b.in.Data
	app := b.app()
	domain := b.domain()

	database := b.result(provisioning.TaskCreateDatabase)
	dbHost := need(nil, "database endpoint")
	dbUser := "dbadmin"
	if database != nil {
		if present(database["endpoint"]) {
			dbHost = text(database["endpoint"])
		}
		if present(database["master_username"]) {
			dbUser = text(database["master_username"])
		}
	}
	bucket := need(data["s3_bucket_name"], "S3 bucket name")
	if storage := b.result(provisioning.TaskCreateStorage); storage != nil {
		bucket = text(storage["bucket_name"])
	}

	deploy := b.snippet(kamalDeployYAML(app, need(data["docker_username"], "Docker Hub username"), domain, dbHost))
	b.add("Create Kamal Configuration", models.CopySnippet, "cloud/kamal",
		map[string]any{"snippet": deploy},
		map[string]any{"snippet": deploy, "filename": "config/deploy.yml"})

	databaseYML := b.snippet(databaseYAML(app, dbHost, dbUser))
	b.add("Update Database Configuration", models.CopySnippet, "cloud/database",
		map[string]any{"snippet": databaseYML, "database": database},
		map[string]any{"snippet": databaseYML, "filename": "config/database.yml"})

	creds := b.snippet(productionCredentialsYAML(
		b.secretRef(models.ServiceIAM, models.CredentialAccessKeyID, "deploy user access key id"),
		b.secretRef(models.ServiceIAM, models.CredentialSecretAccessKey, "deploy user secret access key"),
		b.region,
		bucket,
	))
	b.add("Add Production Credentials", models.CopySnippet, "cloud/credentials",
		map[string]any{"snippet": creds, "identity": b.result(provisioning.TaskCreateIdentity)},
		map[string]any{"snippet": creds, "filename": "config/credentials/production.yml.enc"})

	secrets := fmt.Sprintf("KAMAL_REGISTRY_PASSWORD=%s\nRAILS_MASTER_KEY=$(cat config/credentials/production.key)\n%s_DATABASE_PASSWORD=%s\n",
		need(nil, "Docker Hub access token"),
		envName(app),
		b.secretRef(models.ServiceRDS, models.CredentialMasterPassword, "database master password"),
	)
	b.add("Create Kamal Secrets File", models.CopySnippet, "cloud/secrets",
		map[string]any{"snippet": secrets},
		map[string]any{"snippet": secrets, "filename": ".kamal/secrets"})

	launchURL := awsConsoleURL("ec2/v2", b.region, "LaunchInstances:")
	b.add("Launch EC2 Instance", models.ManualAction, "cloud/ec2",
		map[string]any{"url": launchURL, "key": slug(app) + "-key"},
		map[string]any{"url": launchURL})

	b.add("Deploy with Kamal", models.ManualAction, "cloud/deploy",
		map[string]any{"domain": domain},
		nil)
}

func oauthScopes(data map[string]any) []string {
	if scopes := items(data["scopes"]); len(scopes) > 0 {
		return scopes
	}
	return []string{"email", "profile"}
}

func oauth(b *builder) {
	data := b.in.Data
	console := googleConsole{projectID: text(data["project_id"])}
	scopes := oauthScopes(data)
	redirects := items(data["redirect_uris"])
	domain := b.in.Setup.Domain
	if domain == "" {
		domain = "yourapp.com"
	}

	b.add("Create Google Cloud Project", models.ExternalLink, "oauth/project",
		nil,
		map[string]any{"url": console.newProjectURL()})

	b.add("Configure OAuth Consent Screen", models.ManualAction, "oauth/consent",
		map[string]any{"scopes": strings.Join(scopes, ", "), "domain": domain},
		map[string]any{"url": console.consentScreenURL(text(data["app_name"]), text(data["support_email"]))})

	creds := b.snippet(googleCredentialsYAML())
	extra := map[string]any{
		"snippet":   creds,
		"domain":    domain,
		"redirects": redirects,
		"auth_url":  google.Endpoint.AuthURL,
		"token_url": google.Endpoint.TokenURL,
	}
	if len(redirects) > 0 {
		extra["test_url"] = testAuthURL(redirects[0], scopes)
	}
	b.add("Create OAuth Credentials", models.CopySnippet, "oauth/credentials",
		extra,
		map[string]any{"snippet": creds, "filename": "config/credentials.yml.enc", "url": console.credentialsURL()})

	devise := b.render("oauth/devise.rb", map[string]any{"scopes": strings.Join(scopes, ",")})
	b.add("Configure Devise for Google OAuth", models.CopySnippet, "oauth/devise",
		map[string]any{"snippet": devise},
		map[string]any{"snippet": devise, "filename": "config/initializers/devise.rb"})

	b.add("Domain Verification (Optional)", models.ManualAction, "oauth/verification",
		map[string]any{"domain": domain, "url": searchConsoleURL},
		map[string]any{"url": searchConsoleURL})
}

// dnsRecords prefers the records returned by SES and falls back to the
// expected layout with a placeholder token.
func dnsRecords(b *builder, domain string) []any {
	if r := b.result(provisioning.TaskVerifyDomainIdentity); r != nil {
		if records, ok := r["dns_records"].([]any); ok && len(records) > 0 {
			out := make([]any, 0, len(records))
			for _, rec := range records {
				m, _ := rec.(map[string]any)
				out = append(out, dnsRecord(text(m["type"]), text(m["name"]), text(m["value"])))
			}
			return out
		}
	}
	records := executors.DomainRecords(domain, need(nil, "SES verification token"), nil)
	out := make([]any, 0, len(records))
	for _, r := range records {
		out = append(out, dnsRecord(r.Type, r.Name, r.Value))
	}
	return out
}

func dnsRecord(kind, name, value string) map[string]any {
	purpose := "DNS record"
	switch {
	case strings.HasPrefix(name, "_amazonses."):
		purpose = "SES domain verification"
	case strings.Contains(name, "._domainkey."):
		purpose = "DKIM signature"
	case strings.HasPrefix(value, "v=spf1"):
		purpose = "SPF"
	case strings.HasPrefix(name, "_dmarc."):
		purpose = "DMARC policy"
	}
	return map[string]any{"type": kind, "name": name, "value": value, "purpose": purpose}
}

func transactionalEmail(b *builder) {
	data := b.in.Data
	domain := text(data["domain"])
	if domain == "" {
		domain = b.domain()
	}

	if text(data["verification_type"]) == "email" {
		identity := b.result(provisioning.TaskVerifyEmailIdentity)
		b.add("Verify Email Address", models.ManualAction, "email/verify_email",
			map[string]any{
				"email":    need(data["email_address"], "sender email address"),
				"verified": identity != nil && text(identity["verification_status"]) == "Success",
				"url":      awsConsoleURL("ses", b.region, "verified-senders-email:"),
			},
			nil)
	} else {
		b.add("Verify Domain Identity", models.ManualAction, "email/verify_domain",
			map[string]any{"domain": domain, "started": b.result(provisioning.TaskVerifyDomainIdentity) != nil},
			nil)
		records := dnsRecords(b, domain)
		b.add("Add DNS Records", models.CopySnippet, "email/dns",
			map[string]any{
				"domain":  domain,
				"records": records,
				"url":     awsConsoleURL("ses", b.region, "verified-senders-domain:"),
			},
			map[string]any{"dns_records": records})
	}

	mailer := b.render("email/mailer.rb", nil)
	b.add("Configure ActionMailer", models.CopySnippet, "email/mailer",
		map[string]any{
			"snippet":     mailer,
			"credentials": b.snippet(sesCredentialsYAML()),
			"url":         awsConsoleURL("ses", b.region, "smtp-settings:"),
		},
		map[string]any{"snippet": mailer, "filename": "config/environments/production.rb"})

	b.add("Request Production Access", models.ManualAction, "email/production_access",
		map[string]any{"url": awsConsoleURL("ses", b.region, "account-details:"), "domain": domain},
		nil)
}

func payments(b *builder) {
	data := b.in.Data

	b.add("Create Stripe Account", models.ExternalLink, "payments/account",
		nil,
		map[string]any{"url": stripeRegisterURL})

	webhookSecret := "whsec_YOUR_WEBHOOK_SECRET"
	if _, ok := b.in.Credentials[models.ServiceStripe+"/"+models.CredentialWebhookSecret]; ok {
		webhookSecret = b.secretRef(models.ServiceStripe, models.CredentialWebhookSecret, "webhook signing secret")
	}
	creds := b.snippet(stripeCredentialsYAML(webhookSecret))
	b.add("Get API Keys", models.CopySnippet, "payments/api_keys",
		map[string]any{"snippet": creds},
		map[string]any{"snippet": creds, "filename": "config/credentials.yml.enc"})

	var created []any
	if r := b.result(provisioning.TaskCreateProducts); r != nil {
		created, _ = r["products"].([]any)
	}
	b.add("Create Products & Prices", models.ManualAction, "payments/products",
		map[string]any{"names": items(data["product_names"]), "created": created},
		nil)

	endpoint := b.result(provisioning.TaskCreateWebhookEndpoint)
	events := items(data["events"])
	if len(events) == 0 && endpoint != nil {
		events = items(endpoint["events"])
	}
	if len(events) == 0 {
		events = executors.DefaultWebhookEvents
	}
	handler := b.render("payments/webhook_controller.rb", nil)
	b.add("Setup Webhooks", models.CopySnippet, "payments/webhooks",
		map[string]any{
			"snippet":  handler,
			"url":      need(data["webhook_url"], "webhook URL"),
			"events":   events,
			"endpoint": endpoint,
			"secret":   webhookSecret,
		},
		map[string]any{"snippet": handler, "filename": "app/controllers/webhooks/stripe_controller.rb"})

	initializer := b.render("payments/initializer.rb", nil)
	mode := "subscription"
	if text(data["price_type"]) == "one_time" {
		mode = "payment"
	}
	b.add("Integrate Stripe in Rails", models.CopySnippet, "payments/rails",
		map[string]any{"snippet": initializer, "mode": mode},
		map[string]any{"snippet": initializer, "filename": "config/initializers/stripe.rb"})

	b.add("Testing & Go Live", models.ManualAction, "payments/go_live", nil, nil)
}

func browserExtension(b *builder) {
	data := b.in.Data
	name := need(data["extension_name"], "extension name")
	publisher := need(nil, "publisher name")
	if fields := strings.Fields(text(data["extension_name"])); len(fields) > 0 {
		publisher = fields[0]
	}

	b.add("Create Developer Account", models.ExternalLink, "extension/account",
		map[string]any{"publisher": publisher},
		map[string]any{"url": chromeDevConsoleURL})

	permissions := items(data["permissions"])
	manifest := b.snippet(manifestJSON(name, need(data["short_description"], "short description"), text(data["homepage_url"]), permissions))
	b.add("Prepare Extension Package", models.CopySnippet, "extension/package",
		map[string]any{"snippet": manifest, "name": name, "permissions": permissions},
		map[string]any{"snippet": manifest, "filename": "manifest.json"})

	b.add("Create Store Listing", models.ManualAction, "extension/listing",
		map[string]any{"name": name, "screenshots": items(data["screenshot_urls"])},
		nil)

	b.add("Upload & Submit for Review", models.ManualAction, "extension/submit", nil, nil)

	b.add("Handle Review Feedback", models.ManualAction, "extension/review", nil, nil)
}
