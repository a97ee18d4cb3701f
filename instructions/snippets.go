package instructions

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

func marshalYAML(v any) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("encode yaml snippet: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("encode yaml snippet: %w", err)
	}
	return buf.String(), nil
}

// envName turns an app name into an environment variable prefix.
func envName(app string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return '_'
	}, strings.TrimSpace(app))
}

func slug(app string) string {
	return strings.Trim(strings.ToLower(strings.ReplaceAll(envName(app), "_", "-")), "-")
}

type kamalConfig struct {
	Service  string        `yaml:"service"`
	Image    string        `yaml:"image"`
	Servers  kamalServers  `yaml:"servers"`
	Proxy    kamalProxy    `yaml:"proxy"`
	Registry kamalRegistry `yaml:"registry"`
	Env      kamalEnv      `yaml:"env"`
	Volumes  []string      `yaml:"volumes"`
	Builder  kamalBuilder  `yaml:"builder"`
}

type kamalServers struct {
	Web []string `yaml:"web"`
}

type kamalProxy struct {
	SSL  bool   `yaml:"ssl"`
	Host string `yaml:"host"`
}

type kamalRegistry struct {
	Username string   `yaml:"username"`
	Password []string `yaml:"password"`
}

type kamalEnv struct {
	Secret []string          `yaml:"secret"`
	Clear  map[string]string `yaml:"clear"`
}

type kamalBuilder struct {
	Arch string `yaml:"arch"`
}

func kamalDeployYAML(app, dockerUser, domain, dbHost string) (string, error) {
	name := slug(app)
	return marshalYAML(kamalConfig{
		Service: name,
		Image:   dockerUser + "/" + name,
		Servers: kamalServers{Web: []string{"EC2_PUBLIC_IP_HERE"}},
		Proxy:   kamalProxy{SSL: true, Host: domain},
		Registry: kamalRegistry{
			Username: dockerUser,
			Password: []string{"KAMAL_REGISTRY_PASSWORD"},
		},
		Env: kamalEnv{
			Secret: []string{"RAILS_MASTER_KEY", envName(app) + "_DATABASE_PASSWORD"},
			Clear: map[string]string{
				"DB_HOST":                  dbHost,
				"SOLID_QUEUE_IN_PUMA":      "true",
				"RAILS_LOG_TO_STDOUT":      "true",
				"RAILS_SERVE_STATIC_FILES": "true",
			},
		},
		Volumes: []string{name + "_storage:/rails/storage"},
		Builder: kamalBuilder{Arch: "amd64"},
	})
}

type dbConnection struct {
	Adapter         string `yaml:"adapter"`
	Encoding        string `yaml:"encoding"`
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	Database        string `yaml:"database"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	Pool            int    `yaml:"pool"`
	MigrationsPaths string `yaml:"migrations_paths,omitempty"`
}

type productionDatabases struct {
	Primary dbConnection `yaml:"primary"`
	Cache   dbConnection `yaml:"cache"`
	Queue   dbConnection `yaml:"queue"`
	Cable   dbConnection `yaml:"cable"`
}

func databaseYAML(app, host, username string) (string, error) {
	base := strings.ReplaceAll(slug(app), "-", "_") + "_production"
	conn := func(suffix, migrations string) dbConnection {
		return dbConnection{
			Adapter:         "postgresql",
			Encoding:        "unicode",
			Host:            host,
			Port:            5432,
			Database:        base + suffix,
			Username:        username,
			Password:        fmt.Sprintf(`<%%= ENV["%s_DATABASE_PASSWORD"] %%>`, envName(app)),
			Pool:            5,
			MigrationsPaths: migrations,
		}
	}
	return marshalYAML(map[string]productionDatabases{
		"production": {
			Primary: conn("", ""),
			Cache:   conn("_cache", "db/cache_migrate"),
			Queue:   conn("_queue", "db/queue_migrate"),
			Cable:   conn("_cable", "db/cable_migrate"),
		},
	})
}

type awsCredentials struct {
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Region          string `yaml:"region"`
	S3              struct {
		Bucket string `yaml:"bucket"`
	} `yaml:"s3"`
}

func productionCredentialsYAML(accessKeyID, secretAccessKey, region, bucket string) (string, error) {
	c := awsCredentials{AccessKeyID: accessKeyID, SecretAccessKey: secretAccessKey, Region: region}
	c.S3.Bucket = bucket
	return marshalYAML(map[string]awsCredentials{"aws": c})
}

func googleCredentialsYAML() (string, error) {
	return marshalYAML(map[string]map[string]string{
		"google": {
			"client_id":     "YOUR_CLIENT_ID_HERE",
			"client_secret": "YOUR_CLIENT_SECRET_HERE",
		},
	})
}

func sesCredentialsYAML() (string, error) {
	return marshalYAML(map[string]map[string]map[string]string{
		"aws": {"ses": {
			"smtp_username": "YOUR_SMTP_USERNAME",
			"smtp_password": "YOUR_SMTP_PASSWORD",
		}},
	})
}

type stripeCredentials struct {
	PublishableKey string `yaml:"publishable_key"`
	SecretKey      string `yaml:"secret_key"`
	WebhookSecret  string `yaml:"webhook_secret"`
}

func stripeCredentialsYAML(webhookSecret string) (string, error) {
	return marshalYAML(map[string]stripeCredentials{"stripe": {
		PublishableKey: "pk_test_YOUR_KEY_HERE",
		SecretKey:      "sk_test_YOUR_KEY_HERE",
		WebhookSecret:  webhookSecret,
	}})
}

type chromeManifest struct {
	ManifestVersion int               `json:"manifest_version"`
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Description     string            `json:"description"`
	Permissions     []string          `json:"permissions"`
	Icons           map[string]string `json:"icons"`
	Action          manifestAction    `json:"action"`
	Background      manifestWorker    `json:"background"`
	HomepageURL     string            `json:"homepage_url,omitempty"`
}

type manifestAction struct {
	DefaultPopup string            `json:"default_popup"`
	DefaultIcon  map[string]string `json:"default_icon"`
}

type manifestWorker struct {
	ServiceWorker string `json:"service_worker"`
}

func manifestJSON(name, description, homepage string, permissions []string) (string, error) {
	icons := map[string]string{"16": "icon-16.png", "48": "icon-48.png", "128": "icon-128.png"}
	if permissions == nil {
		permissions = []string{}
	}
	b, err := json.MarshalIndent(chromeManifest{
		ManifestVersion: 3,
		Name:            name,
		Version:         "1.0.0",
		Description:     description,
		Permissions:     permissions,
		Icons:           icons,
		Action:          manifestAction{DefaultPopup: "popup.html", DefaultIcon: icons},
		Background:      manifestWorker{ServiceWorker: "background.js"},
		HomepageURL:     homepage,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode manifest: %w", err)
	}
	return string(b) + "\n", nil
}
