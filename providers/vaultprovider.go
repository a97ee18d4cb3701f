package providers

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/vault-client-go"
	"github.com/hashicorp/vault-client-go/schema"
	"github.com/sirupsen/logrus"
)

// VaultConfig locates the credential master key in a KV v2 secrets engine.
type VaultConfig struct {
	Address    string        `yaml:"address"`
	RoleID     string        `yaml:"role_id"`
	SecretID   string        `yaml:"secret_id"`
	AuthMount  string        `yaml:"auth_mount"`
	MountPath  string        `yaml:"mount_path"`
	SecretPath string        `yaml:"secret_path"`
	Field      string        `yaml:"field"`
	CACertPath string        `yaml:"ca_cert_path"`
	Timeout    time.Duration `yaml:"timeout"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
}

// VaultKeyProvider reads the base64 master key from HashiCorp Vault after an
// AppRole login. The key is cached for CacheTTL.
type VaultKeyProvider struct {
	client *vault.Client
	cfg    VaultConfig
	logger *logrus.Logger
	now    func() time.Time

	mu       sync.Mutex
	key      []byte
	version  string
	loadedAt time.Time
}

func NewVaultKeyProvider(ctx context.Context, cfg VaultConfig, logger *logrus.Logger) (*VaultKeyProvider, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.AuthMount == "" {
		cfg.AuthMount = "approle"
	}
	if cfg.MountPath == "" {
		cfg.MountPath = "secret"
	}
	if cfg.Field == "" {
		cfg.Field = "master_key"
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 5 * time.Minute
	}

	opts := []vault.ClientOption{
		vault.WithAddress(cfg.Address),
		vault.WithRequestTimeout(cfg.Timeout),
	}
	if cfg.CACertPath != "" {
		tls := vault.TLSConfiguration{}
		tls.ServerCertificate.FromFile = cfg.CACertPath
		opts = append(opts, vault.WithTLS(tls))
	}

	client, err := vault.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("vault client: %w", err)
	}

	p := &VaultKeyProvider{client: client, cfg: cfg, logger: logger, now: time.Now}
	if cfg.RoleID != "" {
		if err := p.login(ctx); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (v *VaultKeyProvider) login(ctx context.Context) error {
	resp, err := v.client.Auth.AppRoleLogin(
		ctx,
		schema.AppRoleLoginRequest{
			RoleId:   v.cfg.RoleID,
			SecretId: v.cfg.SecretID,
		},
		vault.WithMountPath(v.cfg.AuthMount),
	)
	if err != nil {
		return fmt.Errorf("vault login failed: %w", err)
	}
	if err := v.client.SetToken(resp.Auth.ClientToken); err != nil {
		return fmt.Errorf("vault set token: %w", err)
	}
	v.logger.WithField("mount", v.cfg.AuthMount).Info("Authenticated to Vault with AppRole")
	return nil
}

// MasterKey implements credentials.KeyProvider.
func (v *VaultKeyProvider) MasterKey(ctx context.Context) ([]byte, string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.key != nil && v.now().Sub(v.loadedAt) < v.cfg.CacheTTL {
		return v.key, v.version, nil
	}

	secret, err := v.client.Secrets.KvV2Read(ctx, v.cfg.SecretPath, vault.WithMountPath(v.cfg.MountPath))
	if err != nil {
		return nil, "", fmt.Errorf("vault read %s/%s: %w", v.cfg.MountPath, v.cfg.SecretPath, err)
	}

	raw, ok := secret.Data.Data[v.cfg.Field].(string)
	if !ok || raw == "" {
		return nil, "", fmt.Errorf("vault secret %s has no %q field", v.cfg.SecretPath, v.cfg.Field)
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, "", fmt.Errorf("vault secret %s: field %q is not base64: %w", v.cfg.SecretPath, v.cfg.Field, err)
	}

	version := "vault"
	if meta := secret.Data.Metadata; meta != nil {
		if n, ok := meta["version"]; ok {
			version = fmt.Sprintf("vault-%v", n)
		}
	}

	v.key = key
	v.version = version
	v.loadedAt = v.now()
	return key, version, nil
}
