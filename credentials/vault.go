// Package credentials stores provider secrets encrypted at rest, scoped to a
// deployment setup.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/surajsub/deployassist/db"
)

var (
	// ErrNoKey is returned when no master key is available.
	ErrNoKey = errors.New("no credential master key configured")
	// ErrKeyVersion is returned when a credential was sealed under a master
	// key version the provider no longer serves.
	ErrKeyVersion = errors.New("credential sealed under a different master key version")
)

// KeyProvider supplies the master key and its version label.
type KeyProvider interface {
	MasterKey(ctx context.Context) (key []byte, version string, err error)
}

type Vault struct {
	store  *db.Store
	keys   KeyProvider
	logger *logrus.Logger
}

func NewVault(store *db.Store, keys KeyProvider, logger *logrus.Logger) *Vault {
	return &Vault{store: store, keys: keys, logger: logger}
}

func associatedData(setupID uuid.UUID, service, credentialType string) []byte {
	return []byte(strings.Join([]string{setupID.String(), service, credentialType}, "|"))
}

func (v *Vault) setupKey(ctx context.Context, setupID uuid.UUID) ([]byte, string, error) {
	if v.keys == nil {
		return nil, "", ErrNoKey
	}
	master, version, err := v.keys.MasterKey(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("load master key: %w", err)
	}
	if len(master) == 0 {
		return nil, "", ErrNoKey
	}
	kek, err := deriveKey(master, setupID.String())
	if err != nil {
		return nil, "", err
	}
	return kek, version, nil
}

// Store encrypts value and records it as the active credential for
// (setup, service, type). Any previously active credential is deactivated in
// the same transaction.
func (v *Vault) Store(ctx context.Context, setupID uuid.UUID, service, credentialType, value, identifier string) (uuid.UUID, error) {
	kek, version, err := v.setupKey(ctx, setupID)
	if err != nil {
		return uuid.Nil, err
	}
	sealed, err := seal(kek, []byte(value), associatedData(setupID, service, credentialType))
	if err != nil {
		return uuid.Nil, err
	}

	cred := &db.Credential{
		DeploymentSetupID: setupID,
		Service:           service,
		CredentialType:    credentialType,
		EncryptedValue:    sealed,
		KeyIdentifier:     identifier,
		KeyVersion:        version,
		Active:            true,
	}
	err = v.store.Transaction(ctx, func(tx *db.Store) error {
		if err := tx.DeactivateCredentials(ctx, setupID, service, credentialType); err != nil {
			return err
		}
		return tx.CreateCredential(ctx, cred)
	})
	if err != nil {
		return uuid.Nil, err
	}

	v.logger.WithFields(logrus.Fields{
		"deployment_setup_id": setupID,
		"service":             service,
		"credential_type":     credentialType,
		"key_identifier":      Masked(cred),
	}).Info("Stored credential")
	return cred.ID, nil
}

// Find returns the active credential for (setup, service, type).
func (v *Vault) Find(ctx context.Context, setupID uuid.UUID, service, credentialType string) (*db.Credential, error) {
	return v.store.FindActiveCredential(ctx, setupID, service, credentialType)
}

// List returns every credential of a setup, active or not, without values.
func (v *Vault) List(ctx context.Context, setupID uuid.UUID) ([]db.Credential, error) {
	return v.store.ListCredentials(ctx, setupID, false)
}

// Reveal decrypts a credential. Callers gate access to it.
func (v *Vault) Reveal(ctx context.Context, credentialID uuid.UUID) (string, error) {
	cred, err := v.store.GetCredential(ctx, credentialID)
	if err != nil {
		return "", err
	}
	kek, version, err := v.setupKey(ctx, cred.DeploymentSetupID)
	if err != nil {
		return "", err
	}
	if cred.KeyVersion != "" && version != "" && cred.KeyVersion != version {
		return "", fmt.Errorf("credential %s has key version %s, provider serves %s: %w", cred.ID, cred.KeyVersion, version, ErrKeyVersion)
	}
	plaintext, err := open(kek, cred.EncryptedValue, associatedData(cred.DeploymentSetupID, cred.Service, cred.CredentialType))
	if err != nil {
		return "", fmt.Errorf("reveal credential %s: %w", cred.ID, err)
	}

	v.logger.WithFields(logrus.Fields{
		"credential_id": cred.ID,
		"service":       cred.Service,
	}).Warn("Credential revealed")
	return string(plaintext), nil
}

func (v *Vault) Deactivate(ctx context.Context, credentialID uuid.UUID) error {
	return v.store.SetCredentialActive(ctx, credentialID, false)
}

// Masked renders the credential's public identifier for display. The secret
// value is never involved.
func Masked(c *db.Credential) string {
	if c == nil {
		return ""
	}
	return MaskIdentifier(c.KeyIdentifier)
}

// MaskIdentifier keeps the first 8 and last 4 characters. Identifiers too
// short to hide anything are masked entirely.
func MaskIdentifier(id string) string {
	if id == "" {
		return ""
	}
	if len(id) <= 12 {
		return strings.Repeat("*", len(id))
	}
	return id[:8] + "..." + id[len(id)-4:]
}
