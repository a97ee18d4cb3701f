package providers

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// StaticKeyProvider serves a master key supplied through configuration.
type StaticKeyProvider struct {
	key     []byte
	version string
}

// NewStaticKeyProvider decodes a base64 key of at least 32 bytes.
func NewStaticKeyProvider(encoded string) (*StaticKeyProvider, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("encryption key is not base64: %w", err)
	}
	if len(key) < 32 {
		return nil, fmt.Errorf("encryption key must decode to at least 32 bytes, got %d", len(key))
	}
	sum := sha256.Sum256(key)
	return &StaticKeyProvider{key: key, version: "static-" + hex.EncodeToString(sum[:4])}, nil
}

func (s *StaticKeyProvider) MasterKey(context.Context) ([]byte, string, error) {
	return s.key, s.version, nil
}
