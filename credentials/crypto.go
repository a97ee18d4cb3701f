package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	envelopeVersion = 1
	keySize         = 32
)

// envelope is the stored form of a credential: the value sealed under a
// random data key, and the data key sealed under the setup's key.
type envelope struct {
	Version    int    `json:"v"`
	WrappedKey string `json:"wk"`
	KeyNonce   string `json:"kn"`
	Nonce      string `json:"n"`
	Ciphertext string `json:"ct"`
}

// deriveKey derives the per-setup key encryption key from the master key.
func deriveKey(master []byte, scope string) ([]byte, error) {
	if len(master) < keySize {
		return nil, fmt.Errorf("master key must be at least %d bytes", keySize)
	}
	r := hkdf.New(sha256.New, master, nil, []byte("deployassist/credentials/"+scope))
	key := make([]byte, keySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

func gcmSeal(key, plaintext, aad []byte) (nonce, ciphertext []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, err
	}
	return nonce, gcm.Seal(nil, nonce, plaintext, aad), nil
}

func gcmOpen(key, nonce, ciphertext, aad []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, errors.New("invalid nonce length")
	}
	return gcm.Open(nil, nonce, ciphertext, aad)
}

func seal(kek, plaintext, aad []byte) (string, error) {
	dataKey := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, dataKey); err != nil {
		return "", fmt.Errorf("generate data key: %w", err)
	}

	nonce, ct, err := gcmSeal(dataKey, plaintext, aad)
	if err != nil {
		return "", fmt.Errorf("encrypt value: %w", err)
	}
	keyNonce, wrapped, err := gcmSeal(kek, dataKey, aad)
	if err != nil {
		return "", fmt.Errorf("wrap data key: %w", err)
	}

	raw, err := json.Marshal(envelope{
		Version:    envelopeVersion,
		WrappedKey: base64.StdEncoding.EncodeToString(wrapped),
		KeyNonce:   base64.StdEncoding.EncodeToString(keyNonce),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ct),
	})
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func open(kek []byte, encoded string, aad []byte) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Version != envelopeVersion {
		return nil, fmt.Errorf("unsupported envelope version %d", env.Version)
	}

	parts := make([][]byte, 4)
	for i, s := range []string{env.WrappedKey, env.KeyNonce, env.Nonce, env.Ciphertext} {
		if parts[i], err = base64.StdEncoding.DecodeString(s); err != nil {
			return nil, fmt.Errorf("decode envelope: %w", err)
		}
	}

	dataKey, err := gcmOpen(kek, parts[1], parts[0], aad)
	if err != nil {
		return nil, fmt.Errorf("unwrap data key: %w", err)
	}
	plaintext, err := gcmOpen(dataKey, parts[2], parts[3], aad)
	if err != nil {
		return nil, fmt.Errorf("decrypt value: %w", err)
	}
	return plaintext, nil
}
