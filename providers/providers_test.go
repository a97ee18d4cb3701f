package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticKeyProvider(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{9}, 32))
	p, err := NewStaticKeyProvider(encoded)
	require.NoError(t, err)

	key, version, err := p.MasterKey(context.Background())
	require.NoError(t, err)
	assert.Len(t, key, 32)
	assert.True(t, strings.HasPrefix(version, "static-"))

	_, err = NewStaticKeyProvider("not base64!")
	assert.Error(t, err)

	_, err = NewStaticKeyProvider(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.Error(t, err)
}

func TestVaultKeyProvider(t *testing.T) {
	masterKey := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{3}, 32))
	reads := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/auth/approle/login":
			body, _ := io.ReadAll(r.Body)
			assert.Contains(t, string(body), "role-123")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"auth": map[string]any{"client_token": "s.token"},
			})
		case r.Method == http.MethodGet && r.URL.Path == "/v1/secret/data/deployassist/master":
			reads++
			assert.Equal(t, "s.token", r.Header.Get("X-Vault-Token"))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{
					"data":     map[string]any{"master_key": masterKey},
					"metadata": map[string]any{"version": 4},
				},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	p, err := NewVaultKeyProvider(context.Background(), VaultConfig{
		Address:    server.URL,
		RoleID:     "role-123",
		SecretID:   "secret-456",
		SecretPath: "deployassist/master",
	}, logger)
	require.NoError(t, err)

	key, version, err := p.MasterKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{3}, 32), key)
	assert.Equal(t, "vault-4", version)

	_, _, err = p.MasterKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, reads, "second read should be served from cache")
}

func TestVaultKeyProviderMissingField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"data": map[string]any{"other": "x"}},
		})
	}))
	defer server.Close()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	p, err := NewVaultKeyProvider(context.Background(), VaultConfig{Address: server.URL, SecretPath: "app"}, logger)
	require.NoError(t, err)

	_, _, err = p.MasterKey(context.Background())
	assert.ErrorContains(t, err, "master_key")
}
