package vault

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// newTestVault opens a Vault backed by a throwaway file keyring, mirroring
// the teacher's createTestCredService helper.
func newTestVault(t *testing.T) *Vault {
	tempDir := filepath.Join(os.TempDir(), "router-discovery-vault-test-"+uuid.New().String())
	require.NoError(t, os.MkdirAll(tempDir, 0700))
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	v, err := NewFileBacked(tempDir)
	require.NoError(t, err)
	return v
}

func TestVault_StoreAndGet(t *testing.T) {
	v := newTestVault(t)
	routerID := uuid.New().String()

	key, err := v.Store(routerID, Secret{Username: "root", Password: "hunter2"}, "core-router", "192.168.1.1")
	require.NoError(t, err)
	require.Equal(t, routerID, key)

	secret, err := v.Get(key)
	require.NoError(t, err)
	require.Equal(t, "root", secret.Username)
	require.Equal(t, "hunter2", secret.Password)
}

func TestVault_Get_Missing(t *testing.T) {
	v := newTestVault(t)
	_, err := v.Get("nonexistent")
	require.Error(t, err)
}

func TestVault_Delete_Idempotent(t *testing.T) {
	v := newTestVault(t)
	routerID := uuid.New().String()
	_, err := v.Store(routerID, Secret{Username: "root", Password: "x"}, "", "")
	require.NoError(t, err)

	require.NoError(t, v.Delete(routerID))
	require.NoError(t, v.Delete(routerID))

	_, err = v.Get(routerID)
	require.Error(t, err)
}

func TestSecret_UsesKey(t *testing.T) {
	require.True(t, Secret{PrivateKey: "x"}.UsesKey())
	require.False(t, Secret{Password: "x"}.UsesKey())
}

func TestVault_EncryptDecryptField_RoundTrip(t *testing.T) {
	v := newTestVault(t)
	cipher, err := v.EncryptField("a passphrase")
	require.NoError(t, err)
	require.NotEmpty(t, cipher)

	plain, err := v.DecryptField(cipher)
	require.NoError(t, err)
	require.Equal(t, "a passphrase", plain)
}

func TestVault_EncryptDecryptField_Empty(t *testing.T) {
	v := newTestVault(t)
	cipher, err := v.EncryptField("")
	require.NoError(t, err)
	require.Empty(t, cipher)

	plain, err := v.DecryptField("")
	require.NoError(t, err)
	require.Empty(t, plain)
}
