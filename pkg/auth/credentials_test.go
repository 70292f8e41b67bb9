package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerStoreAndRetrieve(t *testing.T) {
	manager, store := NewMockManager()

	account := &Account{Username: "pool_account_1", Password: "secret"}
	require.NoError(t, manager.Store(account))
	assert.Equal(t, 1, store.Count())
	assert.False(t, account.LastModified.IsZero())

	got, err := manager.Retrieve("pool_account_1")
	require.NoError(t, err)
	assert.Equal(t, "pool_account_1", got.Username)
	assert.Equal(t, "secret", got.Password)
}

func TestManagerStoreValidation(t *testing.T) {
	manager, _ := NewMockManager()

	assert.Error(t, manager.Store(&Account{Password: "x"}))
	assert.Error(t, manager.Store(&Account{Username: "x"}))
}

func TestManagerRetrieveMissing(t *testing.T) {
	manager, _ := NewMockManager()

	_, err := manager.Retrieve("nobody")
	require.Error(t, err)
}

func TestManagerFallbackChain(t *testing.T) {
	failing := NewMockStore()
	failing.StoreError = errors.New("store unavailable")
	failing.RetrieveError = errors.New("store unavailable")

	working := NewMockStore()
	manager := NewMockManagerWithStores(failing, working)

	account := &Account{Username: "pool_account_1", Password: "secret"}
	require.NoError(t, manager.Store(account))
	assert.Equal(t, 0, failing.Count())
	assert.Equal(t, 1, working.Count())

	got, err := manager.Retrieve("pool_account_1")
	require.NoError(t, err)
	assert.Equal(t, "secret", got.Password)
}

func TestManagerListMergesNewest(t *testing.T) {
	older := NewMockStore()
	newer := NewMockStore()

	require.NoError(t, older.Store(&Account{
		Username:     "shared",
		Password:     "old",
		LastModified: time.Now().Add(-time.Hour),
	}))
	require.NoError(t, newer.Store(&Account{
		Username:     "shared",
		Password:     "new",
		LastModified: time.Now(),
	}))
	require.NoError(t, older.Store(&Account{
		Username:     "only_older",
		Password:     "x",
		LastModified: time.Now(),
	}))

	manager := NewMockManagerWithStores(older, newer)
	accounts, err := manager.List()
	require.NoError(t, err)
	require.Len(t, accounts, 2)

	byName := make(map[string]*Account)
	for _, a := range accounts {
		byName[a.Username] = a
	}
	assert.Equal(t, "new", byName["shared"].Password)
	assert.NotNil(t, byName["only_older"])
}

func TestManagerDelete(t *testing.T) {
	manager, store := NewMockManager()

	require.NoError(t, manager.Store(&Account{Username: "u", Password: "p"}))
	require.NoError(t, manager.Delete("u"))
	assert.Equal(t, 0, store.Count())

	assert.Error(t, manager.Delete("u"))
}

func TestSanitizeAccount(t *testing.T) {
	account := &Account{Username: "u", Password: "super_secret"}
	masked := SanitizeAccount(account)

	assert.Equal(t, "u", masked.Username)
	assert.Equal(t, "********", masked.Password)
	assert.Equal(t, "super_secret", account.Password, "original untouched")

	assert.Nil(t, SanitizeAccount(nil))
}

func TestEncryptedFileStoreRoundTrip(t *testing.T) {
	t.Setenv("IGRELAY_PASSPHRASE", "test-passphrase")

	path := t.TempDir() + "/credentials.enc"
	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)

	account := &Account{Username: "alice", Password: "hunter2", LastModified: time.Now()}
	require.NoError(t, store.Store(account))
	assert.True(t, store.Exists("alice"))

	got, err := store.Retrieve("alice")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", got.Password)

	// A second store instance with the same passphrase can read it back
	reopened, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	got, err = reopened.Retrieve("alice")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", got.Password)
}

func TestEncryptedFileStoreDeleteLast(t *testing.T) {
	t.Setenv("IGRELAY_PASSPHRASE", "test-passphrase")

	path := t.TempDir() + "/credentials.enc"
	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)

	require.NoError(t, store.Store(&Account{Username: "alice", Password: "p"}))
	require.NoError(t, store.Delete("alice"))
	assert.False(t, store.Exists("alice"))
}

func TestEnvironmentStore(t *testing.T) {
	t.Setenv("IGRELAY_IG_USERNAME", "env_account")
	t.Setenv("IGRELAY_IG_PASSWORD", "env_password")

	store := NewEnvironmentStore()

	got, err := store.Retrieve("")
	require.NoError(t, err)
	assert.Equal(t, "env_account", got.Username)
	assert.Equal(t, "env_password", got.Password)

	got, err = store.Retrieve("env_account")
	require.NoError(t, err)
	assert.Equal(t, "env_account", got.Username)

	_, err = store.Retrieve("someone_else")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)

	assert.ErrorIs(t, store.Store(&Account{Username: "x", Password: "y"}), ErrStoreUnavailable)
	assert.ErrorIs(t, store.Delete("env_account"), ErrStoreUnavailable)
}
