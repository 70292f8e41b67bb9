package instagram

import (
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igrelay/pkg/logger"
)

func TestSessionStoreRoundTrip(t *testing.T) {
	store := NewSessionStore(t.TempDir(), logger.NewTestLogger())

	client := NewClient(testInstagramConfig(), logger.NewTestLogger())
	client.username = "alice"
	client.SetCookies([]*http.Cookie{
		{Name: "sessionid", Value: "sess456"},
		{Name: "csrftoken", Value: "csrf123"},
	})

	require.NoError(t, store.Save(client))
	assert.True(t, store.Exists("alice"))

	restoredClient := NewClient(testInstagramConfig(), logger.NewTestLogger())
	restored, err := store.Restore(restoredClient, "alice")
	require.NoError(t, err)
	assert.True(t, restored)
	assert.True(t, restoredClient.IsAuthenticated())
	assert.Equal(t, "alice", restoredClient.Username())
	assert.Equal(t, "sess456", restoredClient.CookieValue("sessionid"))
	assert.Equal(t, "csrf123", restoredClient.CookieValue("csrftoken"))
}

func TestSessionStoreRestoreMissing(t *testing.T) {
	store := NewSessionStore(t.TempDir(), logger.NewTestLogger())

	client := NewClient(testInstagramConfig(), logger.NewTestLogger())
	restored, err := store.Restore(client, "nobody")
	require.NoError(t, err)
	assert.False(t, restored)
	assert.False(t, client.IsAuthenticated())
}

func TestSessionStoreSaveAnonymous(t *testing.T) {
	store := NewSessionStore(t.TempDir(), logger.NewTestLogger())
	client := NewClient(testInstagramConfig(), logger.NewTestLogger())

	err := store.Save(client)
	require.Error(t, err)
}

func TestSessionStoreDelete(t *testing.T) {
	store := NewSessionStore(t.TempDir(), logger.NewTestLogger())

	client := NewClient(testInstagramConfig(), logger.NewTestLogger())
	client.username = "alice"
	client.SetCookies([]*http.Cookie{{Name: "sessionid", Value: "x"}})
	require.NoError(t, store.Save(client))

	require.NoError(t, store.Delete("alice"))
	assert.False(t, store.Exists("alice"))

	// Deleting a missing session is not an error
	require.NoError(t, store.Delete("alice"))
}

func TestSessionPathSanitized(t *testing.T) {
	dir := t.TempDir()
	store := NewSessionStore(dir, logger.NewTestLogger())

	path := store.path("../evil")
	assert.Equal(t, filepath.Join(dir, "session_.._evil.json"), path)
}
