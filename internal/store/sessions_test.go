package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"wabridge/internal/client"
)

func openTestStore(t *testing.T) *SessionStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sessions.db"), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveLoadRoundtrip(t *testing.T) {
	s := openTestStore(t)

	session := &client.Session{BrowserID: "b1", SecretBundle: "sb", Token1: "t1", Token2: "t2"}
	require.NoError(t, s.Save("desk-1", session))

	loaded, err := s.Load("desk-1")
	require.NoError(t, err)
	assert.Equal(t, session, loaded)
}

func TestSaveOverwrites(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Save("desk-1", &client.Session{BrowserID: "old"}))
	require.NoError(t, s.Save("desk-1", &client.Session{BrowserID: "new"}))

	loaded, err := s.Load("desk-1")
	require.NoError(t, err)
	assert.Equal(t, "new", loaded.BrowserID)
}

func TestLoadMissing(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Load("nobody")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Save("desk-1", &client.Session{BrowserID: "b"}))
	require.NoError(t, s.Delete("desk-1"))

	_, err := s.Load("desk-1")
	require.ErrorIs(t, err, ErrNotFound)

	// Deleting a missing session is not an error.
	require.NoError(t, s.Delete("desk-1"))
}

func TestSaveNilSession(t *testing.T) {
	s := openTestStore(t)
	require.Error(t, s.Save("desk-1", nil))
}
