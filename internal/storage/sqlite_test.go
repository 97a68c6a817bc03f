package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore_UpsertAndMarkOffline(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.UpsertOnline(ctx, "client-1", "user-1"))

	var status string
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT status FROM clients WHERE client_id = ?`, "client-1").Scan(&status))
	assert.Equal(t, "online", status)

	require.NoError(t, s.MarkOffline(ctx, "client-1"))
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT status FROM clients WHERE client_id = ?`, "client-1").Scan(&status))
	assert.Equal(t, "offline", status)
}

func TestSQLiteStore_UpsertIsIdempotent(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.UpsertOnline(ctx, "client-1", "user-1"))
	require.NoError(t, s.UpsertOnline(ctx, "client-1", "user-2"))

	var userID string
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT user_id FROM clients WHERE client_id = ?`, "client-1").Scan(&userID))
	assert.Equal(t, "user-2", userID)
}
