// Package storage implements the SQL persistence layer as an external
// contract: an idempotent client-presence upsert, consulted by
// nothing in the core beyond these two methods.
package storage

import "context"

// PresenceStore mirrors client connectivity into durable storage.
// Failures are logged by the caller and never tear down the control
// session.
type PresenceStore interface {
	// UpsertOnline records clientID as online, owned by userID.
	UpsertOnline(ctx context.Context, clientID, userID string) error
	// MarkOffline records clientID as offline.
	MarkOffline(ctx context.Context, clientID string) error
}
