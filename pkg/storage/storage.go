// Package storage abstracts multipart upload sessions against an
// object store.
package storage

import "context"

// Store creates and cancels multipart upload sessions.
type Store interface {
	// Preflight verifies that the remote storage is reachable and writable.
	// Writes a small test object to the bucket to fail fast on misconfiguration.
	Preflight(ctx context.Context) error

	// Initiate registers a new multipart upload for the destination key.
	// Initiation failure is fatal for the file; nothing remote exists yet,
	// so no cleanup is required.
	Initiate(ctx context.Context, key string, encrypt bool) (Session, error)

	// Cancel best-effort aborts a session and any stragglers the service
	// still lists for the same key. Never returns an error: it only runs
	// while a task is already failing.
	Cancel(ctx context.Context, session Session)
}

// Session is one remote upload-in-progress for one destination object.
// Once completed or cancelled, no further part uploads may be issued.
type Session interface {
	// Key returns the destination key of the session.
	Key() string

	// UploadPart transmits one part. Re-uploading the same index replaces
	// the previous content, which makes per-part retry safe.
	UploadPart(ctx context.Context, index int32, data []byte) error

	// Complete concatenates all acknowledged parts into the final object.
	Complete(ctx context.Context) error
}
