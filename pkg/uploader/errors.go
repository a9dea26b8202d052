package uploader

import "errors"

var (
	// ErrInitiationFailed marks a multipart initiation failure. Fatal for
	// the file; never retried, nothing remote to clean up.
	ErrInitiationFailed = errors.New("multipart initiation failed")

	// ErrPartUploadFailed marks a chunk upload that exhausted its retry
	// budget. The task cancels its session before reporting it.
	ErrPartUploadFailed = errors.New("part upload failed")

	// ErrCompletionFailed marks a failed multipart completion. The object
	// does not exist; the task cancels its session before reporting it.
	ErrCompletionFailed = errors.New("multipart completion failed")
)
