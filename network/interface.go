// Package network contains the remote store operations the upload engine is built on,
// and a Backblaze B2 implementation of them.
package network

import "context"

// Client is the set of remote operations an upload needs.
type Client interface {
	// OpenMultipartSession starts a large file upload and returns its session id.
	OpenMultipartSession(ctx context.Context, request SessionRequest) (string, error)
	// GetPartUploadSlot returns a slot for uploading parts of the session. A new slot
	// can be requested whenever the previous one was rejected as busy.
	GetPartUploadSlot(ctx context.Context, sessionID string) (Slot, error)
	// UploadPart uploads one part. A transiently busy store is reported as a
	// *RequestError for which IsBusy returns true.
	UploadPart(ctx context.Context, slot Slot, request PartRequest) error
	// FinishMultipartSession assembles the uploaded parts into the final file.
	// partSHA1s holds the SHA-1 of every part in part number order.
	FinishMultipartSession(ctx context.Context, sessionID string, partSHA1s []string) (*File, error)
	// CancelMultipartSession drops the session and its uploaded parts.
	CancelMultipartSession(ctx context.Context, sessionID string) error
	// GetSingleUploadSlot returns a slot for uploading a whole file in one request.
	GetSingleUploadSlot(ctx context.Context, bucketID string) (Slot, error)
	// UploadSingle uploads a whole file in one request.
	UploadSingle(ctx context.Context, slot Slot, request SingleRequest) (*File, error)
}
