package transfer

import (
	"fmt"

	"github.com/bitrise-io/go-objectupload/network"
	"github.com/bitrise-io/go-objectupload/throttle"
	"github.com/bitrise-io/go-objectupload/transfer/chunkuploader"
)

// DefaultLargeFileCutoff is the size above which files are uploaded in parts.
const DefaultLargeFileCutoff int64 = 200 * 1024 * 1024

// Options configures an Upload.
type Options struct {
	// LargeFileCutoff is the largest size uploaded in a single request.
	// Must be between chunkuploader.MinPartSize and chunkuploader.MaxPartSize.
	LargeFileCutoff int64
	Chunking        chunkuploader.Strategy
	Retry           RetryStrategy
	// Limiter caps the upload throughput in bytes. Optional, can be shared by uploads.
	Limiter  *throttle.Throttle
	Settings network.FileSettings
	Parts    chunkuploader.Config
}

// DefaultOptions returns options with a 200 MiB cutoff, adaptive chunking and the
// default retry strategy.
func DefaultOptions() Options {
	return Options{
		LargeFileCutoff: DefaultLargeFileCutoff,
		Chunking:        chunkuploader.AdaptiveStrategy(),
		Retry:           DefaultRetryStrategy(),
		Parts:           chunkuploader.DefaultConfig(),
	}
}

// Validate checks the options that don't depend on the file size.
func (o Options) Validate() error {
	if o.LargeFileCutoff < chunkuploader.MinPartSize || o.LargeFileCutoff > chunkuploader.MaxPartSize {
		return &InvalidOptionError{
			Object:   "UploadOptions",
			Field:    "LargeFileCutoff",
			Value:    o.LargeFileCutoff,
			Expected: fmt.Sprintf("between %d and %d", chunkuploader.MinPartSize, chunkuploader.MaxPartSize),
		}
	}
	if o.Chunking == nil {
		return &InvalidOptionError{Object: "UploadOptions", Field: "Chunking", Value: nil, Expected: "a chunking strategy"}
	}
	if o.Retry == nil {
		return &InvalidOptionError{Object: "UploadOptions", Field: "Retry", Value: nil, Expected: "a retry strategy"}
	}
	if o.Retry.Attempts() < 1 {
		return &InvalidOptionError{Object: "RetryStrategy", Field: "Attempts", Value: o.Retry.Attempts(), Expected: ">= 1"}
	}
	return nil
}
