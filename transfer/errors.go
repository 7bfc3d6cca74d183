package transfer

import (
	"errors"

	"github.com/bitrise-io/go-objectupload/transfer/chunkuploader"
)

// ErrAlreadyStarted is returned by Start when the upload is not pending anymore.
var ErrAlreadyStarted = errors.New("upload already started")

// ErrAborted is returned by Start when the upload was aborted.
var ErrAborted = errors.New("upload aborted")

// InvalidOptionError reports an option value outside its accepted range.
type InvalidOptionError = chunkuploader.InvalidOptionError

// SourceReadError wraps an I/O failure while reading the upload source.
type SourceReadError = chunkuploader.SourceReadError
