// Package transfer drives the upload of one file: it picks the single request or the
// multipart path, retries failed attempts and handles aborts.
package transfer

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"

	"github.com/bitrise-io/go-objectupload/network"
	"github.com/bitrise-io/go-objectupload/progress"
	"github.com/bitrise-io/go-objectupload/transfer/chunkuploader"
)

const sessionCancelTimeout = 30 * time.Second

// Target is the destination of an upload.
type Target struct {
	BucketID string
	FileName string
	Info     map[string]string
}

// Upload is the upload of one source to one target. Start runs it at most once.
type Upload struct {
	id      uint64
	client  network.Client
	target  Target
	source  *chunkuploader.Source
	options Options
	logger  log.Logger
	tracker *progress.Tracker

	abortCtx    context.Context
	abortCancel context.CancelFunc

	mu        sync.Mutex
	status    Status
	sessionID string
	callbacks []func()
}

// New creates a pending upload.
func New(client network.Client, target Target, source *chunkuploader.Source, options Options, logger log.Logger) *Upload {
	abortCtx, abortCancel := context.WithCancel(context.Background())
	return &Upload{
		id:          rand.Uint64(),
		client:      client,
		target:      target,
		source:      source,
		options:     options,
		logger:      logger,
		tracker:     progress.NewTracker(source.Size()),
		abortCtx:    abortCtx,
		abortCancel: abortCancel,
		status:      StatusPending,
	}
}

// ID returns the random identifier of the upload.
func (u *Upload) ID() uint64 {
	return u.id
}

// Target returns the destination of the upload.
func (u *Upload) Target() Target {
	return u.target
}

// Status returns the current state.
func (u *Upload) Status() Status {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.status
}

// HasStopped reports whether the upload reached a terminal state.
func (u *Upload) HasStopped() bool {
	return u.Status().IsTerminal()
}

// Progress returns a snapshot of the transferred bytes.
func (u *Upload) Progress() progress.Snapshot {
	return u.tracker.Snapshot()
}

// OnFinish registers fn to run once the upload reached a terminal state. Callbacks run
// synchronously in registration order; fn runs right away if the upload already stopped.
func (u *Upload) OnFinish(fn func()) {
	u.mu.Lock()
	if !u.status.IsTerminal() {
		u.callbacks = append(u.callbacks, fn)
		u.mu.Unlock()
		return
	}
	u.mu.Unlock()
	fn()
}

// Start runs the upload and returns the uploaded file.
// It can be called only once, later calls return ErrAlreadyStarted.
func (u *Upload) Start(ctx context.Context) (*network.File, error) {
	u.mu.Lock()
	if u.status != StatusPending {
		u.mu.Unlock()
		return nil, ErrAlreadyStarted
	}

	plan, err := u.plan()
	if err != nil {
		u.status = StatusFailed
		callbacks := u.takeCallbacks()
		u.mu.Unlock()
		runCallbacks(callbacks)
		return nil, err
	}
	u.status = StatusWorking
	u.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(u.abortCtx, cancel)
	defer stop()

	u.tracker.Start()
	u.logger.Debugf("Upload %d of %s started (%d bytes)", u.id, u.target.FileName, u.source.Size())

	file, err := u.run(runCtx, plan)

	u.mu.Lock()
	switch {
	case u.status == StatusAborted:
		file, err = nil, ErrAborted
	case err != nil:
		u.status = StatusFailed
	default:
		u.status = StatusFinished
	}
	callbacks := u.takeCallbacks()
	u.mu.Unlock()

	runCallbacks(callbacks)

	if err != nil {
		return nil, err
	}
	u.logger.Debugf("Upload %d of %s finished", u.id, u.target.FileName)
	return file, nil
}

// plan validates the options and returns the part plan, which is nil for a single
// request upload. Must be called with u.mu held.
func (u *Upload) plan() (*chunkuploader.FixedStrategy, error) {
	if err := u.options.Validate(); err != nil {
		return nil, err
	}
	if u.source.Size() <= u.options.LargeFileCutoff {
		return nil, nil
	}

	plan, err := u.options.Chunking.Plan(u.source.Size())
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (u *Upload) run(ctx context.Context, plan *chunkuploader.FixedStrategy) (*network.File, error) {
	attempts := u.options.Retry.Attempts()

	for attempt := 1; ; attempt++ {
		u.tracker.Reset()

		var file *network.File
		var err error
		if plan == nil {
			file, err = u.uploadSingle(ctx)
		} else {
			file, err = u.uploadMultipart(ctx, *plan)
		}
		if err == nil {
			return file, nil
		}

		if u.aborted() {
			return nil, ErrAborted
		}
		if ctx.Err() != nil {
			return nil, err
		}
		if attempt >= attempts {
			u.logger.Errorf("Upload %d failed after %d attempts: %s", u.id, attempt, err)
			return nil, err
		}

		wait := u.options.Retry.Wait(attempt + 1)
		u.logger.Warnf("Upload attempt %d/%d failed: %s", attempt, attempts, err)
		u.logger.Printf("Retrying in %s...", wait)

		if !u.transition(StatusWorking, StatusRetrying) {
			return nil, ErrAborted
		}
		if err := sleep(ctx, wait); err != nil {
			if u.aborted() {
				return nil, ErrAborted
			}
			return nil, err
		}
		if !u.transition(StatusRetrying, StatusWorking) {
			return nil, ErrAborted
		}
	}
}

// Abort stops a running upload. It has no effect unless the upload is working or
// retrying. An open multipart session is cancelled best-effort using ctx.
func (u *Upload) Abort(ctx context.Context) {
	u.mu.Lock()
	if !u.status.IsActive() {
		u.mu.Unlock()
		return
	}
	u.status = StatusAborted
	sessionID := u.sessionID
	u.sessionID = ""
	u.mu.Unlock()

	u.abortCancel()
	u.logger.Warnf("Upload %d of %s aborted", u.id, u.target.FileName)

	if sessionID != "" {
		u.cancelSession(ctx, sessionID)
	}
}

func (u *Upload) aborted() bool {
	return u.Status() == StatusAborted
}

func (u *Upload) transition(from, to Status) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.status != from {
		return false
	}
	u.status = to
	return true
}

// openSession records the session of the running attempt. It returns false if the
// upload was aborted before the session could be recorded.
func (u *Upload) openSession(sessionID string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.status == StatusAborted {
		return false
	}
	u.sessionID = sessionID
	return true
}

// takeSession clears the recorded session and reports whether it was still recorded,
// so every session is cancelled at most once.
func (u *Upload) takeSession(sessionID string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.sessionID != sessionID {
		return false
	}
	u.sessionID = ""
	return true
}

func (u *Upload) cancelSession(ctx context.Context, sessionID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sessionCancelTimeout)
	defer cancel()

	if err := u.client.CancelMultipartSession(ctx, sessionID); err != nil {
		u.logger.Errorf("Failed to cancel multipart session %s: %s", sessionID, err)
		return
	}
	u.logger.Debugf("Multipart session %s cancelled", sessionID)
}

// takeCallbacks must be called with u.mu held.
func (u *Upload) takeCallbacks() []func() {
	callbacks := u.callbacks
	u.callbacks = nil
	return callbacks
}

func runCallbacks(callbacks []func()) {
	for _, fn := range callbacks {
		fn()
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
