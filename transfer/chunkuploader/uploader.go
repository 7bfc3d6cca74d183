package chunkuploader

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"

	"github.com/bitrise-io/go-objectupload/network"
	"github.com/bitrise-io/go-objectupload/progress"
	"github.com/bitrise-io/go-objectupload/throttle"
)

// GroupJob is a run of contiguous parts uploaded one after the other through one slot.
type GroupJob struct {
	SessionID string
	Parts     []PartSpec
	Source    *Source
	Checksums *ChecksumTable
	Settings  network.FileSettings
}

// Uploader uploads part groups of multipart sessions.
type Uploader struct {
	client  network.Client
	config  Config
	limiter *throttle.Throttle
	tracker *progress.Tracker
	logger  log.Logger
	stats   *Stats
}

// New creates a new Uploader. limiter may be nil.
func New(client network.Client, tracker *progress.Tracker, limiter *throttle.Throttle, config Config, logger log.Logger) *Uploader {
	if tracker == nil {
		tracker = progress.NewTracker(0)
	}
	return &Uploader{
		client:  client,
		config:  config.withDefaults(),
		limiter: limiter,
		tracker: tracker,
		logger:  logger,
		stats:   NewStats(),
	}
}

// Stats returns the upload statistics.
func (u *Uploader) Stats() *Stats {
	return u.stats
}

// UploadGroup uploads the parts of job in ascending order. A part rejected as busy is
// sent again through a new slot until it is accepted; any other failure stops the group.
func (u *Uploader) UploadGroup(ctx context.Context, job GroupJob) error {
	if len(job.Parts) == 0 {
		return nil
	}

	slot, err := u.client.GetPartUploadSlot(ctx, job.SessionID)
	if err != nil {
		return fmt.Errorf("get part upload slot: %w", err)
	}

	for _, part := range job.Parts {
		if err := ctx.Err(); err != nil {
			return err
		}

		slot, err = u.uploadPart(ctx, job, slot, part)
		if err != nil {
			return err
		}
	}
	return nil
}

func (u *Uploader) uploadPart(ctx context.Context, job GroupJob, slot network.Slot, part PartSpec) (network.Slot, error) {
	data, err := job.Source.ReadRange(part.Start, part.End)
	if err != nil {
		return slot, err
	}

	sum := sha1.Sum(data)
	checksum := hex.EncodeToString(sum[:])
	if err := job.Checksums.Set(part.Number-1, checksum); err != nil {
		return slot, err
	}

	start := time.Now()
	for attempt := 1; ; attempt++ {
		body := NewStream(ctx, data, u.config.StreamChunkSize, u.limiter, u.tracker)
		err := u.client.UploadPart(ctx, slot, network.PartRequest{
			PartNumber:    part.Number,
			ContentLength: part.Len(),
			ContentSHA1:   checksum,
			Body:          body,
			Settings:      job.Settings,
		})
		if err == nil {
			break
		}
		if !network.IsBusy(err) {
			return slot, fmt.Errorf("upload part %d: %w", part.Number, err)
		}

		u.stats.AddBusy()
		u.tracker.SubDoneBytes(body.Sent())
		u.logger.Warnf("Part %d rejected as busy (attempt %d), requesting a new upload slot", part.Number, attempt)

		slot, err = u.client.GetPartUploadSlot(ctx, job.SessionID)
		if err != nil {
			return slot, fmt.Errorf("get part upload slot: %w", err)
		}
		if err := sleep(ctx, u.config.BusyPause); err != nil {
			return slot, err
		}
	}

	took := time.Since(start)
	u.stats.Update(took, part.Len())
	u.logger.Debugf("Part %d uploaded in %v [finished=%d] [avg=%v]",
		part.Number, took.Round(time.Millisecond), u.stats.FinishedCount(), u.stats.Average().Round(time.Millisecond))

	return slot, nil
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
