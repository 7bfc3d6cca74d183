package transfer

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/bitrise-io/go-objectupload/network"
	"github.com/bitrise-io/go-objectupload/transfer/chunkuploader"
)

func (u *Upload) uploadMultipart(ctx context.Context, plan chunkuploader.FixedStrategy) (*network.File, error) {
	sessionID, err := u.client.OpenMultipartSession(ctx, network.SessionRequest{
		BucketID: u.target.BucketID,
		FileName: u.target.FileName,
		Info:     u.target.Info,
		Settings: u.options.Settings,
	})
	if err != nil {
		return nil, fmt.Errorf("open multipart session: %w", err)
	}
	if !u.openSession(sessionID) {
		u.cancelSession(ctx, sessionID)
		return nil, ErrAborted
	}

	parts := chunkuploader.Parts(u.source.Size(), plan.PartSize)
	groups := chunkuploader.Groups(parts, plan.PartsPerGroup)
	checksums := chunkuploader.NewChecksumTable(len(parts))
	uploader := chunkuploader.New(u.client, u.tracker, u.options.Limiter, u.options.Parts, u.logger)

	u.logger.Debugf("Uploading %d parts of %d bytes in %d groups (session %s)", len(parts), plan.PartSize, len(groups), sessionID)

	g, groupCtx := errgroup.WithContext(ctx)
	for _, group := range groups {
		job := chunkuploader.GroupJob{
			SessionID: sessionID,
			Parts:     group,
			Source:    u.source,
			Checksums: checksums,
			Settings:  u.options.Settings,
		}
		g.Go(func() error {
			return uploader.UploadGroup(groupCtx, job)
		})
	}
	if err := g.Wait(); err != nil {
		u.abandonSession(ctx, sessionID)
		return nil, err
	}

	// an abort during the last part may leave every group successful
	if u.aborted() {
		return nil, ErrAborted
	}
	if err := ctx.Err(); err != nil {
		u.abandonSession(ctx, sessionID)
		return nil, err
	}

	sums, err := checksums.List()
	if err != nil {
		u.abandonSession(ctx, sessionID)
		return nil, err
	}

	file, err := u.client.FinishMultipartSession(ctx, sessionID, sums)
	if err != nil {
		u.abandonSession(ctx, sessionID)
		return nil, fmt.Errorf("finish multipart session: %w", err)
	}
	u.takeSession(sessionID)

	stats := uploader.Stats()
	u.logger.Debugf("Session %s finished: %d parts, %d busy responses, average part time %s",
		sessionID, stats.FinishedCount(), stats.BusyCount(), stats.Average())
	return file, nil
}

// abandonSession cancels the session of a failed attempt unless an abort already did.
func (u *Upload) abandonSession(ctx context.Context, sessionID string) {
	if u.takeSession(sessionID) {
		u.cancelSession(ctx, sessionID)
	}
}
