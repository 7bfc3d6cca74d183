package transfer

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"

	"github.com/bitrise-io/go-objectupload/network"
	"github.com/bitrise-io/go-objectupload/transfer/chunkuploader"
)

const singleStreamChunkSize = 80 * 1024

func (u *Upload) uploadSingle(ctx context.Context) (*network.File, error) {
	data, err := u.source.ReadAll()
	if err != nil {
		return nil, err
	}
	sum := sha1.Sum(data)

	slot, err := u.client.GetSingleUploadSlot(ctx, u.target.BucketID)
	if err != nil {
		return nil, fmt.Errorf("get upload slot: %w", err)
	}

	body := chunkuploader.NewStream(ctx, data, singleStreamChunkSize, u.options.Limiter, u.tracker)
	file, err := u.client.UploadSingle(ctx, slot, network.SingleRequest{
		FileName:      u.target.FileName,
		ContentLength: int64(len(data)),
		ContentSHA1:   hex.EncodeToString(sum[:]),
		Body:          body,
		Info:          u.target.Info,
		Settings:      u.options.Settings,
	})
	if err != nil {
		return nil, fmt.Errorf("upload file: %w", err)
	}
	return file, nil
}
