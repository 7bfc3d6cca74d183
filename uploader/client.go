// Package uploader uploads local files through the transfer engine and keeps track of the
// uploads that are still running.
package uploader

import (
	"context"
	"sync"

	"github.com/bitrise-io/go-utils/v2/log"

	"github.com/bitrise-io/go-objectupload/network"
	"github.com/bitrise-io/go-objectupload/transfer"
	"github.com/bitrise-io/go-objectupload/transfer/chunkuploader"
)

// Client creates uploads and tracks them until they stop.
type Client struct {
	api    network.Client
	logger log.Logger

	mu      sync.RWMutex
	uploads []*transfer.Upload
}

// NewClient ...
func NewClient(api network.Client, logger log.Logger) *Client {
	return &Client{
		api:    api,
		logger: logger,
	}
}

// CreateUpload creates a tracked upload. The upload doesn't start automatically and drops out
// of the tracked uploads once it stops.
func (c *Client) CreateUpload(target transfer.Target, source *chunkuploader.Source, options transfer.Options) *transfer.Upload {
	upload := transfer.New(c.api, target, source, options, c.logger)

	c.mu.Lock()
	c.uploads = append(c.uploads, upload)
	c.mu.Unlock()

	id := upload.ID()
	upload.OnFinish(func() {
		c.remove(id)
	})
	return upload
}

// TrackedUploads returns the uploads that haven't stopped yet.
func (c *Client) TrackedUploads() []*transfer.Upload {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*transfer.Upload(nil), c.uploads...)
}

// AbortUpload aborts the tracked upload with the given id and stops tracking it.
// It returns false if no such upload is tracked.
func (c *Client) AbortUpload(ctx context.Context, id uint64) bool {
	upload := c.remove(id)
	if upload == nil {
		return false
	}
	upload.Abort(ctx)
	return true
}

// AbortAll aborts every tracked upload.
func (c *Client) AbortAll(ctx context.Context) {
	for _, upload := range c.TrackedUploads() {
		c.AbortUpload(ctx, upload.ID())
	}
}

func (c *Client) remove(id uint64) *transfer.Upload {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, upload := range c.uploads {
		if upload.ID() == id {
			c.uploads = append(c.uploads[:i], c.uploads[i+1:]...)
			return upload
		}
	}
	return nil
}
