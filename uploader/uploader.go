package uploader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/docker/go-units"

	"github.com/bitrise-io/go-objectupload/network"
	"github.com/bitrise-io/go-objectupload/transfer"
	"github.com/bitrise-io/go-objectupload/transfer/chunkuploader"
)

const defaultProgressInterval = 5 * time.Second

// ErrNoFiles is returned when none of the given paths points to a file.
var ErrNoFiles = errors.New("no files to upload")

// Input describes a batch of files to upload.
type Input struct {
	// Paths are file paths or glob patterns, like `build/**/*.apk`.
	Paths    []string
	BucketID string
	// Prefix is prepended to the name of every uploaded file.
	Prefix string
	Info   map[string]string
	// Compress uploads the zstd compressed copy of every file.
	Compress bool
	// CompressionLevel is the zstd compression level, between 1 and 19.
	CompressionLevel int
	Options          transfer.Options
}

// Result is an uploaded file.
type Result struct {
	Path     string
	File     *network.File
	Duration time.Duration
}

// Uploader uploads batches of local files one after the other.
type Uploader struct {
	client           *Client
	logger           log.Logger
	pathProvider     pathutil.PathProvider
	pathModifier     pathutil.PathModifier
	progressInterval time.Duration
}

// New ...
func New(client *Client, logger log.Logger, pathProvider pathutil.PathProvider, pathModifier pathutil.PathModifier) *Uploader {
	return &Uploader{
		client:           client,
		logger:           logger,
		pathProvider:     pathProvider,
		pathModifier:     pathModifier,
		progressInterval: defaultProgressInterval,
	}
}

// Upload uploads every file of the input and stops at the first failed upload. The results of
// the files uploaded until then are returned along with the error.
func (u *Uploader) Upload(ctx context.Context, input Input) ([]Result, error) {
	u.logger.TDebugf("Upload start")
	defer func() {
		u.logger.TDebugf("Upload done")
	}()

	files, err := u.evaluatePaths(input.Paths)
	if err != nil {
		return nil, fmt.Errorf("failed to parse paths: %w", err)
	}
	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	u.logger.TDebugf("Paths evaluated")

	var tempDir string
	if input.Compress {
		tempDir, err = u.pathProvider.CreateTempDir("objectupload")
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := os.RemoveAll(tempDir); err != nil {
				u.logger.Warnf("Failed to remove temp dir: %s", err)
			}
		}()
	}

	var results []Result
	for _, file := range files {
		result, err := u.uploadFile(ctx, file, input, tempDir)
		if err != nil {
			return results, fmt.Errorf("upload %s: %w", file.path, err)
		}
		results = append(results, result)
	}

	u.logger.Println()
	u.logger.Donef("Uploaded %d files", len(results))
	return results, nil
}

func (u *Uploader) uploadFile(ctx context.Context, file localFile, input Input, tempDir string) (Result, error) {
	startTime := time.Now()
	path := file.path
	name := input.Prefix + filepath.ToSlash(file.name)
	settings := input.Options.Settings

	info, err := os.Stat(path)
	if err != nil {
		return Result{}, err
	}
	modified := info.ModTime().UnixMilli()
	settings.SrcLastModifiedMillis = &modified

	if input.Compress {
		u.logger.Printf("Compressing %s...", file.path)
		path, err = compress(path, tempDir, input.CompressionLevel)
		if err != nil {
			return Result{}, err
		}
		name += compressedExtension
		settings.ContentType = compressedContentType
	} else if settings.ContentType == "" {
		settings.ContentType = detectContentType(path)
	}

	source, err := chunkuploader.OpenFileSource(path)
	if err != nil {
		return Result{}, err
	}
	defer func() {
		if err := source.Close(); err != nil {
			u.logger.Warnf("Failed to close %s: %s", path, err)
		}
	}()

	u.logger.Println()
	u.logger.Infof("Uploading %s (%s)...", name, units.HumanSizeWithPrecision(float64(source.Size()), 3))
	u.logger.Debugf("Content type: %s", settings.ContentType)

	options := input.Options
	options.Settings = settings
	upload := u.client.CreateUpload(transfer.Target{
		BucketID: input.BucketID,
		FileName: name,
		Info:     input.Info,
	}, source, options)

	stop := u.logProgress(upload)
	uploaded, err := upload.Start(ctx)
	stop()
	if err != nil {
		return Result{}, err
	}

	duration := time.Since(startTime).Round(time.Millisecond)
	u.logger.Donef("Uploaded %s in %s", name, duration)
	return Result{Path: file.path, File: uploaded, Duration: duration}, nil
}

// logProgress prints the progress of the upload periodically until the returned func is called.
func (u *Uploader) logProgress(upload *transfer.Upload) func() {
	if u.progressInterval <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()

		ticker := time.NewTicker(u.progressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				u.logger.Printf("%s", upload.Progress())
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
	}
}
