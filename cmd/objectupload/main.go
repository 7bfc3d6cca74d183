// Command objectupload uploads local files to a B2 or S3 compatible bucket.
//
// Usage:
//
//	objectupload <path-or-pattern>...
//
// The configuration is read from the environment, see the config package.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"

	"github.com/bitrise-io/go-objectupload/config"
	"github.com/bitrise-io/go-objectupload/network"
	"github.com/bitrise-io/go-objectupload/network/s3compat"
	"github.com/bitrise-io/go-objectupload/uploader"
)

func main() {
	logger := log.NewLogger()
	if err := run(logger, os.Args[1:]); err != nil {
		logger.Errorf("%s", err)
		os.Exit(1)
	}
}

func run(logger log.Logger, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: objectupload <path-or-pattern> [<path-or-pattern>...]")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(ctx, env.NewRepository())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger.EnableDebugLog(cfg.Verbose)
	cfg.Print(logger)
	logger.Println()

	api, err := newAPIClient(ctx, cfg, logger)
	if err != nil {
		return err
	}
	tracked := uploader.NewClient(api, logger)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)
	go func() {
		select {
		case sig := <-signals:
			logger.Warnf("Received %s, aborting...", sig)
			tracked.AbortAll(context.Background())
			cancel()
		case <-ctx.Done():
		}
	}()

	u := uploader.New(tracked, logger, pathutil.NewPathProvider(), pathutil.NewPathModifier())
	results, err := u.Upload(ctx, uploader.Input{
		Paths:            args,
		BucketID:         cfg.Bucket,
		Compress:         cfg.Compress,
		CompressionLevel: cfg.CompressionLevel,
		Options:          cfg.UploadOptions(),
	})
	for _, result := range results {
		logger.Printf("%s: %s (%s)", result.Path, result.File.FileName, result.File.FileID)
	}
	return err
}

func newAPIClient(ctx context.Context, cfg config.Config, logger log.Logger) (network.Client, error) {
	switch cfg.Backend {
	case config.BackendS3:
		client, err := s3compat.NewClient(ctx, cfg.S3Params(), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		return client, nil
	default:
		client := network.NewB2Client(cfg.B2Config(), logger)
		if err := client.Authorize(ctx); err != nil {
			return nil, fmt.Errorf("failed to authorize: %w", err)
		}
		logger.Donef("Authorized account %s", client.AccountID())
		go client.KeepAuthorized(ctx)
		return client, nil
	}
}
