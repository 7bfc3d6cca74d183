// Package config reads the upload configuration from the environment.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
	"github.com/sethvargo/go-envconfig"

	"github.com/bitrise-io/go-objectupload/network"
	"github.com/bitrise-io/go-objectupload/network/s3compat"
	"github.com/bitrise-io/go-objectupload/throttle"
	"github.com/bitrise-io/go-objectupload/transfer"
	"github.com/bitrise-io/go-objectupload/transfer/chunkuploader"
)

// Backend selects the storage API.
type Backend string

const (
	BackendB2 Backend = "b2"
	BackendS3 Backend = "s3"
)

// Secret is a string that is never printed.
type Secret string

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "*****"
}

// ByteSize is a size in bytes that can be given in a human readable form, like 100MiB.
type ByteSize int64

// EnvDecode parses binary (1024 based) sizes.
func (s *ByteSize) EnvDecode(val string) error {
	val = strings.TrimSpace(val)
	if val == "" {
		*s = 0
		return nil
	}
	n, err := units.RAMInBytes(val)
	if err != nil {
		return fmt.Errorf("parse size %q: %w", val, err)
	}
	*s = ByteSize(n)
	return nil
}

func (s ByteSize) String() string {
	return units.BytesSize(float64(s))
}

// Config is the configuration of the upload CLI.
type Config struct {
	Backend Backend `env:"OBJECTUPLOAD_BACKEND, default=b2"`
	Bucket  string  `env:"BUCKET"`

	B2KeyID          string `env:"B2_KEY_ID"`
	B2ApplicationKey Secret `env:"B2_APPLICATION_KEY"`
	B2APIURL         string `env:"B2_API_URL, default=https://api.backblazeb2.com"`

	S3Region          string `env:"S3_REGION, default=us-east-1"`
	S3Endpoint        string `env:"S3_ENDPOINT"`
	S3AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey Secret `env:"S3_SECRET_ACCESS_KEY"`
	S3PathStyle       bool   `env:"S3_PATH_STYLE"`

	LargeFileCutoff ByteSize `env:"LARGE_FILE_CUTOFF, default=200MiB"`
	// PartSize and PartsPerGroup are either both set or both left empty for adaptive chunking.
	PartSize      ByteSize      `env:"PART_SIZE"`
	PartsPerGroup int           `env:"PARTS_PER_GROUP"`
	RetryCount    int           `env:"RETRY_COUNT"`
	RetryWait     time.Duration `env:"RETRY_WAIT, default=1s"`
	// SpeedLimit is the maximum upload speed in bytes per second, 0 means unlimited.
	SpeedLimit ByteSize `env:"SPEED_LIMIT"`

	Compress         bool `env:"COMPRESS"`
	CompressionLevel int  `env:"COMPRESSION_LEVEL, default=3"`
	Verbose          bool `env:"VERBOSE"`
}

// Load reads the configuration from envRepo and validates it.
func Load(ctx context.Context, envRepo env.Repository) (Config, error) {
	var c Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &c,
		Lookuper: repositoryLookuper{envRepo: envRepo},
	}); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate ...
func (c Config) Validate() error {
	if strings.TrimSpace(c.Bucket) == "" {
		return fmt.Errorf("BUCKET should not be empty")
	}

	switch c.Backend {
	case BackendB2:
		if c.B2KeyID == "" || c.B2ApplicationKey == "" {
			return fmt.Errorf("the secrets 'B2_KEY_ID' and 'B2_APPLICATION_KEY' are required for the %s backend", c.Backend)
		}
	case BackendS3:
		if c.S3AccessKeyID == "" || c.S3SecretAccessKey == "" {
			return fmt.Errorf("the secrets 'S3_ACCESS_KEY_ID' and 'S3_SECRET_ACCESS_KEY' are required for the %s backend", c.Backend)
		}
	default:
		return fmt.Errorf("unknown backend %q, expected %s or %s", c.Backend, BackendB2, BackendS3)
	}

	if (c.PartSize == 0) != (c.PartsPerGroup == 0) {
		return fmt.Errorf("PART_SIZE and PARTS_PER_GROUP should be set together")
	}
	if c.RetryCount < 0 {
		return fmt.Errorf("RETRY_COUNT should not be negative")
	}
	if c.SpeedLimit < 0 {
		return fmt.Errorf("SPEED_LIMIT should not be negative")
	}
	if c.CompressionLevel < 1 || c.CompressionLevel > 19 {
		return fmt.Errorf("compression level should be between 1 and 19")
	}
	return nil
}

// UploadOptions maps the configuration to the options of one upload.
// The returned limiter is shared by every upload created from the same options.
func (c Config) UploadOptions() transfer.Options {
	opts := transfer.DefaultOptions()
	opts.LargeFileCutoff = int64(c.LargeFileCutoff)

	if c.PartSize > 0 {
		opts.Chunking = chunkuploader.FixedStrategy{
			PartSize:      int64(c.PartSize),
			PartsPerGroup: c.PartsPerGroup,
		}
	}
	if c.RetryCount > 0 {
		opts.Retry = transfer.ConstantRetry{Count: c.RetryCount, Delay: c.RetryWait}
	}
	if c.SpeedLimit > 0 {
		opts.Limiter = throttle.PerSecond(int64(c.SpeedLimit))
	}
	return opts
}

// B2Config returns the credentials of the B2 backend.
func (c Config) B2Config() network.B2Config {
	return network.B2Config{
		KeyID:          c.B2KeyID,
		ApplicationKey: string(c.B2ApplicationKey),
		AuthURL:        c.B2APIURL,
	}
}

// S3Params returns the connection parameters of the S3 compatible backend.
func (c Config) S3Params() s3compat.Params {
	return s3compat.Params{
		Region:          c.S3Region,
		Endpoint:        c.S3Endpoint,
		AccessKeyID:     c.S3AccessKeyID,
		SecretAccessKey: string(c.S3SecretAccessKey),
		UsePathStyle:    c.S3PathStyle,
	}
}

// Print logs the configuration with secrets redacted.
func (c Config) Print(logger log.Logger) {
	logger.Infof("Configuration:")
	logger.Printf("- Backend: %s", c.Backend)
	logger.Printf("- Bucket: %s", c.Bucket)
	switch c.Backend {
	case BackendB2:
		logger.Printf("- B2 API URL: %s", c.B2APIURL)
		logger.Printf("- B2 key ID: %s", c.B2KeyID)
		logger.Printf("- B2 application key: %s", c.B2ApplicationKey)
	case BackendS3:
		logger.Printf("- S3 region: %s", c.S3Region)
		logger.Printf("- S3 endpoint: %s", c.S3Endpoint)
		logger.Printf("- S3 access key ID: %s", c.S3AccessKeyID)
		logger.Printf("- S3 secret access key: %s", c.S3SecretAccessKey)
	}
	logger.Printf("- Large file cutoff: %s", c.LargeFileCutoff)
	if c.PartSize > 0 {
		logger.Printf("- Part size: %s, %d parts per group", c.PartSize, c.PartsPerGroup)
	}
	if c.SpeedLimit > 0 {
		logger.Printf("- Speed limit: %s/s", c.SpeedLimit)
	}
	logger.Printf("- Compress: %t", c.Compress)
}

type repositoryLookuper struct {
	envRepo env.Repository
}

// Lookup treats empty variables as unset, so defaults apply to them.
func (l repositoryLookuper) Lookup(key string) (string, bool) {
	val := l.envRepo.Get(key)
	return val, val != ""
}
