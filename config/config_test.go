package config

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bitrise-io/go-utils/v2/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bitrise-io/go-objectupload/transfer"
	"github.com/bitrise-io/go-objectupload/transfer/chunkuploader"
)

type fakeEnvRepo struct {
	envVars map[string]string
}

func (repo fakeEnvRepo) Get(key string) string {
	return repo.envVars[key]
}

func (repo fakeEnvRepo) Set(key, value string) error {
	repo.envVars[key] = value
	return nil
}

func (repo fakeEnvRepo) Unset(key string) error {
	delete(repo.envVars, key)
	return nil
}

func (repo fakeEnvRepo) List() []string {
	var envs []string
	for k, v := range repo.envVars {
		envs = append(envs, fmt.Sprintf("%s=%s", k, v))
	}
	return envs
}

func b2Env(extra map[string]string) fakeEnvRepo {
	envVars := map[string]string{
		"BUCKET":             "bucket-id",
		"B2_KEY_ID":          "key-id",
		"B2_APPLICATION_KEY": "app-key",
	}
	for k, v := range extra {
		envVars[k] = v
	}
	return fakeEnvRepo{envVars: envVars}
}

func TestLoad_Defaults(t *testing.T) {
	c, err := Load(context.Background(), b2Env(nil))
	require.NoError(t, err)

	assert.Equal(t, BackendB2, c.Backend)
	assert.Equal(t, "https://api.backblazeb2.com", c.B2APIURL)
	assert.Equal(t, ByteSize(200*1024*1024), c.LargeFileCutoff)
	assert.Equal(t, time.Second, c.RetryWait)
	assert.Equal(t, 3, c.CompressionLevel)
	assert.False(t, c.Compress)

	opts := c.UploadOptions()
	assert.Equal(t, transfer.DefaultLargeFileCutoff, opts.LargeFileCutoff)
	assert.Nil(t, opts.Limiter)
	assert.Equal(t, 5, opts.Retry.Attempts())
	require.NoError(t, opts.Validate())

	b2 := c.B2Config()
	assert.Equal(t, "key-id", b2.KeyID)
	assert.Equal(t, "app-key", b2.ApplicationKey)
}

func TestLoad_UploadOptions(t *testing.T) {
	c, err := Load(context.Background(), b2Env(map[string]string{
		"LARGE_FILE_CUTOFF": "50MiB",
		"PART_SIZE":         "10MB",
		"PARTS_PER_GROUP":   "4",
		"RETRY_COUNT":       "2",
		"RETRY_WAIT":        "250ms",
		"SPEED_LIMIT":       "1MiB",
	}))
	require.NoError(t, err)

	opts := c.UploadOptions()
	require.NoError(t, opts.Validate())
	assert.Equal(t, int64(50*1024*1024), opts.LargeFileCutoff)
	assert.Equal(t, chunkuploader.FixedStrategy{PartSize: 10 * 1024 * 1024, PartsPerGroup: 4}, opts.Chunking)
	assert.Equal(t, transfer.ConstantRetry{Count: 2, Delay: 250 * time.Millisecond}, opts.Retry)
	require.NotNil(t, opts.Limiter)
	assert.Equal(t, int64(1024*1024), opts.Limiter.Max())
	assert.Equal(t, time.Second, opts.Limiter.Period())
}

func TestLoad_S3(t *testing.T) {
	c, err := Load(context.Background(), fakeEnvRepo{envVars: map[string]string{
		"OBJECTUPLOAD_BACKEND": "s3",
		"BUCKET":               "my-bucket",
		"S3_ENDPOINT":          "http://localhost:9000",
		"S3_ACCESS_KEY_ID":     "access",
		"S3_SECRET_ACCESS_KEY": "secret",
		"S3_PATH_STYLE":        "true",
	}})
	require.NoError(t, err)

	params := c.S3Params()
	assert.Equal(t, "us-east-1", params.Region)
	assert.Equal(t, "http://localhost:9000", params.Endpoint)
	assert.Equal(t, "access", params.AccessKeyID)
	assert.Equal(t, "secret", params.SecretAccessKey)
	assert.True(t, params.UsePathStyle)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     fakeEnvRepo
		wantErr string
	}{
		{
			name:    "missing bucket",
			env:     fakeEnvRepo{envVars: map[string]string{"B2_KEY_ID": "id", "B2_APPLICATION_KEY": "key"}},
			wantErr: "BUCKET should not be empty",
		},
		{
			name:    "missing b2 credentials",
			env:     fakeEnvRepo{envVars: map[string]string{"BUCKET": "bucket"}},
			wantErr: "'B2_KEY_ID' and 'B2_APPLICATION_KEY'",
		},
		{
			name:    "missing s3 credentials",
			env:     fakeEnvRepo{envVars: map[string]string{"BUCKET": "bucket", "OBJECTUPLOAD_BACKEND": "s3"}},
			wantErr: "'S3_ACCESS_KEY_ID' and 'S3_SECRET_ACCESS_KEY'",
		},
		{
			name:    "unknown backend",
			env:     fakeEnvRepo{envVars: map[string]string{"BUCKET": "bucket", "OBJECTUPLOAD_BACKEND": "ftp"}},
			wantErr: `unknown backend "ftp"`,
		},
		{
			name:    "part size without group size",
			env:     b2Env(map[string]string{"PART_SIZE": "5MiB"}),
			wantErr: "PART_SIZE and PARTS_PER_GROUP should be set together",
		},
		{
			name:    "invalid size",
			env:     b2Env(map[string]string{"LARGE_FILE_CUTOFF": "huge"}),
			wantErr: `parse size "huge"`,
		},
		{
			name:    "invalid compression level",
			env:     b2Env(map[string]string{"COMPRESSION_LEVEL": "20"}),
			wantErr: "compression level should be between 1 and 19",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(context.Background(), tt.env)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSecret(t *testing.T) {
	assert.Equal(t, "*****", Secret("app-key").String())
	assert.Equal(t, "", Secret("").String())
	assert.Equal(t, "token: *****", fmt.Sprintf("token: %s", Secret("app-key")))
}

func TestByteSize(t *testing.T) {
	tests := []struct {
		value string
		want  ByteSize
	}{
		{value: "1024", want: 1024},
		{value: "5MiB", want: 5 * 1024 * 1024},
		{value: "5mb", want: 5 * 1024 * 1024},
		{value: "2G", want: 2 * 1024 * 1024 * 1024},
		{value: " ", want: 0},
	}
	for _, tt := range tests {
		var s ByteSize
		require.NoError(t, s.EnvDecode(tt.value), tt.value)
		assert.Equal(t, tt.want, s, tt.value)
	}
}

func TestPrint_RedactsSecrets(t *testing.T) {
	mockLogger := new(mocks.Logger)
	mockLogger.On("Infof", mock.Anything).Return()
	mockLogger.On("Printf", mock.Anything, mock.Anything).Return()

	c, err := Load(context.Background(), b2Env(nil))
	require.NoError(t, err)
	c.Print(mockLogger)

	mockLogger.AssertCalled(t, "Printf", "- Bucket: %s", "bucket-id")
	for _, call := range mockLogger.Calls {
		format, ok := call.Arguments.Get(0).(string)
		require.True(t, ok)
		line := fmt.Sprintf(format, call.Arguments[1:]...)
		assert.False(t, strings.Contains(line, "app-key"), line)
	}
}
