// Package s3compat implements network.Client on top of an S3 compatible object store.
package s3compat

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/bitrise-io/go-utils/v2/log"

	"github.com/bitrise-io/go-objectupload/network"
)

// Params configures the connection to the object store.
type Params struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

type session struct {
	bucket string
	key    string

	mu    sync.Mutex
	parts map[int32]types.CompletedPart
}

// Client maps sessions to S3 multipart uploads. A part slot carries the upload id, a
// single upload slot carries the bucket name.
type Client struct {
	api    manager.UploadAPIClient
	logger log.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// NewClient loads the AWS configuration and creates a client.
func NewClient(ctx context.Context, params Params, logger log.Logger) (*Client, error) {
	cfg, err := loadAWSConfig(ctx, params.Region, params.AccessKeyID, params.SecretAccessKey, logger)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	api := s3.NewFromConfig(*cfg, func(o *s3.Options) {
		if params.Endpoint != "" {
			o.BaseEndpoint = aws.String(params.Endpoint)
		}
		o.UsePathStyle = params.UsePathStyle
	})
	return NewClientWithAPI(api, logger), nil
}

// NewClientWithAPI creates a client using api for all calls.
func NewClientWithAPI(api manager.UploadAPIClient, logger log.Logger) *Client {
	return &Client{
		api:      api,
		logger:   logger,
		sessions: map[string]*session{},
	}
}

func (c *Client) OpenMultipartSession(ctx context.Context, request network.SessionRequest) (string, error) {
	input := &s3.CreateMultipartUploadInput{
		Bucket:            aws.String(request.BucketID),
		Key:               aws.String(request.FileName),
		ChecksumAlgorithm: types.ChecksumAlgorithmSha1,
		Metadata:          request.Info,
	}
	applySettings(request.Settings, &input.ContentType, &input.CacheControl, &input.ContentDisposition, &input.ContentEncoding, &input.ContentLanguage)
	if e := request.Settings.Encryption; e != nil && e.Mode == network.EncryptionManaged {
		input.ServerSideEncryption = types.ServerSideEncryptionAes256
	}
	if e := request.Settings.Encryption; e != nil && e.Mode == network.EncryptionCustomerKey {
		input.SSECustomerAlgorithm = aws.String(algorithm(e))
		input.SSECustomerKey = aws.String(e.CustomerKey)
		input.SSECustomerKeyMD5 = aws.String(e.CustomerKeyMD5)
	}

	output, err := c.api.CreateMultipartUpload(ctx, input)
	if err != nil {
		return "", fmt.Errorf("create multipart upload: %w", toRequestError(err))
	}
	uploadID := aws.ToString(output.UploadId)

	c.mu.Lock()
	c.sessions[uploadID] = &session{
		bucket: request.BucketID,
		key:    request.FileName,
		parts:  map[int32]types.CompletedPart{},
	}
	c.mu.Unlock()

	c.logger.Debugf("Created multipart upload %s for %s/%s", uploadID, request.BucketID, request.FileName)
	return uploadID, nil
}

func (c *Client) GetPartUploadSlot(_ context.Context, sessionID string) (network.Slot, error) {
	if _, err := c.session(sessionID); err != nil {
		return network.Slot{}, err
	}
	return network.Slot{URL: sessionID}, nil
}

func (c *Client) UploadPart(ctx context.Context, slot network.Slot, request network.PartRequest) error {
	s, err := c.session(slot.URL)
	if err != nil {
		return err
	}
	checksum, err := base64SHA1(request.ContentSHA1)
	if err != nil {
		return err
	}

	input := &s3.UploadPartInput{
		Bucket:            aws.String(s.bucket),
		Key:               aws.String(s.key),
		UploadId:          aws.String(slot.URL),
		PartNumber:        aws.Int32(int32(request.PartNumber)),
		Body:              request.Body,
		ContentLength:     aws.Int64(request.ContentLength),
		ChecksumAlgorithm: types.ChecksumAlgorithmSha1,
		ChecksumSHA1:      aws.String(checksum),
	}
	if e := request.Settings.Encryption; e != nil && e.Mode == network.EncryptionCustomerKey {
		input.SSECustomerAlgorithm = aws.String(algorithm(e))
		input.SSECustomerKey = aws.String(e.CustomerKey)
		input.SSECustomerKeyMD5 = aws.String(e.CustomerKeyMD5)
	}

	output, err := c.api.UploadPart(ctx, input, disableRetries)
	if err != nil {
		return toRequestError(err)
	}

	s.mu.Lock()
	s.parts[int32(request.PartNumber)] = types.CompletedPart{
		PartNumber:   aws.Int32(int32(request.PartNumber)),
		ETag:         output.ETag,
		ChecksumSHA1: aws.String(checksum),
	}
	s.mu.Unlock()
	return nil
}

func (c *Client) FinishMultipartSession(ctx context.Context, sessionID string, partSHA1s []string) (*network.File, error) {
	s, err := c.session(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	parts := make([]types.CompletedPart, 0, len(s.parts))
	for _, p := range s.parts {
		parts = append(parts, p)
	}
	s.mu.Unlock()
	sort.Slice(parts, func(i, j int) bool {
		return aws.ToInt32(parts[i].PartNumber) < aws.ToInt32(parts[j].PartNumber)
	})

	if len(parts) != len(partSHA1s) {
		return nil, fmt.Errorf("session %s has %d uploaded parts, %d checksums provided", sessionID, len(parts), len(partSHA1s))
	}
	for i, sha := range partSHA1s {
		checksum, err := base64SHA1(sha)
		if err != nil {
			return nil, err
		}
		if aws.ToString(parts[i].ChecksumSHA1) != checksum {
			return nil, fmt.Errorf("checksum mismatch for part %d", aws.ToInt32(parts[i].PartNumber))
		}
	}

	output, err := c.api.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(s.key),
		UploadId:        aws.String(sessionID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
	})
	if err != nil {
		return nil, fmt.Errorf("complete multipart upload: %w", toRequestError(err))
	}
	c.forget(sessionID)

	return &network.File{
		Action:      "upload",
		BucketID:    s.bucket,
		FileID:      fileID(output.VersionId, output.ETag),
		FileName:    s.key,
		ContentSHA1: aws.ToString(output.ChecksumSHA1),
	}, nil
}

func (c *Client) CancelMultipartSession(ctx context.Context, sessionID string) error {
	s, err := c.session(sessionID)
	if err != nil {
		return err
	}

	_, err = c.api.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(s.key),
		UploadId: aws.String(sessionID),
	})
	if err != nil {
		return fmt.Errorf("abort multipart upload: %w", toRequestError(err))
	}
	c.forget(sessionID)
	return nil
}

func (c *Client) GetSingleUploadSlot(_ context.Context, bucketID string) (network.Slot, error) {
	if bucketID == "" {
		return network.Slot{}, errors.New("bucket must not be empty")
	}
	return network.Slot{URL: bucketID}, nil
}

func (c *Client) UploadSingle(ctx context.Context, slot network.Slot, request network.SingleRequest) (*network.File, error) {
	checksum, err := base64SHA1(request.ContentSHA1)
	if err != nil {
		return nil, err
	}

	input := &s3.PutObjectInput{
		Bucket:            aws.String(slot.URL),
		Key:               aws.String(request.FileName),
		Body:              request.Body,
		ContentLength:     aws.Int64(request.ContentLength),
		ChecksumAlgorithm: types.ChecksumAlgorithmSha1,
		ChecksumSHA1:      aws.String(checksum),
		Metadata:          request.Info,
	}
	applySettings(request.Settings, &input.ContentType, &input.CacheControl, &input.ContentDisposition, &input.ContentEncoding, &input.ContentLanguage)
	if e := request.Settings.Encryption; e != nil && e.Mode == network.EncryptionManaged {
		input.ServerSideEncryption = types.ServerSideEncryptionAes256
	}
	if e := request.Settings.Encryption; e != nil && e.Mode == network.EncryptionCustomerKey {
		input.SSECustomerAlgorithm = aws.String(algorithm(e))
		input.SSECustomerKey = aws.String(e.CustomerKey)
		input.SSECustomerKeyMD5 = aws.String(e.CustomerKeyMD5)
	}

	output, err := c.api.PutObject(ctx, input, disableRetries)
	if err != nil {
		return nil, toRequestError(err)
	}

	return &network.File{
		Action:        "upload",
		BucketID:      slot.URL,
		FileID:        fileID(output.VersionId, output.ETag),
		FileName:      request.FileName,
		ContentLength: request.ContentLength,
		ContentSHA1:   request.ContentSHA1,
		ContentType:   aws.ToString(input.ContentType),
		FileInfo:      request.Info,
	}, nil
}

func (c *Client) session(sessionID string) (*session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("unknown multipart session: %s", sessionID)
	}
	return s, nil
}

func (c *Client) forget(sessionID string) {
	c.mu.Lock()
	delete(c.sessions, sessionID)
	c.mu.Unlock()
}

// disableRetries leaves retrying to the caller, which tells busy responses apart and
// rewinds the body itself.
func disableRetries(o *s3.Options) {
	o.Retryer = aws.NopRetryer{}
}

// toRequestError maps service errors to network.RequestError so throttling responses
// are recognized by network.IsBusy.
func toRequestError(err error) error {
	var responseErr *smithyhttp.ResponseError
	status := 0
	if errors.As(err, &responseErr) {
		status = responseErr.HTTPStatusCode()
	}

	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		if status == 0 {
			return err
		}
		return &network.RequestError{Status: status, Message: err.Error()}
	}

	switch apiErr.ErrorCode() {
	case "SlowDown", "ServiceUnavailable":
		status = http.StatusServiceUnavailable
	}
	if status == 0 {
		return err
	}
	return &network.RequestError{Status: status, Code: apiErr.ErrorCode(), Message: apiErr.ErrorMessage()}
}

func base64SHA1(hexSHA1 string) (string, error) {
	raw, err := hex.DecodeString(hexSHA1)
	if err != nil {
		return "", fmt.Errorf("invalid sha1 %q: %w", hexSHA1, err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func fileID(versionID, etag *string) string {
	if v := aws.ToString(versionID); v != "" {
		return v
	}
	return aws.ToString(etag)
}

func algorithm(e *network.Encryption) string {
	if e.Algorithm == "" {
		return "AES256"
	}
	return e.Algorithm
}

func applySettings(settings network.FileSettings, contentType, cacheControl, contentDisposition, contentEncoding, contentLanguage **string) {
	if settings.ContentType != "" && settings.ContentType != network.DefaultContentType {
		*contentType = aws.String(settings.ContentType)
	}
	if settings.CacheControl != "" {
		*cacheControl = aws.String(settings.CacheControl)
	}
	if settings.ContentDisposition != "" {
		*contentDisposition = aws.String(settings.ContentDisposition)
	}
	if settings.ContentEncoding != "" {
		*contentEncoding = aws.String(settings.ContentEncoding)
	}
	if settings.ContentLanguage != "" {
		*contentLanguage = aws.String(settings.ContentLanguage)
	}
}

func loadAWSConfig(
	ctx context.Context,
	region string,
	accessKeyID string,
	secretKey string,
	logger log.Logger,
) (*aws.Config, error) {
	if region == "" {
		return nil, fmt.Errorf("region must not be empty")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}

	if accessKeyID != "" && secretKey != "" {
		logger.Debugf("aws credentials provided, using them...")
		opts = append(opts,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretKey, "")))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config, %v", err)
	}

	return &cfg, nil
}
