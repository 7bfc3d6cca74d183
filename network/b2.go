package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/bitrise-io/go-utils/retry"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/hashicorp/go-retryablehttp"
)

// DefaultAuthURL is the account authorization endpoint of Backblaze B2.
const DefaultAuthURL = "https://api.backblazeb2.com"

const (
	// authorizations are valid for 24 hours, refresh a bit earlier
	reauthorizeInterval  = 85800 * time.Second
	authRetryCount       = 3
	authRetryWait        = 3 * time.Second
	writeFilesCapability = "writeFiles"
)

// ClientStatus is the authorization state of a B2Client.
type ClientStatus int

const (
	// ClientUnauthorized is the state before the first successful authorization.
	ClientUnauthorized ClientStatus = iota
	// ClientAuthorized means the client holds a valid authorization token.
	ClientAuthorized
	// ClientKeyExpired means the application key expired and the client can't be used anymore.
	ClientKeyExpired
)

func (s ClientStatus) String() string {
	switch s {
	case ClientAuthorized:
		return "authorized"
	case ClientKeyExpired:
		return "key expired"
	default:
		return "unauthorized"
	}
}

// B2Config holds the credentials of a B2Client.
type B2Config struct {
	KeyID          string
	ApplicationKey string
	// AuthURL defaults to DefaultAuthURL.
	AuthURL string
}

// B2Client implements Client against the Backblaze B2 native API.
type B2Client struct {
	config       B2Config
	apiClient    *retryablehttp.Client
	uploadClient *http.Client
	logger       log.Logger

	authRetryWait time.Duration
	now           func() time.Time

	mu     sync.RWMutex
	auth   authorizeResponse
	status ClientStatus
}

// NewB2Client creates a client. Call Authorize before using it.
func NewB2Client(config B2Config, logger log.Logger) *B2Client {
	if config.AuthURL == "" {
		config.AuthURL = DefaultAuthURL
	}
	return &B2Client{
		config:        config,
		apiClient:     retryhttp.NewClient(logger),
		uploadClient:  DefaultHTTPClient(),
		logger:        logger,
		authRetryWait: authRetryWait,
		now:           time.Now,
	}
}

// Status returns the authorization state of the client.
func (c *B2Client) Status() ClientStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// AccountID is the account the client is authorized for.
func (c *B2Client) AccountID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.auth.AccountID
}

// Authorize obtains a new authorization token, retrying transient failures.
// Invalid credentials and missing upload capability are not retried.
func (c *B2Client) Authorize(ctx context.Context) error {
	if c.Status() == ClientKeyExpired {
		return ErrKeyExpired
	}

	var response authorizeResponse
	err := retry.Times(authRetryCount).Wait(c.authRetryWait).TryWithAbort(func(attempt uint) (error, bool) {
		if attempt > 0 {
			c.logger.Debugf("Retrying authorization... (attempt %d)", attempt+1)
		}

		r, err := c.authorize(ctx)
		if err != nil {
			var requestErr *RequestError
			if errors.As(err, &requestErr) && requestErr.Status == http.StatusUnauthorized {
				return err, true
			}
			if ctx.Err() != nil {
				return err, true
			}
			c.logger.Debugf("Authorization failed: %s", err)
			return err, false
		}
		response = r
		return nil, false
	})
	if err != nil {
		return fmt.Errorf("authorize account: %w", err)
	}

	if !hasCapability(response.APIInfo.StorageAPI.Capabilities, writeFilesCapability) {
		return fmt.Errorf("%w: %s", ErrMissingCapability, writeFilesCapability)
	}

	c.mu.Lock()
	c.auth = response
	c.status = ClientAuthorized
	c.mu.Unlock()

	c.logger.Debugf("Authorized account %s, API URL: %s", response.AccountID, response.APIInfo.StorageAPI.APIURL)
	return nil
}

func (c *B2Client) authorize(ctx context.Context) (authorizeResponse, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.config.AuthURL+apiVersionPath+"/b2_authorize_account", nil)
	if err != nil {
		return authorizeResponse{}, err
	}
	req.SetBasicAuth(c.config.KeyID, c.config.ApplicationKey)

	resp, err := c.apiClient.Do(req)
	if err != nil {
		return authorizeResponse{}, err
	}
	defer func(body io.ReadCloser) {
		err := body.Close()
		if err != nil {
			c.logger.Printf(err.Error())
		}
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return authorizeResponse{}, unwrapError(resp)
	}

	var response authorizeResponse
	if err := jsonDecode(resp.Body, &response); err != nil {
		return authorizeResponse{}, err
	}
	return response, nil
}

// KeepAuthorized refreshes the authorization token before it expires until ctx is done.
// If the application key expires first, the client moves to ClientKeyExpired and the
// loop exits.
func (c *B2Client) KeepAuthorized(ctx context.Context) {
	for {
		wait := reauthorizeInterval
		keyExpires := false

		c.mu.RLock()
		expiration := c.auth.ApplicationKeyExpirationTimestamp
		c.mu.RUnlock()
		if expiration != nil {
			untilExpiry := time.UnixMilli(*expiration).Sub(c.now())
			if untilExpiry < wait {
				wait = max(untilExpiry, 0)
				keyExpires = true
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if keyExpires {
			c.logger.Warnf("Application key expired")
			c.mu.Lock()
			c.status = ClientKeyExpired
			c.mu.Unlock()
			return
		}

		if err := c.Authorize(ctx); err != nil {
			c.logger.Warnf("Failed to refresh authorization: %s", err)
		}
	}
}

func (c *B2Client) OpenMultipartSession(ctx context.Context, request SessionRequest) (string, error) {
	body := startLargeFileRequest{
		BucketID:              request.BucketID,
		FileName:              request.FileName,
		ContentType:           request.Settings.contentType(),
		FileInfo:              fileInfo(request.Info, request.Settings),
		CustomUploadTimestamp: request.Settings.CustomUploadTimestamp,
		ServerSideEncryption:  sessionEncryption(request.Settings.Encryption),
	}

	var response startLargeFileResponse
	if err := c.postJSON(ctx, "b2_start_large_file", body, &response); err != nil {
		return "", fmt.Errorf("start large file: %w", err)
	}
	return response.FileID, nil
}

func (c *B2Client) GetPartUploadSlot(ctx context.Context, sessionID string) (Slot, error) {
	var response uploadURLResponse
	if err := c.getJSON(ctx, "b2_get_upload_part_url", url.Values{"fileId": {sessionID}}, &response); err != nil {
		return Slot{}, fmt.Errorf("get upload part url: %w", err)
	}
	return Slot{URL: response.UploadURL, Token: response.AuthorizationToken}, nil
}

func (c *B2Client) UploadPart(ctx context.Context, slot Slot, request PartRequest) error {
	req, err := newUploadRequest(ctx, slot, request.Body, request.ContentLength)
	if err != nil {
		return err
	}
	req.Header.Set("X-Bz-Part-Number", fmt.Sprintf("%d", request.PartNumber))
	req.Header.Set("X-Bz-Content-Sha1", request.ContentSHA1)
	setEncryptionHeaders(req.Header, request.Settings.Encryption, false)

	resp, err := c.uploadClient.Do(req)
	if err != nil {
		return err
	}
	defer func(body io.ReadCloser) {
		err := body.Close()
		if err != nil {
			c.logger.Printf(err.Error())
		}
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return unwrapError(resp)
	}
	return nil
}

func (c *B2Client) FinishMultipartSession(ctx context.Context, sessionID string, partSHA1s []string) (*File, error) {
	var file File
	body := finishLargeFileRequest{FileID: sessionID, PartSha1Array: partSHA1s}
	if err := c.postJSON(ctx, "b2_finish_large_file", body, &file); err != nil {
		return nil, fmt.Errorf("finish large file: %w", err)
	}
	return &file, nil
}

func (c *B2Client) CancelMultipartSession(ctx context.Context, sessionID string) error {
	if err := c.postJSON(ctx, "b2_cancel_large_file", cancelLargeFileRequest{FileID: sessionID}, nil); err != nil {
		return fmt.Errorf("cancel large file: %w", err)
	}
	return nil
}

func (c *B2Client) GetSingleUploadSlot(ctx context.Context, bucketID string) (Slot, error) {
	var response uploadURLResponse
	if err := c.getJSON(ctx, "b2_get_upload_url", url.Values{"bucketId": {bucketID}}, &response); err != nil {
		return Slot{}, fmt.Errorf("get upload url: %w", err)
	}
	return Slot{URL: response.UploadURL, Token: response.AuthorizationToken}, nil
}

func (c *B2Client) UploadSingle(ctx context.Context, slot Slot, request SingleRequest) (*File, error) {
	req, err := newUploadRequest(ctx, slot, request.Body, request.ContentLength)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Bz-File-Name", encodeFileName(request.FileName))
	req.Header.Set("Content-Type", request.Settings.contentType())
	req.Header.Set("X-Bz-Content-Sha1", request.ContentSHA1)
	setFileInfoHeaders(req.Header, request.Info, request.Settings)
	setEncryptionHeaders(req.Header, request.Settings.Encryption, true)

	resp, err := c.uploadClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func(body io.ReadCloser) {
		err := body.Close()
		if err != nil {
			c.logger.Printf(err.Error())
		}
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, unwrapError(resp)
	}

	var file File
	if err := jsonDecode(resp.Body, &file); err != nil {
		return nil, err
	}
	return &file, nil
}

func hasCapability(capabilities []string, capability string) bool {
	for _, c := range capabilities {
		if c == capability {
			return true
		}
	}
	return false
}
