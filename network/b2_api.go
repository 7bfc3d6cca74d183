package network

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
)

const apiVersionPath = "/b2api/v3"

type authorizeResponse struct {
	AccountID                         string  `json:"accountId"`
	AuthorizationToken                string  `json:"authorizationToken"`
	APIInfo                           apiInfo `json:"apiInfo"`
	ApplicationKeyExpirationTimestamp *int64  `json:"applicationKeyExpirationTimestamp"`
}

type apiInfo struct {
	StorageAPI storageAPIInfo `json:"storageApi"`
}

type storageAPIInfo struct {
	APIURL                  string   `json:"apiUrl"`
	DownloadURL             string   `json:"downloadUrl"`
	RecommendedPartSize     int64    `json:"recommendedPartSize"`
	AbsoluteMinimumPartSize int64    `json:"absoluteMinimumPartSize"`
	Capabilities            []string `json:"capabilities"`
	BucketID                string   `json:"bucketId,omitempty"`
	BucketName              string   `json:"bucketName,omitempty"`
}

type serverSideEncryption struct {
	Mode      string `json:"mode"`
	Algorithm string `json:"algorithm"`
}

type startLargeFileRequest struct {
	BucketID              string                `json:"bucketId"`
	FileName              string                `json:"fileName"`
	ContentType           string                `json:"contentType"`
	FileInfo              map[string]string     `json:"fileInfo,omitempty"`
	CustomUploadTimestamp *int64                `json:"customUploadTimestamp,omitempty"`
	ServerSideEncryption  *serverSideEncryption `json:"serverSideEncryption,omitempty"`
}

type startLargeFileResponse struct {
	FileID string `json:"fileId"`
}

type uploadURLResponse struct {
	UploadURL          string `json:"uploadUrl"`
	AuthorizationToken string `json:"authorizationToken"`
}

type finishLargeFileRequest struct {
	FileID        string   `json:"fileId"`
	PartSha1Array []string `json:"partSha1Array"`
}

type cancelLargeFileRequest struct {
	FileID string `json:"fileId"`
}

func (c *B2Client) apiURL(operation string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.auth.APIInfo.StorageAPI.APIURL + apiVersionPath + "/" + operation
}

func (c *B2Client) token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.auth.AuthorizationToken
}

func (c *B2Client) postJSON(ctx context.Context, operation string, requestBody, response any) error {
	body, err := json.Marshal(requestBody)
	if err != nil {
		return err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.apiURL(operation), body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doJSON(req, response)
}

func (c *B2Client) getJSON(ctx context.Context, operation string, query url.Values, response any) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.apiURL(operation)+"?"+query.Encode(), nil)
	if err != nil {
		return err
	}

	return c.doJSON(req, response)
}

func (c *B2Client) doJSON(req *retryablehttp.Request, response any) error {
	req.Header.Set("Authorization", c.token())

	resp, err := c.apiClient.Do(req)
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

	if response == nil {
		return nil
	}
	return jsonDecode(resp.Body, response)
}

func jsonDecode(r io.Reader, v any) error {
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// encodeFileName percent-encodes a file name for the X-Bz-File-Name header, keeping slashes.
func encodeFileName(name string) string {
	return strings.ReplaceAll(url.PathEscape(name), "%2F", "/")
}

func encodeHeaderValue(value string) string {
	return url.QueryEscape(value)
}

func setEncryptionHeaders(header http.Header, encryption *Encryption, withManaged bool) {
	if encryption == nil {
		return
	}
	switch encryption.Mode {
	case EncryptionManaged:
		if withManaged {
			header.Set("X-Bz-Server-Side-Encryption", encryption.algorithm())
		}
	case EncryptionCustomerKey:
		header.Set("X-Bz-Server-Side-Encryption-Customer-Algorithm", encryption.algorithm())
		header.Set("X-Bz-Server-Side-Encryption-Customer-Key", encryption.CustomerKey)
		header.Set("X-Bz-Server-Side-Encryption-Customer-Key-Md5", encryption.CustomerKeyMD5)
	}
}

func sessionEncryption(encryption *Encryption) *serverSideEncryption {
	if encryption == nil || encryption.Mode == EncryptionDisabled {
		return nil
	}
	return &serverSideEncryption{Mode: string(encryption.Mode), Algorithm: encryption.algorithm()}
}

func setFileInfoHeaders(header http.Header, info map[string]string, settings FileSettings) {
	for k, v := range fileInfo(info, settings) {
		header.Set("X-Bz-Info-"+k, encodeHeaderValue(v))
	}
	if settings.CustomUploadTimestamp != nil {
		header.Set("X-Bz-Custom-Upload-Timestamp", fmt.Sprintf("%d", *settings.CustomUploadTimestamp))
	}
}

// fileInfo merges the custom file info with the file info keys the settings map to.
func fileInfo(info map[string]string, settings FileSettings) map[string]string {
	merged := make(map[string]string, len(info)+6)
	for k, v := range info {
		merged[k] = v
	}
	if settings.SrcLastModifiedMillis != nil {
		merged["src_last_modified_millis"] = fmt.Sprintf("%d", *settings.SrcLastModifiedMillis)
	}
	optional := map[string]string{
		"b2-content-disposition": settings.ContentDisposition,
		"b2-content-language":    settings.ContentLanguage,
		"b2-expires":             settings.Expires,
		"b2-cache-control":       settings.CacheControl,
		"b2-content-encoding":    settings.ContentEncoding,
	}
	for k, v := range optional {
		if v != "" {
			merged[k] = v
		}
	}
	if len(merged) == 0 {
		return nil
	}
	return merged
}

func newUploadRequest(ctx context.Context, slot Slot, body io.Reader, contentLength int64) (*http.Request, error) {
	if body == nil {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, slot.URL, body)
	if err != nil {
		return nil, err
	}
	req.ContentLength = contentLength
	req.Header.Set("Authorization", slot.Token)
	req.Header.Set("Content-Length", fmt.Sprintf("%d", contentLength))
	return req, nil
}
