package network

import "io"

// DefaultContentType lets the store pick the content type from the file name.
const DefaultContentType = "b2/x-auto"

// Slot is a short-lived upload URL with the token authorizing uploads to it.
type Slot struct {
	URL   string
	Token string
}

// File is the record of an uploaded file.
type File struct {
	AccountID       string            `json:"accountId"`
	Action          string            `json:"action"`
	BucketID        string            `json:"bucketId"`
	FileID          string            `json:"fileId"`
	FileName        string            `json:"fileName"`
	ContentLength   int64             `json:"contentLength"`
	ContentSHA1     string            `json:"contentSha1"`
	ContentMD5      string            `json:"contentMd5,omitempty"`
	ContentType     string            `json:"contentType"`
	FileInfo        map[string]string `json:"fileInfo"`
	UploadTimestamp int64             `json:"uploadTimestamp"`
}

// EncryptionMode selects server-side encryption.
type EncryptionMode string

const (
	// EncryptionDisabled stores the file unencrypted.
	EncryptionDisabled EncryptionMode = ""
	// EncryptionManaged lets the store manage the keys (SSE-B2).
	EncryptionManaged EncryptionMode = "SSE-B2"
	// EncryptionCustomerKey uses a key provided with every request (SSE-C).
	EncryptionCustomerKey EncryptionMode = "SSE-C"
)

// Encryption configures server-side encryption.
type Encryption struct {
	Mode EncryptionMode
	// Algorithm defaults to AES256.
	Algorithm      string
	CustomerKey    string
	CustomerKeyMD5 string
}

// FileSettings are the optional per-file settings sent with uploads.
type FileSettings struct {
	// ContentType defaults to DefaultContentType.
	ContentType           string
	SrcLastModifiedMillis *int64
	ContentDisposition    string
	ContentLanguage       string
	Expires               string
	CacheControl          string
	ContentEncoding       string
	CustomUploadTimestamp *int64
	Encryption            *Encryption
}

// SessionRequest describes the file a multipart session uploads.
type SessionRequest struct {
	BucketID string
	FileName string
	Info     map[string]string
	Settings FileSettings
}

// PartRequest is one part of a multipart session.
type PartRequest struct {
	PartNumber    int
	ContentLength int64
	// ContentSHA1 is the hex encoded SHA-1 of the part.
	ContentSHA1 string
	Body        io.Reader
	Settings    FileSettings
}

// SingleRequest is a whole file uploaded in one request.
type SingleRequest struct {
	FileName      string
	ContentLength int64
	// ContentSHA1 is the hex encoded SHA-1 of the file.
	ContentSHA1 string
	Body        io.Reader
	Info        map[string]string
	Settings    FileSettings
}

func (s FileSettings) contentType() string {
	if s.ContentType == "" {
		return DefaultContentType
	}
	return s.ContentType
}

func (e Encryption) algorithm() string {
	if e.Algorithm == "" {
		return "AES256"
	}
	return e.Algorithm
}
