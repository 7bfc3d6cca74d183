package network

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrMissingCapability is returned when the account key is not allowed to upload.
var ErrMissingCapability = errors.New("client key is missing a required capability")

// ErrKeyExpired is returned once the application key has expired and the client can
// no longer authorize.
var ErrKeyExpired = errors.New("application key expired")

// RequestError is an error response of the remote store.
type RequestError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *RequestError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("HTTP %d (%s): %s", e.Status, e.Code, e.Message)
}

// Busy reports whether the store rejected the request as transiently busy.
func (e *RequestError) Busy() bool {
	return e.Status == http.StatusServiceUnavailable
}

// IsBusy reports whether err is a busy response of the store, which is answered by
// requesting a new upload slot.
func IsBusy(err error) bool {
	var requestErr *RequestError
	if errors.As(err, &requestErr) {
		return requestErr.Busy()
	}
	return false
}

func unwrapError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &RequestError{Status: resp.StatusCode, Message: fmt.Sprintf("failed to read error response: %s", err)}
	}

	var requestErr RequestError
	if err := json.Unmarshal(body, &requestErr); err != nil || requestErr.Code == "" {
		return &RequestError{Status: resp.StatusCode, Message: string(body)}
	}
	if requestErr.Status == 0 {
		requestErr.Status = resp.StatusCode
	}
	return &requestErr
}
