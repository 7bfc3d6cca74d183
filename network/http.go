package network

import (
	"net/http"
	"time"
)

// DefaultHTTPClient creates an HTTP client for file and part uploads.
func DefaultHTTPClient() *http.Client {
	return &http.Client{
		// No timeout - uploads are bounded by their context
		Timeout: 0,
		Transport: &http.Transport{
			MaxIdleConns:        50,
			MaxConnsPerHost:     20,
			IdleConnTimeout:     10 * time.Second,
			TLSHandshakeTimeout: 5 * time.Second,
			Proxy:               http.ProxyFromEnvironment,
		},
	}
}
