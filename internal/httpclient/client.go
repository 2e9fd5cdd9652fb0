// Package httpclient holds the shared HTTP client used by the market data
// providers.
package httpclient

import (
	"net/http"
	"time"
)

const DefaultTimeout = 30 * time.Second

// Default is shared by every provider so connections to the same host are
// reused across a pipeline run.
var Default = New(DefaultTimeout)

// New returns a client with pooled keep-alive connections. A non-positive
// timeout uses DefaultTimeout.
func New(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        50,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
