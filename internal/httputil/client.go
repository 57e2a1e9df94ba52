package httputil

import (
	"net/http"
	"time"
)

// DefaultTimeout caps any single provider request. Retry budgets sit on
// top of this in the ghcnd client.
const DefaultTimeout = 30 * time.Second

// NewClient returns an HTTP client with standard timeout configuration.
func NewClient() *http.Client {
	return &http.Client{
		Timeout: DefaultTimeout,
	}
}
