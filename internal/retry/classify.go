package retry

import (
	"errors"
	"net"
	"net/http"
	"strings"
)

// StatusCoder is implemented by provider errors carrying an HTTP-like
// status. Any error in the chain exposing it feeds the classifier.
type StatusCoder interface {
	StatusCode() int
}

// networkErrorPatterns are substring matches for transport-level failures
// that surface as plain errors rather than typed ones.
var networkErrorPatterns = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"unexpected eof",
	"temporarily unavailable",
}

// Retryable reports whether err is a transient failure worth retrying.
//
// HTTP 429 and 5xx are transient; any other 4xx (auth, bad request,
// validation) is fatal. Network timeouts and connection-level failures are
// transient. Everything else is treated as fatal so programming errors do
// not loop.
func Retryable(err error) bool {
	if err == nil {
		return false
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		code := sc.StatusCode()
		switch {
		case code == http.StatusTooManyRequests:
			return true
		case code >= 500:
			return true
		case code >= 400:
			return false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range networkErrorPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
