// Package netutil classifies failed Bot API calls.
package netutil

import (
	"errors"
	"net"
)

// ShouldRetry reports whether a failed Telegram call is worth retrying:
// timeouts, failed dials, flood control replies and server-side errors.
// Client errors such as "chat not found" are final.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if isTimeout(err) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	code := StatusCode(err)
	return code == 429 || code >= 500
}
