package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
)

var ErrBlocked = errors.New("blocked by remote site")

// BlockedError is returned when every attempt at a url was answered
// with 429, 403 or a challenge page.
type BlockedError struct {
	URL      string
	Status   int
	Attempts int
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("blocked by remote site: %s answered %d after %d attempts", e.URL, e.Status, e.Attempts)
}

func (e *BlockedError) Is(target error) bool {
	return target == ErrBlocked
}

// StatusError is a response outside of 2xx that is not a block.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d %s", e.URL, e.Status, http.StatusText(e.Status))
}

// Transient reports whether a retry could succeed.
func (e *StatusError) Transient() bool {
	return e.Status >= 500
}

func isProxyError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "proxyconnect" {
		return true
	}
	return strings.Contains(err.Error(), "proxyconnect")
}

func isCertificateError(err error) bool {
	var verifyErr *tls.CertificateVerificationError
	var unknownAuthority x509.UnknownAuthorityError
	var hostname x509.HostnameError
	var invalid x509.CertificateInvalidError
	return errors.As(err, &verifyErr) ||
		errors.As(err, &unknownAuthority) ||
		errors.As(err, &hostname) ||
		errors.As(err, &invalid)
}

// IsConnectionRefused reports whether err means the remote host (or
// something between) actively refused the connection.
func IsConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") || strings.Contains(msg, "actively refused")
}

func isCanceled(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled)
}

var challengeMarkers = []string{
	"cf-browser-verification",
	"challenge-form",
	"/cdn-cgi/challenge-platform/",
	"cf-chl-",
}

// isChallengePage detects interstitial bot checks served with a 2xx.
func isChallengePage(body []byte) bool {
	if len(body) == 0 {
		return false
	}
	text := string(body)
	for _, m := range challengeMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}
