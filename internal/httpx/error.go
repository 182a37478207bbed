package httpx

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"syscall"
)

// Sentinel errors distinguishing network-level failure modes so callers can
// decide whether a retry makes sense.
var (
	// ErrTimeout is returned when no response arrives within the deadline.
	ErrTimeout = errors.New("httpx: request timed out")
	// ErrConnection is returned when the connection cannot be established.
	ErrConnection = errors.New("httpx: connection failed")
	// ErrTLS is returned when the TLS handshake or certificate check fails.
	ErrTLS = errors.New("httpx: TLS failure")
)

// HTTPError represents a non-2xx HTTP response returned by the remote service.
type HTTPError struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("httpx: status=%d body=%s", e.StatusCode, string(e.Body))
}

// classify maps a transport-level error onto one of the sentinel errors,
// preserving the original error for inspection.
func classify(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	if isTLSError(err) {
		return fmt.Errorf("%w: %v", ErrTLS, err)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}

	return err
}

func isTLSError(err error) bool {
	var (
		recordErr    tls.RecordHeaderError
		verifyErr    *tls.CertificateVerificationError
		unknownCA    x509.UnknownAuthorityError
		invalidCert  x509.CertificateInvalidError
		hostnameErr  x509.HostnameError
		systemCAErr  x509.SystemRootsError
		insecureAlgo x509.InsecureAlgorithmError
	)
	return errors.As(err, &recordErr) ||
		errors.As(err, &verifyErr) ||
		errors.As(err, &unknownCA) ||
		errors.As(err, &invalidCert) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &systemCAErr) ||
		errors.As(err, &insecureAlgo)
}
