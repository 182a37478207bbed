package qizx

import (
	"errors"
	"fmt"

	"github.com/qizxdb/qizx-go/internal/httpx"
)

// Configuration errors. All are detected before any network activity and are
// never retried.
var (
	// ErrConfigNotFound is returned when no configuration file exists and
	// the target is not a literal URL.
	ErrConfigNotFound = errors.New("qizx: no configuration file found")
	// ErrConfigParse is returned when the configuration file is malformed.
	ErrConfigParse = errors.New("qizx: malformed configuration file")
	// ErrSectionNotFound is returned when the named section is absent.
	ErrSectionNotFound = errors.New("qizx: configuration section not found")
	// ErrMissingURL is returned when a section has no url key.
	ErrMissingURL = errors.New("qizx: configuration section has no url")
	// ErrCertificateNotFound is returned when a configured client
	// certificate file does not exist.
	ErrCertificateNotFound = errors.New("qizx: client certificate not found")
	// ErrAmbiguousTarget is returned when the target carries a URL scheme
	// other than http or https, so it is neither a service URL nor a
	// plausible section name.
	ErrAmbiguousTarget = errors.New("qizx: ambiguous target")
)

// ErrInvalidRequest is returned when caller input cannot form a valid
// request; no network call is made.
var ErrInvalidRequest = errors.New("qizx: invalid request")

// Transport errors, re-exported so callers need not import internal
// packages. All carry the underlying error and are candidates for
// caller-side retry; the client itself never retries.
var (
	ErrTimeout    = httpx.ErrTimeout
	ErrConnection = httpx.ErrConnection
	ErrTLS        = httpx.ErrTLS
)

// Error codes reported by the server.
const (
	CodeBadRequest    = "BadRequest"
	CodeServer        = "Server"
	CodeNotFound      = "NotFound"
	CodeAccessControl = "AccessControl"
	CodeXMLData       = "XMLData"
	CodeCompilation   = "Compilation"
	CodeEvaluation    = "Evaluation"
	CodeTimeOut       = "TimeOut"
)

// RemoteError is an error reported by the database itself. Code and Message
// are passed through verbatim.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("qizx: server error %s", e.Code)
	}
	return fmt.Sprintf("qizx: server error %s: %s", e.Code, e.Message)
}

// IsRemoteError reports whether err is a server-reported error with the
// given code.
func IsRemoteError(err error, code string) bool {
	var remote *RemoteError
	return errors.As(err, &remote) && remote.Code == code
}

// TransportError is an HTTP response the client could not interpret: a
// non-2xx status whose body is not a structured error document, or a 2xx
// response with an unexpected shape.
type TransportError struct {
	StatusCode int
	Body       []byte
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("qizx: unexpected response: status=%d body=%s", e.StatusCode, string(e.Body))
}

// TransactionError is raised when a property-batch transaction is rolled
// back; it carries the error items reported by the server.
type TransactionError struct {
	Items []Item
}

func (e *TransactionError) Error() string {
	msg := "qizx: transaction failed"
	for _, item := range e.Items {
		msg += fmt.Sprintf("; %s:%v", item.Type, item.Value)
	}
	return msg
}
