package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// ErrorClass groups failures by whether another attempt can succeed.
type ErrorClass string

const (
	ClassTransient ErrorClass = "transient"
	ClassPermanent ErrorClass = "permanent"
)

// TransientError marks an error as retryable regardless of its text.
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps err as retryable. statusCode may be zero.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// statusCoder is satisfied by API errors that carry a response status.
type statusCoder interface {
	HTTPStatus() int
}

var retryableErrnos = []error{
	syscall.ECONNRESET,
	syscall.ECONNREFUSED,
	syscall.ECONNABORTED,
	syscall.EPIPE,
}

// retryableText matches messages of errors that lost their type on the way
// up through HTTP clients.
var retryableText = []string{
	"connection reset by peer",
	"broken pipe",
	"temporary failure in name resolution",
	"no such host",
	"tls handshake timeout",
	"i/o timeout",
	"server closed idle connection",
	"unexpected eof",
	"overloaded",
	"rate limit",
}

// Classify reports whether err is worth another generation attempt.
// Status-bearing errors are decided by their status alone.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassPermanent
	}

	var te *TransientError
	if errors.As(err, &te) {
		return ClassTransient
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		if IsTransientHTTPStatus(sc.HTTPStatus()) {
			return ClassTransient
		}
		return ClassPermanent
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTransient
	}
	for _, errno := range retryableErrnos {
		if errors.Is(err, errno) {
			return ClassTransient
		}
	}

	msg := strings.ToLower(err.Error())
	for _, p := range retryableText {
		if strings.Contains(msg, p) {
			return ClassTransient
		}
	}
	return ClassPermanent
}

// IsTransient reports whether err classifies as ClassTransient.
func IsTransient(err error) bool {
	return err != nil && Classify(err) == ClassTransient
}

// IsTransientHTTPStatus reports whether a response status signals a
// server-side condition that may clear on retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 409, 429, 500, 502, 503, 504, 529:
		return true
	}
	return false
}
