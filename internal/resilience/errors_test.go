package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
)

type statusErr struct{ code int }

func (e statusErr) Error() string   { return fmt.Sprintf("api status %d", e.code) }
func (e statusErr) HTTPStatus() int { return e.code }

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("invalid input: missing field"), false},
		{"explicit", NewTransientError(errors.New("server overloaded"), 503), true},
		{"wrapped explicit", fmt.Errorf("call: %w", NewTransientError(errors.New("rate limited"), 429)), true},
		{"status 429", statusErr{429}, true},
		{"status 529", fmt.Errorf("generate: %w", statusErr{529}), true},
		{"status 400", statusErr{400}, false},
		{"status 401", statusErr{401}, false},
		{"net timeout", &net.DNSError{IsTimeout: true, Err: "timeout"}, true},
		{"conn reset", fmt.Errorf("write tcp: %w", syscall.ECONNRESET), true},
		{"conn refused", fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED), true},
		{"tls pattern", errors.New("TLS handshake timeout"), true},
		{"overloaded pattern", errors.New("Overloaded"), true},
		{"broken pipe errno", fmt.Errorf("write: %w", syscall.EPIPE), true},
		{"rate limit text", errors.New("Rate limit reached for requests"), true},
		{"status wins over text", fmt.Errorf("overloaded: %w", statusErr{400}), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 409, 429, 500, 502, 503, 504, 529} {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("expected HTTP %d to be transient", code)
		}
	}
	for _, code := range []int{200, 400, 401, 403, 404, 422} {
		if IsTransientHTTPStatus(code) {
			t.Errorf("expected HTTP %d to NOT be transient", code)
		}
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := errors.New("root cause")
	te := NewTransientError(inner, 500)
	if !errors.Is(te, inner) {
		t.Error("TransientError.Unwrap should return the inner error")
	}
	if te.Error() != "root cause" {
		t.Errorf("unexpected message %q", te.Error())
	}
}

func TestClassify(t *testing.T) {
	if got := Classify(statusErr{503}); got != ClassTransient {
		t.Errorf("got %q, want transient", got)
	}
	if got := Classify(errors.New("no JSON object in response")); got != ClassPermanent {
		t.Errorf("got %q, want permanent", got)
	}
	if got := Classify(nil); got != ClassPermanent {
		t.Errorf("got %q for nil, want permanent", got)
	}
}
