package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "dial tcp: timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit", Transient(errors.New("x"), 500), true},
		{"wrapped explicit", eris.Wrap(Transient(errors.New("x"), 502), "upstream: get"), true},
		{"net timeout", timeoutErr{}, true},
		{"deadline", context.DeadlineExceeded, true},
		{"conn reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"conn refused", syscall.ECONNREFUSED, true},
		{"message pattern", errors.New("write tcp: broken pipe"), true},
		{"circuit open", eris.Wrap(ErrCircuitOpen, "service delius"), true},
		{"plain", errors.New("invalid crn"), false},
		{"canceled", context.Canceled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestTransientStatus(t *testing.T) {
	for _, s := range []int{408, 429, 500, 502, 503, 504, 599} {
		if !TransientStatus(s) {
			t.Errorf("expected %d transient", s)
		}
	}
	for _, s := range []int{200, 400, 401, 403, 404, 409, 422} {
		if TransientStatus(s) {
			t.Errorf("expected %d permanent", s)
		}
	}
}

func TestClassify(t *testing.T) {
	if Classify(Transient(errors.New("x"), 503)) != ClassTransient {
		t.Error("expected transient")
	}
	if Classify(errors.New("x")) != ClassPermanent {
		t.Error("expected permanent")
	}
}
