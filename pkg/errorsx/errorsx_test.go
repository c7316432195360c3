package errorsx

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapAndReason(t *testing.T) {
	base := errors.New("dial tcp: connection refused")
	err := Wrap(base, ReasonTransportDial)

	if Reason(err) != ReasonTransportDial {
		t.Fatalf("expected reason %q, got %q", ReasonTransportDial, Reason(err))
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to unwrap to base")
	}
	if !HasReason(err, ReasonTransportDial) {
		t.Fatalf("expected HasReason to match")
	}
}

func TestWrapNilIsNil(t *testing.T) {
	if Wrap(nil, ReasonHandshake) != nil {
		t.Fatalf("expected nil wrap of nil error")
	}
}

func TestWrapDoesNotOverrideExistingReason(t *testing.T) {
	err := Wrap(errors.New("boom"), ReasonToolTimeout)
	err = Wrap(err, ReasonToolFailed)
	if Reason(err) != ReasonToolTimeout {
		t.Fatalf("expected original reason to survive, got %q", Reason(err))
	}
}

func TestWrapSurvivesFmtErrorf(t *testing.T) {
	err := New(ReasonBackendSemantic, "invalid parameter %q", "days")
	wrapped := fmt.Errorf("handling event: %w", err)
	if Reason(wrapped) != ReasonBackendSemantic {
		t.Fatalf("expected reason to survive fmt wrapping, got %q", Reason(wrapped))
	}
}

func TestTerminal(t *testing.T) {
	cases := []struct {
		reason   ReasonCode
		terminal bool
	}{
		{ReasonTransportClosed, true},
		{ReasonHandshake, true},
		{ReasonDevicePermission, true},
		{ReasonProtocolAnomaly, false},
		{ReasonToolTimeout, false},
		{ReasonBackendSemantic, false},
	}
	for _, tc := range cases {
		err := New(tc.reason, "x")
		if Terminal(err) != tc.terminal {
			t.Fatalf("reason %q: expected terminal=%v", tc.reason, tc.terminal)
		}
	}
}
