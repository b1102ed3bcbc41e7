package errors

import (
	"errors"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	err := New(KindWire, CodeBadTransactionID, "")
	if got, want := err.Error(), "dhcpv6: wire: bad_transaction_id"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	detailed := New(KindState, CodeNotBound, "no active binding")
	if got, want := detailed.Error(), "dhcpv6: state: not_bound: no active binding"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("short read")
	wrapped := Wrap(KindWire, CodeIncompleteOption, "option header", cause)

	if !errors.Is(wrapped, cause) {
		t.Error("errors.Is(wrapped, cause) = false, want true")
	}
	if got := wrapped.Unwrap(); got != cause {
		t.Errorf("Unwrap() = %v, want %v", got, cause)
	}
}

func TestErrorIsMatchesKindAndCode(t *testing.T) {
	a := New(KindProtocol, CodeMaxRetransmitCount, "solicit exhausted")
	b := New(KindProtocol, CodeMaxRetransmitCount, "renew exhausted")
	c := New(KindProtocol, CodeServerStatus, "solicit exhausted")

	if !errors.Is(a, Sentinel(KindProtocol, CodeMaxRetransmitCount)) {
		t.Error("expected a to match its own Kind/Code sentinel")
	}
	if !a.Is(b) {
		t.Error("expected a.Is(b) = true for matching Kind/Code with different Detail")
	}
	if a.Is(c) {
		t.Error("expected a.Is(c) = false for differing Code")
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindConfiguration: "configuration",
		KindResource:      "resource",
		KindWire:          "wire",
		KindProtocol:      "protocol",
		KindState:         "state",
		Kind(99):          "unknown",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", kind, got, want)
		}
	}
}
