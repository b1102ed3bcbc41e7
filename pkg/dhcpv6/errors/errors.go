// Package errors provides the DHCPv6 client error taxonomy: configuration,
// resource, wire, protocol, and state errors (spec section 7).
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of the taxonomy's five categories.
type Kind int

const (
	// KindConfiguration covers missing DUID/IANA, invalid parameters, and
	// attempts to mutate a started session.
	KindConfiguration Kind = iota
	// KindResource covers buffer overflow, allocation failure, and
	// exhausted IA-Address slots.
	KindResource
	// KindWire covers decode failures local to a single received packet.
	KindWire
	// KindProtocol covers retransmission exhaustion and server-rejected status.
	KindProtocol
	// KindState covers operations invoked from the wrong session state.
	KindState
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindResource:
		return "resource"
	case KindWire:
		return "wire"
	case KindProtocol:
		return "protocol"
	case KindState:
		return "state"
	default:
		return "unknown"
	}
}

// Code identifies the specific failure within a Kind.
type Code string

// Configuration codes.
const (
	CodeMissingDUID        Code = "missing_duid"
	CodeMissingIANA        Code = "missing_iana"
	CodeInvalidParameter   Code = "invalid_parameter"
	CodeUnsupportedDUID    Code = "unsupported_duid_type"
	CodeUnsupportedHwType  Code = "unsupported_duid_hwtype"
	CodeAlreadyStarted     Code = "already_started"
	CodeMutateWhileRunning Code = "mutate_while_started"
)

// Resource codes.
const (
	CodeBufferOverflow   Code = "buffer_overflow"
	CodeAllocationFailed Code = "allocation_failed"
	CodeMaxIAAddress     Code = "reached_max_ia_address"
)

// Wire codes.
const (
	CodeIllegalMessageType    Code = "illegal_message_type"
	CodeBadTransactionID      Code = "bad_transaction_id"
	CodeInvalidIAData         Code = "invalid_ia_data"
	CodeIncompleteOption      Code = "incomplete_option_block"
	CodeInvalidClientDUID     Code = "invalid_client_duid"
	CodeInvalidServerDUID     Code = "invalid_server_duid"
	CodeInvalidIATime         Code = "invalid_ia_time"
	CodeInvalidPreference     Code = "invalid_preference_data"
	CodeUnknownOption         Code = "unknown_option"
	CodeUnsupportedOption     Code = "unsupported_option"
	CodeInvalidDataSize       Code = "invalid_data_size"
	CodeProcessingError       Code = "processing_error"
	CodeMissingIANAOption     Code = "missing_iana_option"
	CodeNoDUIDOption          Code = "no_duid_option"
	CodeInvalidOptionData     Code = "invalid_option_data"
	CodeEqualOrLessPreference Code = "equal_or_less_pref_value"
)

// Protocol codes.
const (
	CodeMaxRetransmitCount    Code = "reached_max_retransmit_count"
	CodeMaxRetransmitDuration Code = "reached_max_retransmit_duration"
	CodeServerStatus          Code = "server_rejected_status"
)

// State codes.
const (
	CodeNotBound              Code = "not_bound"
	CodeIAAddressNotValid     Code = "ia_address_not_valid"
	CodeIAAddressAlreadyExist Code = "ia_address_already_exists"
	CodeUnknown               Code = "unknown"
)

// Error is the concrete type for every error this module returns. It carries
// a Kind and Code so callers can branch with errors.Is/As without string
// matching, plus a free-form Detail for diagnostics.
type Error struct {
	Kind   Kind
	Code   Code
	Detail string
	Err    error // wrapped cause, if any
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("dhcpv6: %s: %s", e.Kind, e.Code)
	}
	return fmt.Sprintf("dhcpv6: %s: %s: %s", e.Kind, e.Code, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind and Code, so
// sentinel-free comparisons like errors.Is(err, errors.New(...)) don't apply;
// use Sentinel(kind, code) as the errors.Is target, or compare Kind/Code
// directly via errors.As.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind && e.Code == other.Code
}

// New constructs an Error of the given kind/code with an optional detail.
func New(kind Kind, code Code, detail string) *Error {
	return &Error{Kind: kind, Code: code, Detail: detail}
}

// Wrap constructs an Error that wraps an underlying cause.
func Wrap(kind Kind, code Code, detail string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Detail: detail, Err: cause}
}

// Sentinel returns a comparable value for a given Kind/Code pair, suitable as
// the target of errors.Is from call sites that don't need Detail.
func Sentinel(kind Kind, code Code) *Error {
	return &Error{Kind: kind, Code: code}
}
