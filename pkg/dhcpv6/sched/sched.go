// Package sched implements the Retransmission Scheduler (spec section 4.3):
// per-transaction RFC 3315 section 14 binary-exponential backoff governed by
// IRT/MRT/MRC/MRD, plus the coarse elapsed-time counter carried in the
// Elapsed Time option.
package sched

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/krisarmstrong/dhcp6c/pkg/dhcpv6/wire"
)

// Params holds the four RFC 3315 section 14 parameters for one transaction
// kind, all in seconds except where noted.
type Params struct {
	IRT int // initial retransmission time
	MRT int // max retransmission time, 0 = unlimited
	MRC int // max retry count, 0 = unlimited
	MRD int // max retransmission duration, 0 = unlimited
}

// paramsByMessageType is the table of spec section 4.3. RENEW and REBIND
// carry a zero MRD here; client.Session.dynamicParams recomputes their MRD
// from T2-minus-accrued and max-valid-lifetime-minus-accrued respectively
// and passes the result to NewTimerWithParams, since those values aren't
// known until the lease is in hand.
var paramsByMessageType = map[wire.MessageType]Params{
	wire.Solicit:             {IRT: 1, MRT: 120, MRC: 0, MRD: 0},
	wire.Request:             {IRT: 1, MRT: 30, MRC: 10, MRD: 0},
	wire.Renew:               {IRT: 10, MRT: 600, MRC: 0, MRD: 0},
	wire.Rebind:              {IRT: 10, MRT: 600, MRC: 0, MRD: 0},
	wire.Confirm:             {IRT: 1, MRT: 4, MRC: 0, MRD: 10},
	wire.Release:             {IRT: 1, MRT: 0, MRC: 5, MRD: 0},
	wire.Decline:             {IRT: 1, MRT: 0, MRC: 5, MRD: 0},
	wire.InformationRequest:  {IRT: 1, MRT: 120, MRC: 0, MRD: 0},
}

// ParamsFor returns the RFC 3315 section 14 parameters for msgType, and
// whether an entry exists.
func ParamsFor(msgType wire.MessageType) (Params, bool) {
	p, ok := paramsByMessageType[msgType]
	return p, ok
}

// Outcome reports what a scheduler Tick should do next.
type Outcome int

const (
	// OutcomeWait means the retransmission timer has not yet expired.
	OutcomeWait Outcome = iota
	// OutcomeRetransmit means RT expired without a reply; resend with the
	// same transaction ID and the backed-off RT.
	OutcomeRetransmit
	// OutcomeExhausted means MRC or MRD was reached; the transaction must
	// terminate (the state machine falls back to INIT, spec section 4.3
	// point 4).
	OutcomeExhausted
)

// Timer drives one transaction's retransmission state: current RT, the
// retry count, and elapsed centiseconds since the first send. It holds no
// goroutine of its own; the state machine's single worker goroutine calls
// Tick once per coarse clock tick (spec section 5's one-goroutine-per-session
// rule), grounded on the ticker-driven loop of stack.go's sendThread.
type Timer struct {
	params Params

	rt           int // current retransmission timeout, in seconds
	waited       int // seconds waited since the last (re)send
	count        int // number of retransmits sent so far
	elapsedCenti int // centiseconds since the first send of this transaction
}

// NewTimer starts a fresh Timer for msgType (spec section 4.3 point 1:
// RT ← IRT, count ← 0, elapsed ← 0).
func NewTimer(msgType wire.MessageType) Timer {
	p := paramsByMessageType[msgType]
	return NewTimerWithParams(p)
}

// NewTimerWithParams starts a fresh Timer with explicit parameters, used by
// RENEW/REBIND once their dynamic MRD has been computed.
func NewTimerWithParams(p Params) Timer {
	return Timer{params: p, rt: p.IRT}
}

// RT returns the current retransmission timeout in seconds, including
// jitter applied at the last (re)send.
func (t *Timer) RT() int { return t.rt }

// Count returns the number of retransmits sent so far (0 before the first
// retransmit).
func (t *Timer) Count() int { return t.count }

// ElapsedCentiseconds returns centiseconds since the first send, the value
// carried verbatim in the Elapsed Time option (spec section 4.3, section 6).
func (t *Timer) ElapsedCentiseconds() int { return t.elapsedCenti }

// Tick advances the timer by one second of wall-clock time with no reply
// received, returning what the caller should do next.
func (t *Timer) Tick() Outcome {
	t.waited++
	t.elapsedCenti += 100

	if t.waited < t.rt {
		return OutcomeWait
	}

	if t.params.MRC != 0 && t.count >= t.params.MRC {
		return OutcomeExhausted
	}
	if t.params.MRD != 0 && t.elapsedCenti >= t.params.MRD*100 {
		return OutcomeExhausted
	}

	t.count++
	t.waited = 0
	t.rt = backoff(t.rt, t.params.MRT)
	return OutcomeRetransmit
}

// backoff doubles rt, capping at mrt when mrt != 0, then applies the RFC
// 3315 section 14 randomisation factor as an integer offset in
// {-31, ..., +31} ticks added to the result (spec section 4.3).
func backoff(rt, mrt int) int {
	doubled := rt * 2
	if mrt != 0 && doubled > mrt {
		doubled = mrt
	}
	return doubled + jitter(doubled)
}

// jitter returns an integer offset in {-31, ..., +31} ticks per spec section
// 4.3, standing in for RFC 3315's ±0.1·RT randomisation factor; the offset
// does not depend on rt.
func jitter(rt int) int {
	var b [1]byte
	_, _ = rand.Read(b[:])
	// Map a uniform byte to {-31, ..., +31}.
	return int(b[0]%63) - 31
}

// GenerateTransactionID derives a fresh 24-bit transaction ID from the
// interface's hardware address and a random salt (spec section 4.5):
// (mac_msw ^ mac_lsw ^ random) & 0x00FFFFFF.
func GenerateTransactionID(hwAddr []byte) [3]byte {
	var msw, lsw uint32
	if len(hwAddr) >= 4 {
		msw = binary.BigEndian.Uint32(pad4(hwAddr[:len(hwAddr)/2]))
		lsw = binary.BigEndian.Uint32(pad4(hwAddr[len(hwAddr)/2:]))
	}
	var randBuf [4]byte
	_, _ = rand.Read(randBuf[:])
	random := binary.BigEndian.Uint32(randBuf[:])

	combined := (msw ^ lsw ^ random) & 0x00FFFFFF
	return [3]byte{byte(combined >> 16), byte(combined >> 8), byte(combined)}
}

func pad4(b []byte) []byte {
	out := make([]byte, 4)
	copy(out[4-len(b):], b)
	if len(b) > 4 {
		return b[len(b)-4:]
	}
	return out
}
