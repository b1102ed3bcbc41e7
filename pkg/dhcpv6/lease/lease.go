// Package lease implements the Lease Timekeeper (spec section 4.4): the
// accrued-time counter that drives T1/T2 renew/rebind transitions and
// per-address valid-lifetime expiry while the session is bound.
package lease

import "github.com/krisarmstrong/dhcp6c/pkg/dhcpv6/wire"

// Event reports what a Tracker's Tick observed.
type Event int

const (
	// EventNone means nothing crossed a threshold this tick.
	EventNone Event = iota
	// EventRenewDue means accrued >= T1; the caller should emit
	// request-renew and move to SENDING_RENEW.
	EventRenewDue
	// EventRebindDue means accrued >= T2 while already renewing; the
	// caller should emit request-rebind and move to SENDING_REBIND.
	EventRebindDue
)

// Tracker holds the single monotonically-increasing accrued-time counter
// for one session (spec section 4.4). It samples only while "armed": T1 is
// neither 0 nor wire.Infinity. The tracker has no view of IA-Address state;
// client.Session.tickLease checks for a Valid IA-Address before ticking it.
type Tracker struct {
	accrued uint32
	armed   bool
	t1, t2  uint32
	// rebindArmed becomes true once EventRenewDue has fired, so a later
	// Tick can recognise the T2 crossing (SENDING_RENEW → SENDING_REBIND).
	rebindArmed bool
}

// NewTracker creates a Tracker for the given T1/T2. Passing t1 == 0 or
// t1 == wire.Infinity disarms renewal entirely, per spec section 4.4.
func NewTracker(t1, t2 uint32) *Tracker {
	return &Tracker{
		t1:    t1,
		t2:    t2,
		armed: t1 != 0 && t1 != wire.Infinity,
	}
}

// Reset zeroes the accrued counter, e.g. after a successful REPLY carrying
// at least one IA-Address (spec section 4.4).
func (tr *Tracker) Reset() {
	tr.accrued = 0
	tr.rebindArmed = false
}

// Reload replaces T1/T2 and re-evaluates whether the tracker is armed,
// used when entering SENDING_RENEW/SENDING_REBIND with freshly-assigned
// lease times.
func (tr *Tracker) Reload(t1, t2 uint32) {
	tr.t1, tr.t2 = t1, t2
	tr.armed = t1 != 0 && t1 != wire.Infinity
	tr.accrued = 0
	tr.rebindArmed = false
}

// Accrued returns the current accrued-time counter in seconds.
func (tr *Tracker) Accrued() uint32 { return tr.accrued }

// Armed reports whether the tracker currently samples: T1 neither 0 nor
// wire.Infinity (spec section 4.4). IA-Address state is not considered.
func (tr *Tracker) Armed() bool { return tr.armed }

// T2 returns the tracker's current T2 value in seconds.
func (tr *Tracker) T2() uint32 { return tr.t2 }

// Tick advances the accrued counter by one second and reports any T1/T2
// crossing. Call once per coarse (one-second) clock tick while BOUND or
// renewing/rebinding (spec section 4.4); a no-op while disarmed.
func (tr *Tracker) Tick() Event {
	if !tr.armed {
		return EventNone
	}
	tr.accrued++

	if !tr.rebindArmed && tr.accrued >= tr.t1 {
		tr.rebindArmed = true
		return EventRenewDue
	}
	if tr.rebindArmed && tr.t2 != 0 && tr.t2 != wire.Infinity && tr.accrued >= tr.t2 {
		return EventRebindDue
	}
	return EventNone
}

// AddressExpiry reports whether an IA-Address with the given accrued-age
// seconds and validLifetime has run out its valid lifetime (spec section
// 4.4). wire.Infinity lifetimes never expire.
func AddressExpiry(ageSeconds, validLifetime uint32) bool {
	if validLifetime == wire.Infinity {
		return false
	}
	return ageSeconds >= validLifetime
}
