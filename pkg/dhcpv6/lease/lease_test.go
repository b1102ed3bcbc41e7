package lease

import (
	"testing"

	"github.com/krisarmstrong/dhcp6c/pkg/dhcpv6/wire"
)

func TestTrackerDisarmedWhenT1Zero(t *testing.T) {
	tr := NewTracker(0, 100)
	for i := 0; i < 1000; i++ {
		if ev := tr.Tick(); ev != EventNone {
			t.Fatalf("expected no events while disarmed, got %v", ev)
		}
	}
}

func TestTrackerDisarmedWhenT1Infinity(t *testing.T) {
	tr := NewTracker(wire.Infinity, wire.Infinity)
	if ev := tr.Tick(); ev != EventNone {
		t.Fatalf("expected no events with INFINITY T1, got %v", ev)
	}
}

func TestTrackerFiresRenewAtT1(t *testing.T) {
	tr := NewTracker(3, 10)
	var fired Event
	for i := 0; i < 3; i++ {
		fired = tr.Tick()
	}
	if fired != EventRenewDue {
		t.Fatalf("expected EventRenewDue at T1=3, got %v", fired)
	}
}

func TestTrackerFiresRebindAtT2OnlyAfterRenewDue(t *testing.T) {
	tr := NewTracker(3, 5)
	for i := 0; i < 3; i++ {
		tr.Tick() // crosses T1
	}
	var fired Event
	for i := 0; i < 2; i++ {
		fired = tr.Tick()
	}
	if fired != EventRebindDue {
		t.Fatalf("expected EventRebindDue at T2=5, got %v", fired)
	}
}

func TestResetZeroesAccrued(t *testing.T) {
	tr := NewTracker(3, 10)
	tr.Tick()
	tr.Tick()
	tr.Reset()
	if tr.Accrued() != 0 {
		t.Errorf("Accrued after Reset = %d, want 0", tr.Accrued())
	}
}

func TestReloadRearmsWithNewTimes(t *testing.T) {
	tr := NewTracker(0, 0)
	tr.Reload(2, 4)
	var fired Event
	for i := 0; i < 2; i++ {
		fired = tr.Tick()
	}
	if fired != EventRenewDue {
		t.Fatalf("expected EventRenewDue after Reload, got %v", fired)
	}
}

func TestAddressExpiryRespectsInfinity(t *testing.T) {
	if AddressExpiry(1_000_000, wire.Infinity) {
		t.Error("INFINITY valid lifetime must never expire")
	}
}

func TestAddressExpiryFiresAtOrPastLifetime(t *testing.T) {
	if !AddressExpiry(100, 100) {
		t.Error("age == validLifetime should be expired")
	}
	if AddressExpiry(99, 100) {
		t.Error("age < validLifetime should not be expired")
	}
}
