package sched

import (
	"testing"

	"github.com/krisarmstrong/dhcp6c/pkg/dhcpv6/wire"
)

func TestNewTimerStartsAtIRT(t *testing.T) {
	timer := NewTimer(wire.Solicit)
	if timer.RT() != 1 {
		t.Errorf("RT = %d, want IRT 1", timer.RT())
	}
	if timer.Count() != 0 {
		t.Errorf("Count = %d, want 0", timer.Count())
	}
}

func TestTickWaitsUntilRTExpires(t *testing.T) {
	timer := NewTimer(wire.Confirm) // IRT 1
	if out := timer.Tick(); out != OutcomeRetransmit {
		t.Fatalf("first tick at IRT=1 should retransmit, got %v", out)
	}
}

func TestTickRetransmitDoublesRTWithinJitterBounds(t *testing.T) {
	timer := NewTimer(wire.Renew) // IRT 10, MRT 600
	timer.Tick()                 // waited reaches 1 of 10
	for i := 1; i < 10; i++ {
		timer.Tick()
	}
	// The tenth tick retransmits, doubling RT to 20 +/- 31 jitter ticks.
	got := timer.RT()
	if got < 20-31 || got > 20+31 {
		t.Errorf("RT after first backoff = %d, want within jitter of 20", got)
	}
}

func TestTickCapsAtMRT(t *testing.T) {
	timer := NewTimerWithParams(Params{IRT: 100, MRT: 120, MRC: 0, MRD: 0})
	for i := 0; i < 100; i++ {
		timer.Tick()
	}
	if timer.RT() > 120+31 {
		t.Errorf("RT = %d, expected capped near MRT 120 plus jitter", timer.RT())
	}
}

func TestTickExhaustsAtMRC(t *testing.T) {
	timer := NewTimer(wire.Release) // MRC 5
	var out Outcome
	for i := 0; i < 5000; i++ {
		out = timer.Tick()
		if out == OutcomeExhausted {
			break
		}
	}
	if out != OutcomeExhausted {
		t.Fatal("expected RELEASE timer to exhaust at MRC=5")
	}
	if timer.Count() != 5 {
		t.Errorf("Count at exhaustion = %d, want 5", timer.Count())
	}
}

func TestTickExhaustsAtMRD(t *testing.T) {
	timer := NewTimer(wire.Confirm) // MRD 10 seconds
	var out Outcome
	for i := 0; i < 200; i++ {
		out = timer.Tick()
		if out == OutcomeExhausted {
			break
		}
	}
	if out != OutcomeExhausted {
		t.Fatal("expected CONFIRM timer to exhaust at MRD=10s")
	}
}

func TestUnlimitedMRCAndMRDNeverExhaust(t *testing.T) {
	timer := NewTimer(wire.Solicit) // MRC=0, MRD=0
	for i := 0; i < 1000; i++ {
		if timer.Tick() == OutcomeExhausted {
			t.Fatal("SOLICIT has unlimited MRC/MRD and must never exhaust")
		}
	}
}

func TestElapsedCentisecondsAccumulate(t *testing.T) {
	timer := NewTimer(wire.Solicit)
	for i := 0; i < 5; i++ {
		timer.Tick()
	}
	if timer.ElapsedCentiseconds() != 500 {
		t.Errorf("ElapsedCentiseconds = %d, want 500 after 5 ticks", timer.ElapsedCentiseconds())
	}
}

func TestGenerateTransactionIDIsWithin24Bits(t *testing.T) {
	id := GenerateTransactionID([]byte{0x02, 0x11, 0x22, 0x33, 0x44, 0x55})
	// A [3]byte is inherently 24 bits; this just exercises the derivation
	// path without panicking on short/odd-length hardware addresses.
	_ = id
}

func TestGenerateTransactionIDHandlesShortHardwareAddress(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("GenerateTransactionID panicked on short address: %v", r)
		}
	}()
	_ = GenerateTransactionID([]byte{0x01})
	_ = GenerateTransactionID(nil)
}

func TestParamsForKnownAndUnknownMessageType(t *testing.T) {
	if _, ok := ParamsFor(wire.Solicit); !ok {
		t.Error("expected SOLICIT to have parameters")
	}
	if _, ok := ParamsFor(wire.Advertise); ok {
		t.Error("ADVERTISE is server-to-client only and should have no retransmission parameters")
	}
}
