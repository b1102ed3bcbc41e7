package client

import (
	"net"
	"testing"

	"github.com/krisarmstrong/dhcp6c/pkg/dhcpv6/identity"
	"github.com/krisarmstrong/dhcp6c/pkg/dhcpv6/lease"
	"github.com/krisarmstrong/dhcp6c/pkg/dhcpv6/wire"
)

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateInit:                     "INIT",
		StateSendingSolicit:           "SENDING_SOLICIT",
		StateSendingRequest:           "SENDING_REQUEST",
		StateSendingConfirm:           "SENDING_CONFIRM",
		StateSendingRenew:             "SENDING_RENEW",
		StateSendingRebind:            "SENDING_REBIND",
		StateSendingDecline:           "SENDING_DECLINE",
		StateSendingRelease:           "SENDING_RELEASE",
		StateSendingInformationRequest: "SENDING_INFORMATION_REQUEST",
		StateBoundToAddress:           "BOUND_TO_ADDRESS",
		State(99):                     "UNKNOWN",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %s, want %s", state, got, want)
		}
	}
}

func TestExpectedReplyFor(t *testing.T) {
	if mt, ok := expectedReplyFor(StateSendingSolicit); !ok || mt != wire.Advertise {
		t.Errorf("SENDING_SOLICIT expects ADVERTISE, got %v ok=%v", mt, ok)
	}
	for _, st := range []State{StateSendingRequest, StateSendingRenew, StateSendingRebind,
		StateSendingConfirm, StateSendingRelease, StateSendingDecline, StateSendingInformationRequest} {
		if mt, ok := expectedReplyFor(st); !ok || mt != wire.Reply {
			t.Errorf("%v expects REPLY, got %v ok=%v", st, mt, ok)
		}
	}
	if _, ok := expectedReplyFor(StateInit); ok {
		t.Error("INIT should not expect any reply")
	}
	if _, ok := expectedReplyFor(StateBoundToAddress); ok {
		t.Error("BOUND_TO_ADDRESS should not expect any reply")
	}
}

func TestStateMessageType(t *testing.T) {
	cases := map[State]wire.MessageType{
		StateSendingSolicit:           wire.Solicit,
		StateSendingRequest:           wire.Request,
		StateSendingConfirm:           wire.Confirm,
		StateSendingRenew:             wire.Renew,
		StateSendingRebind:            wire.Rebind,
		StateSendingDecline:           wire.Decline,
		StateSendingRelease:           wire.Release,
		StateSendingInformationRequest: wire.InformationRequest,
	}
	for state, want := range cases {
		if got := stateMessageType(state); got != want {
			t.Errorf("stateMessageType(%v) = %v, want %v", state, got, want)
		}
	}
	if got := stateMessageType(StateInit); got != 0 {
		t.Errorf("stateMessageType(INIT) = %v, want 0", got)
	}
}

func TestMessageNeedsServerID(t *testing.T) {
	excluded := []wire.MessageType{wire.Solicit, wire.Rebind, wire.Confirm}
	for _, mt := range excluded {
		if messageNeedsServerID(mt) {
			t.Errorf("%v should not need server ID", mt)
		}
	}
	included := []wire.MessageType{wire.Request, wire.Renew, wire.Release, wire.Decline}
	for _, mt := range included {
		if !messageNeedsServerID(mt) {
			t.Errorf("%v should need server ID", mt)
		}
	}
}

func TestMessageCarriesIANA(t *testing.T) {
	if messageCarriesIANA(wire.InformationRequest) {
		t.Error("INFORMATION-REQUEST should not carry IA_NA")
	}
	if !messageCarriesIANA(wire.Solicit) {
		t.Error("SOLICIT should carry IA_NA")
	}
}

func TestMessageCarriesFQDN(t *testing.T) {
	for _, mt := range []wire.MessageType{wire.Solicit, wire.Request, wire.Renew, wire.Rebind} {
		if !messageCarriesFQDN(mt) {
			t.Errorf("%v should carry FQDN", mt)
		}
	}
	for _, mt := range []wire.MessageType{wire.Confirm, wire.Decline, wire.Release, wire.InformationRequest} {
		if messageCarriesFQDN(mt) {
			t.Errorf("%v should not carry FQDN", mt)
		}
	}
}

func TestMessageCarriesORO(t *testing.T) {
	if messageCarriesORO(wire.Decline) || messageCarriesORO(wire.Release) {
		t.Error("DECLINE/RELEASE should never carry ORO")
	}
	if !messageCarriesORO(wire.Solicit) || !messageCarriesORO(wire.InformationRequest) {
		t.Error("SOLICIT/INFORMATION-REQUEST should carry ORO")
	}
}

func TestZeroesLifetimes(t *testing.T) {
	for _, mt := range []wire.MessageType{wire.Solicit, wire.Confirm, wire.Decline, wire.Release} {
		if !zeroesLifetimes(mt) {
			t.Errorf("%v should zero lifetimes", mt)
		}
	}
	for _, mt := range []wire.MessageType{wire.Request, wire.Renew, wire.Rebind} {
		if zeroesLifetimes(mt) {
			t.Errorf("%v should not zero lifetimes", mt)
		}
	}
}

func TestRequestedOptionCodes(t *testing.T) {
	opts := identity.OptDNSServer | identity.OptDomainName
	codes := requestedOptionCodes(opts)
	if len(codes) != 2 {
		t.Fatalf("expected 2 codes, got %d: %v", len(codes), codes)
	}
	want := map[uint16]bool{wire.OptDNSServers: true, wire.OptDomainList: true}
	for _, c := range codes {
		if !want[c] {
			t.Errorf("unexpected code %d", c)
		}
	}
}

func TestInDeclineTarget(t *testing.T) {
	addr := net.ParseIP("2001:db8::1")
	if !inDeclineTarget(addr, nil) {
		t.Error("nil targets should match every address")
	}
	if !inDeclineTarget(addr, []net.IP{addr}) {
		t.Error("address present in targets should match")
	}
	if inDeclineTarget(addr, []net.IP{net.ParseIP("2001:db8::2")}) {
		t.Error("address absent from targets should not match")
	}
}

func TestClamp16(t *testing.T) {
	if clamp16(10) != 10 {
		t.Error("clamp16 should pass through small values")
	}
	if clamp16(70000) != 0xFFFF {
		t.Error("clamp16 should cap at 0xFFFF")
	}
}

func TestDUIDEqual(t *testing.T) {
	a := wire.DUID{Type: wire.DUIDLinkLayerOnly, HwType: wire.HwTypeEthernet, LinkLayer: []byte{1, 2, 3, 4, 5, 6}}
	b := wire.DUID{Type: wire.DUIDLinkLayerOnly, HwType: wire.HwTypeEthernet, LinkLayer: []byte{1, 2, 3, 4, 5, 6}}
	if !duidEqual(a, b) {
		t.Error("identical DUIDs should compare equal")
	}
	c := b
	c.LinkLayer = []byte{1, 2, 3, 4, 5, 7}
	if duidEqual(a, c) {
		t.Error("differing link-layer addresses should not compare equal")
	}
	d := b
	d.HwType = wire.HwTypeEUI64
	if duidEqual(a, d) {
		t.Error("differing hardware types should not compare equal")
	}
}

func TestStatusCodeName(t *testing.T) {
	cases := map[wire.StatusCode]string{
		wire.StatusSuccess:      "Success",
		wire.StatusNoAddrsAvail: "NoAddrsAvail",
		wire.StatusNoBinding:    "NoBinding",
		wire.StatusNotOnLink:    "NotOnLink",
		wire.StatusCode(999):    "Unknown",
	}
	for code, want := range cases {
		if got := statusCodeName(code); got != want {
			t.Errorf("statusCodeName(%d) = %s, want %s", code, got, want)
		}
	}
}

// fakeIPStack is a minimal in-memory netio.IPStack for session-level tests
// that never touch the real network.
type fakeIPStack struct {
	nextIndex int
	deleted   []int
}

func (f *fakeIPStack) AddressSet(iface string, address net.IP, prefix int) (int, error) {
	f.nextIndex++
	return f.nextIndex, nil
}
func (f *fakeIPStack) AddressDelete(index int) error {
	f.deleted = append(f.deleted, index)
	return nil
}
func (f *fakeIPStack) DefaultRouterAdd(address net.IP, iface string, lifetime uint32) error { return nil }
func (f *fakeIPStack) DefaultRouterDelete(address net.IP) error                             { return nil }
func (f *fakeIPStack) SourceAddressForUnicast(dest net.IP) (net.IP, error) {
	return net.ParseIP("2001:db8::1"), nil
}
func (f *fakeIPStack) LinkLocalAddress(iface string) (net.IP, error) {
	return net.ParseIP("fe80::1"), nil
}
func (f *fakeIPStack) NotifyAddressChange(fn func(address net.IP, succeeded bool)) error {
	return nil
}

func newTestSession(t *testing.T, maxAddrs int) (*Session, *fakeIPStack) {
	t.Helper()
	stack := &fakeIPStack{}
	s := NewSession(Config{Interface: "eth0", MaxIAAddresses: maxAddrs}, stack)
	if err := s.identity.CreateClientDUID(wire.DUIDLinkLayerOnly, wire.HwTypeEthernet, 0, []byte{1, 2, 3, 4, 5, 6}); err != nil {
		t.Fatalf("CreateClientDUID: %v", err)
	}
	if err := s.identity.CreateClientIANA(1, 0, 0); err != nil {
		t.Fatalf("CreateClientIANA: %v", err)
	}
	s.leaseTrk = lease.NewTracker(0, 0)
	return s, stack
}

func TestRegisterAddressesWithDADEnabled(t *testing.T) {
	s, _ := newTestSession(t, 1)
	s.cfg.DADEnabled = true
	addr := net.ParseIP("2001:db8::10")
	if err := s.identity.AddIA(addr, 1800, 2880); err != nil {
		t.Fatalf("AddIA: %v", err)
	}

	s.registerAddresses()

	rec := s.identity.AddressesWithStatus(identity.StatusDadTentative)
	if len(rec) != 1 || !rec[0].Address.Equal(addr) {
		t.Errorf("expected one address in dad-tentative, got %v", rec)
	}
}

func TestRegisterAddressesWithoutDAD(t *testing.T) {
	s, _ := newTestSession(t, 1)
	addr := net.ParseIP("2001:db8::10")
	if err := s.identity.AddIA(addr, 1800, 2880); err != nil {
		t.Fatalf("AddIA: %v", err)
	}

	s.registerAddresses()

	rec := s.identity.AddressesWithStatus(identity.StatusValid)
	if len(rec) != 1 {
		t.Errorf("expected address to become valid immediately without DAD, got %v", rec)
	}
}

func TestHandleDADEventSuccess(t *testing.T) {
	s, _ := newTestSession(t, 1)
	addr := net.ParseIP("2001:db8::10")
	if err := s.identity.AddIA(addr, 1800, 2880); err != nil {
		t.Fatalf("AddIA: %v", err)
	}
	s.identity.UpdateAddressStatus(addr, identity.StatusDadTentative, 1)

	s.handleDADEvent(dadEvent{address: addr, succeeded: true})

	rec := s.identity.AddressesWithStatus(identity.StatusValid)
	if len(rec) != 1 {
		t.Error("expected address to become valid after DAD success")
	}
}

func TestHandleDADEventFailureWhileNotBound(t *testing.T) {
	s, _ := newTestSession(t, 1)
	addr := net.ParseIP("2001:db8::10")
	if err := s.identity.AddIA(addr, 1800, 2880); err != nil {
		t.Fatalf("AddIA: %v", err)
	}
	s.identity.UpdateAddressStatus(addr, identity.StatusDadTentative, 1)
	s.state = StateSendingRequest

	s.handleDADEvent(dadEvent{address: addr, succeeded: false})

	rec := s.identity.AddressesWithStatus(identity.StatusDadFailure)
	if len(rec) != 1 {
		t.Error("expected address to move to dad-failure")
	}
}

func TestTickLeaseExpiresOneAddressAmongMany(t *testing.T) {
	s, stack := newTestSession(t, 2)
	expired := net.ParseIP("2001:db8::1")
	kept := net.ParseIP("2001:db8::2")
	if err := s.identity.AddIA(expired, 100, 100); err != nil {
		t.Fatalf("AddIA expired: %v", err)
	}
	if err := s.identity.AddIA(kept, 9000, 9000); err != nil {
		t.Fatalf("AddIA kept: %v", err)
	}
	s.identity.UpdateAddressStatus(expired, identity.StatusValid, 5)
	s.identity.UpdateAddressStatus(kept, identity.StatusValid, 6)

	// T1/T2 set far beyond this test's accrued count so the tracker's own
	// Tick() stays EventNone; only AddressExpiry's accrued-vs-validLifetime
	// comparison is under test here.
	s.leaseTrk = lease.NewTracker(100000, 200000)
	for i := 0; i < 100; i++ {
		s.leaseTrk.Tick()
	}
	s.state = StateBoundToAddress

	s.tickLease()

	remaining := s.identity.AddressesWithStatus(identity.StatusValid)
	if len(remaining) != 1 || !remaining[0].Address.Equal(kept) {
		t.Errorf("expected only %v to remain valid, got %v", kept, remaining)
	}
	found := false
	for _, idx := range stack.deleted {
		if idx == 5 {
			found = true
		}
	}
	if !found {
		t.Error("expected expired address's stack index to be deleted")
	}
}

func TestReleaseAllAddressesDeletesStackIndices(t *testing.T) {
	s, stack := newTestSession(t, 1)
	addr := net.ParseIP("2001:db8::10")
	if err := s.identity.AddIA(addr, 1800, 2880); err != nil {
		t.Fatalf("AddIA: %v", err)
	}
	s.identity.UpdateAddressStatus(addr, identity.StatusValid, 7)

	s.releaseAllAddresses()

	if len(stack.deleted) != 1 || stack.deleted[0] != 7 {
		t.Errorf("expected stack index 7 to be deleted, got %v", stack.deleted)
	}
	if len(s.identity.Addresses()) == 0 {
		t.Fatal("identity store should retain its slot count")
	}
	for _, rec := range s.identity.Addresses() {
		if rec.Status != identity.StatusEmpty {
			t.Error("expected every IA-Address record to be cleared")
		}
	}
}

func TestApplyReplyDeclineRemovesDeclinedAddressesAndReturnsToInit(t *testing.T) {
	s, stack := newTestSession(t, 2)
	declined := net.ParseIP("2001:db8::1")
	kept := net.ParseIP("2001:db8::2")
	if err := s.identity.AddIA(declined, 1800, 2880); err != nil {
		t.Fatalf("AddIA declined: %v", err)
	}
	if err := s.identity.AddIA(kept, 1800, 2880); err != nil {
		t.Fatalf("AddIA kept: %v", err)
	}
	s.identity.UpdateAddressStatus(declined, identity.StatusDadFailure, 5)
	s.identity.UpdateAddressStatus(kept, identity.StatusValid, 6)
	s.declineTarget = []net.IP{declined}
	s.state = StateSendingDecline
	s.transactionID = [3]byte{1, 2, 3}

	msg := buildReply(t, s.transactionID, nil)
	s.applyReply(msg)

	if s.state != StateInit {
		t.Errorf("expected state INIT after DECLINE -> REPLY, got %v", s.state)
	}
	if s.declineTarget != nil {
		t.Error("expected declineTarget cleared after DECLINE -> REPLY")
	}
	for _, rec := range s.identity.Addresses() {
		if rec.Address != nil && rec.Address.Equal(declined) {
			t.Errorf("expected declined address removed from the identity store, got %+v", rec)
		}
	}
	found := false
	for _, idx := range stack.deleted {
		if idx == 5 {
			found = true
		}
	}
	if !found {
		t.Error("expected declined address's stack index to be deleted")
	}
	recs := s.identity.AddressesWithStatus(identity.StatusValid)
	if len(recs) != 1 || !recs[0].Address.Equal(kept) {
		t.Errorf("expected the non-declined address to remain, got %+v", recs)
	}
}

func TestRemoveDeclinedAddressesOnlyTargetsNamedAddresses(t *testing.T) {
	s, stack := newTestSession(t, 2)
	declined := net.ParseIP("2001:db8::1")
	otherFailure := net.ParseIP("2001:db8::2")
	if err := s.identity.AddIA(declined, 1800, 2880); err != nil {
		t.Fatalf("AddIA declined: %v", err)
	}
	if err := s.identity.AddIA(otherFailure, 1800, 2880); err != nil {
		t.Fatalf("AddIA otherFailure: %v", err)
	}
	s.identity.UpdateAddressStatus(declined, identity.StatusDadFailure, 1)
	s.identity.UpdateAddressStatus(otherFailure, identity.StatusDadFailure, 2)
	s.declineTarget = []net.IP{declined}

	s.removeDeclinedAddresses()

	remaining := s.identity.AddressesWithStatus(identity.StatusDadFailure)
	if len(remaining) != 1 || !remaining[0].Address.Equal(otherFailure) {
		t.Errorf("expected only the named address removed, got %+v", remaining)
	}
	if len(stack.deleted) != 1 || stack.deleted[0] != 1 {
		t.Errorf("expected only index 1 deleted, got %v", stack.deleted)
	}
}

// buildReply constructs a decodable REPLY message with no IA_NA option (or
// the caller's), for exercising applyReply's per-state dispatch without a
// real network round trip.
func buildReply(t *testing.T, txID [3]byte, ia *wire.IAAddr) *wire.Message {
	t.Helper()
	buf := make([]byte, 512)
	enc := wire.NewEncoder(buf, 512+wire.IPv6HeaderLen+wire.UDPHeaderLen)
	mustOK(t, enc.Header(wire.Reply, txID))
	mustOK(t, enc.ClientID((wire.DUID{Type: wire.DUIDLinkLayerOnly, HwType: wire.HwTypeEthernet, LinkLayer: []byte{1, 2, 3, 4, 5, 6}}).Encode()))
	if ia != nil {
		mustOK(t, enc.IANA(1, 1800, 2880, []wire.IAAddr{*ia}))
	}
	msg, err := wire.DecodeMessage(enc.Bytes())
	if err != nil {
		t.Fatalf("decode constructed reply: %v", err)
	}
	return msg
}

func TestApplyAdvertisePreferenceSelection(t *testing.T) {
	s, _ := newTestSession(t, 1)
	s.state = StateSendingSolicit
	s.transactionID = [3]byte{1, 2, 3}

	low := buildAdvertise(t, s.transactionID, 10, "2001:db8::1")
	high := buildAdvertise(t, s.transactionID, 200, "2001:db8::2")

	s.applyAdvertise(low)
	if s.best == nil || s.best.preference != 10 {
		t.Fatalf("expected low-preference candidate recorded, got %+v", s.best)
	}

	s.applyAdvertise(high)
	if s.best == nil || s.best.preference != 200 {
		t.Fatalf("expected higher-preference candidate to replace low one, got %+v", s.best)
	}

	// A subsequent lower-preference ADVERTISE must not displace the best.
	s.applyAdvertise(low)
	if s.best.preference != 200 {
		t.Errorf("lower-preference advertise should not displace the recorded best, got %d", s.best.preference)
	}
}

func TestApplyAdvertiseDropsNoAddrsAvail(t *testing.T) {
	s, _ := newTestSession(t, 1)
	s.state = StateSendingSolicit
	s.transactionID = [3]byte{9, 9, 9}

	msg := buildAdvertiseWithStatus(t, s.transactionID, wire.StatusNoAddrsAvail)
	s.applyAdvertise(msg)

	if s.best != nil {
		t.Error("an ADVERTISE with NoAddrsAvail must never become a candidate")
	}
}

// buildAdvertise constructs a decodable ADVERTISE message carrying one
// IA-Address and the given preference, for exercising applyAdvertise
// without a real network round trip.
func buildAdvertise(t *testing.T, txID [3]byte, preference uint8, addr string) *wire.Message {
	t.Helper()
	serverDUID := wire.DUID{Type: wire.DUIDLinkLayerOnly, HwType: wire.HwTypeEthernet, LinkLayer: []byte{6, 5, 4, 3, 2, 1}}

	buf := make([]byte, 512)
	enc := wire.NewEncoder(buf, 512+wire.IPv6HeaderLen+wire.UDPHeaderLen)
	mustOK(t, enc.Header(wire.Advertise, txID))
	mustOK(t, enc.ClientID((wire.DUID{Type: wire.DUIDLinkLayerOnly, HwType: wire.HwTypeEthernet, LinkLayer: []byte{1, 2, 3, 4, 5, 6}}).Encode()))
	mustOK(t, enc.ServerID(serverDUID.Encode()))
	mustOK(t, enc.Preference(preference))

	var ia wire.IAAddr
	copy(ia.Address[:], net.ParseIP(addr).To16())
	ia.PreferredLifetime = 1800
	ia.ValidLifetime = 2880
	mustOK(t, enc.IANA(1, 1800, 2880, []wire.IAAddr{ia}))

	msg, err := wire.DecodeMessage(enc.Bytes())
	if err != nil {
		t.Fatalf("decode constructed advertise: %v", err)
	}
	return msg
}

// buildAdvertiseWithStatus hand-assembles an ADVERTISE whose IA_NA carries a
// nested OPTION_STATUS_CODE, a shape the Encoder has no direct call for.
func buildAdvertiseWithStatus(t *testing.T, txID [3]byte, code wire.StatusCode) *wire.Message {
	t.Helper()
	clientDUID := (wire.DUID{Type: wire.DUIDLinkLayerOnly, HwType: wire.HwTypeEthernet, LinkLayer: []byte{1, 2, 3, 4, 5, 6}}).Encode()
	serverDUID := (wire.DUID{Type: wire.DUIDLinkLayerOnly, HwType: wire.HwTypeEthernet, LinkLayer: []byte{6, 5, 4, 3, 2, 1}}).Encode()

	statusData := make([]byte, 2)
	putUint16(statusData, uint16(code))
	statusOpt := encodeRawOption(wire.OptStatusCode, statusData)

	iaNAData := make([]byte, 12)
	putUint32(iaNAData[0:4], 1)
	iaNAData = append(iaNAData, statusOpt...)

	var body []byte
	body = append(body, encodeRawOption(wire.OptClientID, clientDUID)...)
	body = append(body, encodeRawOption(wire.OptServerID, serverDUID)...)
	body = append(body, encodeRawOption(wire.OptIANA, iaNAData)...)

	raw := make([]byte, 4+len(body))
	raw[0] = byte(wire.Advertise)
	copy(raw[1:4], txID[:])
	copy(raw[4:], body)

	msg, err := wire.DecodeMessage(raw)
	if err != nil {
		t.Fatalf("decode constructed advertise: %v", err)
	}
	return msg
}

func encodeRawOption(code uint16, data []byte) []byte {
	out := make([]byte, 4+len(data))
	putUint16(out[0:2], code)
	putUint16(out[2:4], uint16(len(data)))
	copy(out[4:], data)
	return out
}

func putUint16(b []byte, v uint16) {
	b[0] = byte(v >> 8)
	b[1] = byte(v)
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func mustOK(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}
}
