// Package client implements the State Machine / Transaction Driver (spec
// section 4.5): the DHCPv6 message sequence SOLICIT/REQUEST/RENEW/REBIND/
// CONFIRM/RELEASE/DECLINE/INFORMATION-REQUEST, composed via the wire codec
// and identity store, sent over the netio endpoint, and driven by one
// worker goroutine plus the retransmission scheduler and lease timekeeper.
package client

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	dherrors "github.com/krisarmstrong/dhcp6c/pkg/dhcpv6/errors"
	"github.com/krisarmstrong/dhcp6c/pkg/dhcpv6/identity"
	"github.com/krisarmstrong/dhcp6c/pkg/dhcpv6/lease"
	"github.com/krisarmstrong/dhcp6c/pkg/dhcpv6/netio"
	"github.com/krisarmstrong/dhcp6c/pkg/dhcpv6/sched"
	"github.com/krisarmstrong/dhcp6c/pkg/dhcpv6/wire"
	"github.com/krisarmstrong/dhcp6c/pkg/logging"
	"github.com/krisarmstrong/dhcp6c/pkg/stats"
)

// State is one of the ten session states of spec section 4.5.
type State int

const (
	StateInit State = iota
	StateSendingSolicit
	StateSendingRequest
	StateSendingConfirm
	StateSendingRenew
	StateSendingRebind
	StateSendingDecline
	StateSendingRelease
	StateSendingInformationRequest
	StateBoundToAddress
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateSendingSolicit:
		return "SENDING_SOLICIT"
	case StateSendingRequest:
		return "SENDING_REQUEST"
	case StateSendingConfirm:
		return "SENDING_CONFIRM"
	case StateSendingRenew:
		return "SENDING_RENEW"
	case StateSendingRebind:
		return "SENDING_REBIND"
	case StateSendingDecline:
		return "SENDING_DECLINE"
	case StateSendingRelease:
		return "SENDING_RELEASE"
	case StateSendingInformationRequest:
		return "SENDING_INFORMATION_REQUEST"
	case StateBoundToAddress:
		return "BOUND_TO_ADDRESS"
	default:
		return "UNKNOWN"
	}
}

// Config configures a Session at creation time.
type Config struct {
	Interface      string
	HardwareAddr   net.HardwareAddr
	MaxIAAddresses int
	RapidCommit    bool
	DADEnabled     bool

	// OnStateChange fires once per transition, after the mutation is
	// visible under the session mutex (spec section 5's ordering guarantee).
	OnStateChange func(old, new State)
	// OnServerError fires at most once per received reply option carrying
	// a non-success status (spec section 5, section 7).
	OnServerError func(status wire.StatusCode, msgType wire.MessageType)

	Stats *stats.Statistics
}

type requestKind int

const (
	reqSolicit requestKind = iota
	reqConfirm
	reqRenew
	reqRebind
	reqRelease
	reqDecline
	reqInformationRequest
)

type request struct {
	kind    requestKind
	addrs   []net.IP // DECLINE target addresses; nil means "all DadFailure"
	replyCh chan error
}

type dadEvent struct {
	address   net.IP
	succeeded bool
}

// advertiseCandidate is the best ADVERTISE seen so far during SOLICIT
// collection (spec section 4.5 point 4/6).
type advertiseCandidate struct {
	serverDUID *wire.DUID
	preference uint8
	ianas      []wire.DecodedIANA
}

// Session owns exactly one DUID, one IA_NA, and one session state (spec
// section 3). It is safe for concurrent use from the host; the session
// mutex serialises every field except the lease/scheduler coarse ticks,
// which run inside the same worker goroutine and need no separate locking.
type Session struct {
	mu sync.Mutex

	cfg      Config
	identity *identity.Store
	leaseTrk *lease.Tracker
	ipStack  netio.IPStack
	endpoint *netio.Endpoint
	capture  *netio.Capture

	state         State
	transactionID [3]byte
	timer         sched.Timer
	best          *advertiseCandidate
	declineTarget []net.IP

	running     bool
	stopChan    chan struct{}
	wg          sync.WaitGroup
	requestChan chan request
	dadChan     chan dadEvent
}

// NewSession creates a Session bound to no endpoint yet; call Identity() to
// configure the client DUID and IA_NA before Start.
func NewSession(cfg Config, ipStack netio.IPStack) *Session {
	if cfg.MaxIAAddresses <= 0 {
		cfg.MaxIAAddresses = identity.DefaultMaxIAAddresses
	}
	return &Session{
		cfg:         cfg,
		identity:    identity.NewStore(cfg.MaxIAAddresses),
		ipStack:     ipStack,
		state:       StateInit,
		stopChan:    make(chan struct{}),
		requestChan: make(chan request, 8),
		dadChan:     make(chan dadEvent, 8),
	}
}

// Identity exposes the Identity Store for pre-start configuration (client
// DUID, IA_NA, requested options, FQDN).
func (s *Session) Identity() *identity.Store { return s.identity }

// SetCapture attaches the optional diagnostic pcap recorder; it must be
// called before Start. Capture mirrors the wire traffic, it never changes
// what is sent or how replies are interpreted.
func (s *Session) SetCapture(c *netio.Capture) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.capture = c
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start validates the identity store is configured, binds the UDP
// endpoint, registers the DAD callback, and launches the worker goroutine
// (spec section 5).
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return dherrors.New(dherrors.KindConfiguration, dherrors.CodeAlreadyStarted,
			"session already started")
	}
	if s.identity.ClientDUID() == nil {
		s.mu.Unlock()
		return dherrors.New(dherrors.KindConfiguration, dherrors.CodeMissingDUID, "client DUID not configured")
	}
	if s.identity.IANA() == nil {
		s.mu.Unlock()
		return dherrors.New(dherrors.KindConfiguration, dherrors.CodeMissingIANA, "IA_NA not configured")
	}
	s.mu.Unlock()

	endpoint, err := netio.Open(s.cfg.Interface)
	if err != nil {
		return fmt.Errorf("client: open endpoint: %w", err)
	}

	if err := s.ipStack.NotifyAddressChange(s.onDADResult); err != nil {
		_ = endpoint.Close()
		return fmt.Errorf("client: register DAD callback: %w", err)
	}

	s.mu.Lock()
	endpoint.SetCapture(s.capture)
	s.endpoint = endpoint
	s.leaseTrk = lease.NewTracker(0, 0)
	s.running = true
	s.mu.Unlock()

	s.identity.SetStarted(true)

	s.wg.Add(1)
	go s.worker(ctx)
	return nil
}

// Stop idles the worker and releases the endpoint (spec section 5's
// cancellation contract).
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopChan)
	s.wg.Wait()

	s.identity.SetStarted(false)
	_ = s.endpoint.Close()
}

// onDADResult is invoked by the IP stack collaborator from its own
// goroutine; it only enqueues, never mutates the session directly (spec
// section 5's single-threaded reply-handling rule).
func (s *Session) onDADResult(address net.IP, succeeded bool) {
	select {
	case s.dadChan <- dadEvent{address: address, succeeded: succeeded}:
	default:
	}
}

// enqueue hands kind to the worker goroutine and blocks for its outcome;
// the host-visible request methods are synchronous calls onto an
// asynchronous worker (spec section 5's single-writer rule for session
// state).
func (s *Session) enqueue(kind requestKind, addrs []net.IP) error {
	req := request{kind: kind, addrs: addrs, replyCh: make(chan error, 1)}
	select {
	case s.requestChan <- req:
	default:
		return dherrors.New(dherrors.KindState, dherrors.CodeNotBound, "request queue full")
	}
	select {
	case err := <-req.replyCh:
		return err
	case <-s.stopChan:
		return dherrors.New(dherrors.KindState, dherrors.CodeNotBound, "session stopped")
	}
}

// RequestSolicit starts SOLICIT, optionally with Rapid Commit.
func (s *Session) RequestSolicit() error { return s.enqueue(reqSolicit, nil) }

// RequestConfirm starts CONFIRM.
func (s *Session) RequestConfirm() error { return s.enqueue(reqConfirm, nil) }

// RequestRenew forces RENEW even before T1 fires.
func (s *Session) RequestRenew() error { return s.enqueue(reqRenew, nil) }

// RequestRebind forces REBIND even before T2 fires.
func (s *Session) RequestRebind() error { return s.enqueue(reqRebind, nil) }

// RequestRelease starts RELEASE.
func (s *Session) RequestRelease() error { return s.enqueue(reqRelease, nil) }

// RequestDecline starts DECLINE for those of the given addresses that are
// in DadFailure, or for every address in DadFailure when addrs is nil. A
// given address that is not in DadFailure is not declined.
func (s *Session) RequestDecline(addrs []net.IP) error { return s.enqueue(reqDecline, addrs) }

// RequestInformationRequest starts INFORMATION-REQUEST.
func (s *Session) RequestInformationRequest() error { return s.enqueue(reqInformationRequest, nil) }

func (s *Session) setState(new State) {
	old := s.state
	if old == new {
		return
	}
	s.state = new
	if s.cfg.Stats != nil {
		s.cfg.Stats.IncrementStateTransition(old.String(), new.String())
	}
	logging.Protocol(logging.SubsystemClient, "%s -> %s", old, new)
	if s.cfg.OnStateChange != nil {
		s.cfg.OnStateChange(old, new)
	}
}

// newTransactionID clears then regenerates the 24-bit transaction ID from
// the interface MAC and a random salt (spec section 4.5).
func (s *Session) newTransactionID() {
	s.transactionID = sched.GenerateTransactionID(s.cfg.HardwareAddr)
}

// worker is the single long-lived transaction driver goroutine (spec
// section 5), grounded on stack.go's receiveThread/sendThread select-loop
// shape collapsed into one goroutine since this session drives at most one
// transaction at a time.
func (s *Session) worker(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopChan:
			return
		case req := <-s.requestChan:
			s.mu.Lock()
			err := s.handleRequest(req.kind, req.addrs)
			s.mu.Unlock()
			req.replyCh <- err
		case evt := <-s.dadChan:
			s.mu.Lock()
			s.handleDADEvent(evt)
			s.mu.Unlock()
		default:
		}

		data, src, err := s.endpoint.Receive(ctx, time.Second)
		if err != nil {
			continue
		}

		s.mu.Lock()
		if data != nil {
			s.handleIncoming(data, src)
		} else {
			s.handleTick()
		}
		s.mu.Unlock()
	}
}

// handleRequest begins a new transaction for kind, composing and sending
// the first message (spec section 4.5: entering a new transaction clears
// the transaction ID to 0, then the next send generates a fresh one).
func (s *Session) handleRequest(kind requestKind, addrs []net.IP) error {
	var msgType wire.MessageType
	var target State

	switch kind {
	case reqSolicit:
		msgType, target = wire.Solicit, StateSendingSolicit
		s.best = nil
	case reqConfirm:
		msgType, target = wire.Confirm, StateSendingConfirm
	case reqRenew:
		msgType, target = wire.Renew, StateSendingRenew
	case reqRebind:
		msgType, target = wire.Rebind, StateSendingRebind
	case reqRelease:
		msgType, target = wire.Release, StateSendingRelease
	case reqDecline:
		msgType, target = wire.Decline, StateSendingDecline
		s.declineTarget = addrs
	case reqInformationRequest:
		msgType, target = wire.InformationRequest, StateSendingInformationRequest
	default:
		return dherrors.New(dherrors.KindState, dherrors.CodeNotBound, "unknown request kind")
	}

	if msgType == wire.Renew || msgType == wire.Rebind {
		s.timer = sched.NewTimerWithParams(s.dynamicParams(msgType))
	} else {
		s.timer = sched.NewTimer(msgType)
	}
	s.newTransactionID()
	s.setState(target)
	return s.send(msgType)
}

// dynamicParams returns msgType's RFC 3315 section 14 parameters with
// RENEW's MRD computed as T2-minus-accrued and REBIND's MRD as
// max-valid-lifetime-minus-accrued (spec section 4.3's table), since
// neither bound is known until a lease is in hand.
func (s *Session) dynamicParams(msgType wire.MessageType) sched.Params {
	p, _ := sched.ParamsFor(msgType)
	accrued := s.leaseTrk.Accrued()
	switch msgType {
	case wire.Renew:
		if iana := s.identity.IANA(); iana != nil {
			p.MRD = mrdRemaining(iana.T2, accrued)
		}
	case wire.Rebind:
		p.MRD = mrdRemaining(s.maxValidLifetime(), accrued)
	}
	return p
}

// mrdRemaining returns deadline-minus-accrued in whole seconds, or 0
// (unlimited) when deadline is unset, infinite, or already elapsed.
func mrdRemaining(deadline, accrued uint32) int {
	if deadline == 0 || deadline == wire.Infinity || deadline <= accrued {
		return 0
	}
	return int(deadline - accrued)
}

// maxValidLifetime returns the largest ValidLifetime among the session's
// Valid IA-Addresses (spec section 4.3's REBIND MRD formula).
func (s *Session) maxValidLifetime() uint32 {
	var max uint32
	for _, rec := range s.identity.AddressesWithStatus(identity.StatusValid) {
		if rec.ValidLifetime > max {
			max = rec.ValidLifetime
		}
	}
	return max
}

// send composes and transmits the current transaction's message, reusing
// the transaction ID across retransmits (spec section 4.3 point 3).
func (s *Session) send(msgType wire.MessageType) error {
	buf, err := composeMessage(s, msgType)
	if err != nil {
		return err
	}
	dest := net.ParseIP(netio.AllServersMulticast)
	src, err := s.ipStack.LinkLocalAddress(s.cfg.Interface)
	if err != nil {
		return fmt.Errorf("client: resolve link-local source: %w", err)
	}
	if err := s.endpoint.SendFromSource(buf, dest, netio.ServerPort, src, -1); err != nil {
		return err
	}
	if s.cfg.Stats != nil {
		s.cfg.Stats.IncrementMessageSent(msgType.String())
	}
	return nil
}

// handleTick fires once per coarse clock tick with no packet pending (spec
// section 4.3's elapsed-time/backoff bookkeeping and section 4.4's accrued
// counter, collapsed onto the same one-second cadence as the blocking
// receive call above). The lease tracker samples on every tick the session
// holds a binding, not only while BOUND: RENEW and REBIND still need T1/T2
// and per-address expiry tracked while their own retransmission timer runs
// alongside it.
func (s *Session) handleTick() {
	if s.state != StateInit {
		s.tickLease()
	}
	if s.state == StateBoundToAddress || s.state == StateInit {
		return
	}
	s.tickScheduler()
}

func (s *Session) tickScheduler() {
	msgType := stateMessageType(s.state)
	if msgType == 0 {
		return
	}

	prevCount := s.timer.Count()
	outcome := s.timer.Tick()

	switch outcome {
	case sched.OutcomeWait:
		return
	case sched.OutcomeRetransmit:
		if s.state == StateSendingSolicit && prevCount == 0 && s.best != nil {
			s.acceptBestAdvertise()
			return
		}
		if s.cfg.Stats != nil {
			s.cfg.Stats.IncrementRetransmit()
		}
		_ = s.send(msgType)
	case sched.OutcomeExhausted:
		if s.cfg.Stats != nil {
			s.cfg.Stats.IncrementExhausted()
		}
		s.releaseAllAddresses()
		s.setState(StateInit)
	}
}

// tickLease advances the accrued-time counter and enforces per-address
// valid-lifetime expiry (spec section 4.4). It is a no-op while the tracker
// isn't armed: before any lease has been bound, and while the bound lease's
// T1 is 0 or INFINITY, when valid-lifetime expiry is not checked either. The
// RenewDue/
// RebindDue transitions are each gated on the state they fire from so a
// Tracker that keeps reporting the same crossing tick after tick (spec
// section 4.4 arms rebind detection once and leaves it armed) only starts
// one transaction, not one per tick.
func (s *Session) tickLease() {
	if !s.leaseTrk.Armed() {
		return
	}

	for _, rec := range s.identity.AddressesWithStatus(identity.StatusValid) {
		if lease.AddressExpiry(s.leaseTrk.Accrued(), rec.ValidLifetime) {
			s.identity.RemoveIA(rec.Address)
			if rec.StackIndex >= 0 {
				_ = s.ipStack.AddressDelete(rec.StackIndex)
			}
		}
	}
	if len(s.identity.AddressesWithStatus(identity.StatusValid)) == 0 {
		s.setState(StateInit)
		_ = s.handleRequest(reqSolicit, nil)
		return
	}

	switch s.leaseTrk.Tick() {
	case lease.EventRenewDue:
		if s.state == StateBoundToAddress {
			_ = s.handleRequest(reqRenew, nil)
		}
	case lease.EventRebindDue:
		if s.state == StateSendingRenew {
			_ = s.handleRequest(reqRebind, nil)
		}
	}
}

func stateMessageType(state State) wire.MessageType {
	switch state {
	case StateSendingSolicit:
		return wire.Solicit
	case StateSendingRequest:
		return wire.Request
	case StateSendingConfirm:
		return wire.Confirm
	case StateSendingRenew:
		return wire.Renew
	case StateSendingRebind:
		return wire.Rebind
	case StateSendingDecline:
		return wire.Decline
	case StateSendingRelease:
		return wire.Release
	case StateSendingInformationRequest:
		return wire.InformationRequest
	default:
		return 0
	}
}

// handleDADEvent applies one DAD result (spec section 4.5): success moves
// the address to Valid; failure moves it to DadFailure and, when the session
// is BOUND_TO_ADDRESS, starts DECLINE at once. In any other state the
// address stays in DadFailure and no DECLINE is started.
func (s *Session) handleDADEvent(evt dadEvent) {
	if evt.succeeded {
		s.identity.UpdateAddressStatus(evt.address, identity.StatusValid, -1)
		return
	}
	s.identity.UpdateAddressStatus(evt.address, identity.StatusDadFailure, -1)
	if s.state == StateBoundToAddress {
		_ = s.handleRequest(reqDecline, nil)
	}
}

// registerAddresses offers every Initial IA-Address to the IP stack (spec
// section 4.5's address-registration rule).
func (s *Session) registerAddresses() {
	for _, rec := range s.identity.AddressesWithStatus(identity.StatusInitial) {
		index, err := s.ipStack.AddressSet(s.cfg.Interface, rec.Address, 64)
		if err != nil {
			continue
		}
		if s.cfg.DADEnabled {
			s.identity.UpdateAddressStatus(rec.Address, identity.StatusDadTentative, index)
		} else {
			s.identity.UpdateAddressStatus(rec.Address, identity.StatusValid, index)
		}
	}
}
