package client

import (
	"net"

	"github.com/krisarmstrong/dhcp6c/pkg/dhcpv6/identity"
	"github.com/krisarmstrong/dhcp6c/pkg/dhcpv6/sched"
	"github.com/krisarmstrong/dhcp6c/pkg/dhcpv6/wire"
)

// handleIncoming decodes one received datagram and applies it against the
// current transaction, if any (spec section 4.5's reply-acceptance rules
// 1-6). Decode failures and mismatched replies are silently dropped, never
// surfaced to the host, since a malformed or unsolicited packet on the wire
// is not a client-visible error (spec section 7).
func (s *Session) handleIncoming(data []byte, src net.IP) {
	msg, err := wire.DecodeMessage(data)
	if err != nil {
		return
	}

	if !s.acceptable(msg) {
		return
	}

	if s.cfg.Stats != nil {
		s.cfg.Stats.IncrementMessageReceived(msg.Type.String())
	}

	switch msg.Type {
	case wire.Advertise:
		s.applyAdvertise(msg)
	case wire.Reply:
		s.applyReply(msg)
	case wire.Reconfigure:
		// RECONFIGURE authentication is out of scope (spec section 1); the
		// client does not act on unauthenticated reconfigure requests.
	}
}

// acceptable implements spec section 4.5's reply acceptance rules 1-3: the
// message type must be a reply to the in-flight request, the transaction ID
// must match, and the client DUID echoed back must match.
func (s *Session) acceptable(msg *wire.Message) bool {
	wantType, ok := expectedReplyFor(s.state)
	if !ok {
		return false
	}
	if msg.Type != wantType {
		isRapidCommitReply := wantType == wire.Advertise && msg.Type == wire.Reply &&
			s.cfg.RapidCommit && wire.Find(msg.Options, wire.OptRapidCommit) != nil
		if !isRapidCommitReply {
			return false
		}
	}
	if msg.TransactionID != s.transactionID {
		return false
	}

	clientIDOpt := wire.Find(msg.Options, wire.OptClientID)
	if clientIDOpt == nil {
		return false
	}
	gotDUID, err := wire.DecodeDUID(clientIDOpt.Data)
	if err != nil {
		return false
	}
	mine := s.identity.ClientDUID()
	if mine == nil || !duidEqual(*gotDUID, *mine) {
		return false
	}
	return true
}

func duidEqual(a, b wire.DUID) bool {
	if a.Type != b.Type || a.HwType != b.HwType {
		return false
	}
	if len(a.LinkLayer) != len(b.LinkLayer) {
		return false
	}
	for i := range a.LinkLayer {
		if a.LinkLayer[i] != b.LinkLayer[i] {
			return false
		}
	}
	return true
}

// expectedReplyFor maps a SENDING_* state to the message type a correctly
// addressed reply must carry (spec section 4.5's per-state outcome table).
func expectedReplyFor(state State) (wire.MessageType, bool) {
	switch state {
	case StateSendingSolicit:
		return wire.Advertise, true
	case StateSendingRequest, StateSendingRenew, StateSendingRebind,
		StateSendingConfirm, StateSendingRelease, StateSendingDecline,
		StateSendingInformationRequest:
		return wire.Reply, true
	default:
		return 0, false
	}
}

// applyAdvertise implements spec section 4.5 point 4: an ADVERTISE is
// either the immediate Rapid-Commit-equivalent accept (preference 255), or
// a candidate recorded for comparison once the first retransmission timeout
// closes the collection window.
func (s *Session) applyAdvertise(msg *wire.Message) {
	serverIDOpt := wire.Find(msg.Options, wire.OptServerID)
	if serverIDOpt == nil {
		return
	}
	serverDUID, err := wire.DecodeDUID(serverIDOpt.Data)
	if err != nil {
		return
	}

	ianaOpt := wire.Find(msg.Options, wire.OptIANA)
	if ianaOpt == nil {
		return
	}
	iana, err := wire.DecodeIANA(ianaOpt.Data)
	if err != nil {
		return
	}
	if iana.Status != nil && iana.Status.Code == wire.StatusNoAddrsAvail {
		// Spec section 4.5 point 4: an ADVERTISE offering no addresses is
		// dropped, never recorded as a candidate.
		return
	}

	pref := uint8(0)
	if prefOpt := wire.Find(msg.Options, wire.OptPreference); prefOpt != nil {
		if p, err := wire.DecodePreference(prefOpt.Data); err == nil {
			pref = p
		}
	}

	candidate := &advertiseCandidate{serverDUID: serverDUID, preference: pref, ianas: []wire.DecodedIANA{*iana}}

	if pref == 255 {
		s.best = candidate
		s.acceptBestAdvertise()
		return
	}

	if s.best == nil || pref > s.best.preference {
		s.best = candidate
	}
}

// acceptBestAdvertise moves from SENDING_SOLICIT to SENDING_REQUEST using
// the best ADVERTISE collected so far (spec section 4.5 points 4 and 6).
func (s *Session) acceptBestAdvertise() {
	if s.best == nil {
		return
	}
	s.identity.SetServerDUID(s.best.serverDUID)
	s.identity.RemoveAllIA()
	for _, iana := range s.best.ianas {
		for _, a := range iana.Addresses {
			ip := net.IP(a.Address[:])
			_ = s.identity.AddIA(ip, a.PreferredLifetime, a.ValidLifetime)
		}
		_ = s.identity.SetLeaseTimes(iana.T1, iana.T2)
	}

	s.timer = sched.NewTimer(wire.Request)
	s.newTransactionID()
	s.setState(StateSendingRequest)
	_ = s.send(wire.Request)
}

// applyReply implements spec section 4.5 points 2, 3, 5, and the
// NoBinding/NotOnLink failure paths, dispatched by the state the reply was
// received in.
func (s *Session) applyReply(msg *wire.Message) {
	ianaOpt := wire.Find(msg.Options, wire.OptIANA)
	var iana *wire.DecodedIANA
	if ianaOpt != nil {
		decoded, err := wire.DecodeIANA(ianaOpt.Data)
		if err == nil {
			iana = decoded
		}
	}

	if iana != nil && iana.Status != nil && iana.Status.Code != wire.StatusSuccess {
		s.reportServerStatus(iana.Status.Code)
		s.applyFailureStatus(iana.Status.Code)
		return
	}

	switch s.state {
	case StateSendingSolicit, StateSendingRequest, StateSendingRenew, StateSendingRebind:
		s.bindFromReply(msg, iana)
	case StateSendingConfirm:
		s.setState(StateBoundToAddress)
	case StateSendingRelease:
		s.releaseAllAddresses()
		s.setState(StateInit)
	case StateSendingDecline:
		s.removeDeclinedAddresses()
		s.declineTarget = nil
		s.setState(StateInit)
	case StateSendingInformationRequest:
		s.setState(StateInit)
	}

	s.recordServerOptions(msg)
}

// bindFromReply installs every IA-Address from a successful REQUEST/RENEW/
// REBIND reply, registers new addresses with the IP stack for DAD, and
// arms the lease timekeeper (spec section 4.5 point 5, section 4.4).
func (s *Session) bindFromReply(msg *wire.Message, iana *wire.DecodedIANA) {
	if iana == nil {
		return
	}

	serverIDOpt := wire.Find(msg.Options, wire.OptServerID)
	if serverIDOpt != nil {
		if serverDUID, err := wire.DecodeDUID(serverIDOpt.Data); err == nil {
			s.identity.SetServerDUID(serverDUID)
		}
	}

	existing := map[string]bool{}
	for _, rec := range s.identity.Addresses() {
		if rec.Status != identity.StatusEmpty {
			existing[rec.Address.String()] = true
		}
	}

	for _, a := range iana.Addresses {
		ip := net.IP(a.Address[:])
		if !existing[ip.String()] {
			_ = s.identity.AddIA(ip, a.PreferredLifetime, a.ValidLifetime)
		}
	}
	_ = s.identity.SetLeaseTimes(iana.T1, iana.T2)

	s.registerAddresses()
	s.leaseTrk.Reload(iana.T1, iana.T2)
	s.setState(StateBoundToAddress)
}

// applyFailureStatus implements spec section 4.5's NoBinding-during-RENEW/
// REBIND, NotOnLink-during-CONFIRM, and NotOnLink/NoAddrsAvail-during-REQUEST
// failure paths.
func (s *Session) applyFailureStatus(code wire.StatusCode) {
	switch {
	case code == wire.StatusNoBinding && (s.state == StateSendingRenew || s.state == StateSendingRebind):
		// Spec section 4.5: RENEW/REBIND -> REPLY with NoBinding reloads
		// parameters and re-sends REQUEST; the binding itself is left alone.
		s.timer = sched.NewTimer(wire.Request)
		s.newTransactionID()
		s.setState(StateSendingRequest)
		_ = s.send(wire.Request)
	case code == wire.StatusNotOnLink && s.state == StateSendingConfirm:
		s.releaseAllAddresses()
		s.setState(StateInit)
		_ = s.handleRequest(reqSolicit, nil)
	case (code == wire.StatusNotOnLink || code == wire.StatusNoAddrsAvail) && s.state == StateSendingRequest:
		s.releaseAllAddresses()
		s.setState(StateInit)
		_ = s.handleRequest(reqSolicit, nil)
	default:
		s.setState(StateInit)
	}
}

// releaseAllAddresses clears every IA-Address record and removes each from
// the IP stack, used whenever the whole binding is dropped: the RELEASE
// reply, NotOnLink during CONFIRM, NotOnLink/NoAddrsAvail during REQUEST,
// and retransmission exhaustion. The NoBinding path does not call it.
func (s *Session) releaseAllAddresses() {
	for _, index := range s.identity.RemoveAllIA() {
		_ = s.ipStack.AddressDelete(index)
	}
}

// removeDeclinedAddresses removes the IA-Addresses targeted by the in-flight
// DECLINE from the identity store and IP stack (spec section 4.5's
// DECLINE -> REPLY outcome: remove declined addresses only, not the whole
// binding).
func (s *Session) removeDeclinedAddresses() {
	for _, rec := range s.identity.Addresses() {
		if rec.Status != identity.StatusDadFailure {
			continue
		}
		if !inDeclineTarget(rec.Address, s.declineTarget) {
			continue
		}
		s.identity.RemoveIA(rec.Address)
		if rec.StackIndex >= 0 {
			_ = s.ipStack.AddressDelete(rec.StackIndex)
		}
	}
}

func (s *Session) reportServerStatus(code wire.StatusCode) {
	if s.cfg.Stats != nil {
		s.cfg.Stats.IncrementStatusCode(statusCodeName(code))
	}
	if s.cfg.OnServerError != nil {
		s.cfg.OnServerError(code, stateMessageType(s.state))
	}
}

func statusCodeName(code wire.StatusCode) string {
	switch code {
	case wire.StatusSuccess:
		return "Success"
	case wire.StatusUnspecFail:
		return "UnspecFail"
	case wire.StatusNoAddrsAvail:
		return "NoAddrsAvail"
	case wire.StatusNoBinding:
		return "NoBinding"
	case wire.StatusNotOnLink:
		return "NotOnLink"
	case wire.StatusUseMulticast:
		return "UseMulticast"
	default:
		return "Unknown"
	}
}

func (s *Session) recordServerOptions(msg *wire.Message) {
	var opts identity.ServerOptions
	if o := wire.Find(msg.Options, wire.OptDNSServers); o != nil {
		if list, err := wire.DecodeAddressList(o.Data); err == nil {
			for _, a := range list {
				opts.DNSServers = append(opts.DNSServers, net.IP(a[:]))
			}
		}
	}
	if o := wire.Find(msg.Options, wire.OptSNTPServers); o != nil {
		if list, err := wire.DecodeAddressList(o.Data); err == nil {
			for _, a := range list {
				opts.SNTPServers = append(opts.SNTPServers, net.IP(a[:]))
			}
		}
	}
	s.identity.SetServerOptions(opts)
}
