package client

import (
	"net"

	"github.com/krisarmstrong/dhcp6c/pkg/dhcpv6/identity"
	"github.com/krisarmstrong/dhcp6c/pkg/dhcpv6/netio"
	"github.com/krisarmstrong/dhcp6c/pkg/dhcpv6/wire"
)

// maxMessageSize is the packet-pool buffer size handed to the encoder; a
// DHCPv6 message plus its options never needs more than a single Ethernet
// frame's worth of payload in this client, which never requests more than
// one IA-Address (spec section 3's compile-time N).
const maxMessageSize = 1232

// composeMessage builds and serialises msgType using the session's current
// identity-store state (spec section 4.1's encoder contract, section 4.5's
// per-message option table).
func composeMessage(s *Session, msgType wire.MessageType) ([]byte, error) {
	buf := netio.AllocatePacket(maxMessageSize)
	enc := wire.NewEncoder(buf, maxMessageSize+wire.IPv6HeaderLen+wire.UDPHeaderLen)

	if err := enc.Header(msgType, s.transactionID); err != nil {
		return nil, err
	}

	clientDUID := s.identity.ClientDUID()
	if err := enc.ClientID(clientDUID.Encode()); err != nil {
		return nil, err
	}

	if serverDUID := s.identity.ServerDUID(); serverDUID != nil && messageNeedsServerID(msgType) {
		if err := enc.ServerID(serverDUID.Encode()); err != nil {
			return nil, err
		}
	}

	if err := enc.ElapsedTime(uint16(clamp16(s.timer.ElapsedCentiseconds()))); err != nil {
		return nil, err
	}

	if messageCarriesIANA(msgType) {
		if err := encodeIANA(enc, s, msgType); err != nil {
			return nil, err
		}
	}

	if msgType == wire.Solicit && s.cfg.RapidCommit {
		if err := enc.RapidCommit(); err != nil {
			return nil, err
		}
	}

	if messageCarriesORO(msgType) {
		if codes := requestedOptionCodes(s.identity.RequestedOptions()); len(codes) > 0 {
			if err := enc.OptionRequest(codes); err != nil {
				return nil, err
			}
		}
	}

	if rec := s.identity.FQDN(); rec != nil && messageCarriesFQDN(msgType) {
		if err := enc.FQDN(rec.Flags, rec.Domain); err != nil {
			return nil, err
		}
	}

	return enc.Bytes(), nil
}

// messageNeedsServerID reports whether msgType must carry OPTION_SERVERID
// once a server DUID has been learned (spec section 4.5's per-state option
// table: SOLICIT, REBIND and CONFIRM never carry it, every other message
// does).
func messageNeedsServerID(msgType wire.MessageType) bool {
	switch msgType {
	case wire.Solicit, wire.Rebind, wire.Confirm:
		return false
	default:
		return true
	}
}

// messageCarriesIANA reports whether msgType's body includes the IA_NA
// option (every message in this client does except bare INFORMATION-REQUEST,
// which has no binding to describe).
func messageCarriesIANA(msgType wire.MessageType) bool {
	return msgType != wire.InformationRequest
}

// messageCarriesFQDN reports whether msgType is one the client attaches its
// Client FQDN option to (spec section 4.2): the messages that establish or
// refresh a binding.
func messageCarriesFQDN(msgType wire.MessageType) bool {
	switch msgType {
	case wire.Solicit, wire.Request, wire.Renew, wire.Rebind:
		return true
	default:
		return false
	}
}

// messageCarriesORO reports whether msgType conditionally carries
// OPTION_ORO; DECLINE and RELEASE never do (spec section 4.1's table —
// INFORMATION-REQUEST's mandatory ORO is handled unconditionally by the
// same codes-non-empty check since a client with no requested options has
// nothing useful to send either way).
func messageCarriesORO(msgType wire.MessageType) bool {
	switch msgType {
	case wire.Decline, wire.Release:
		return false
	default:
		return true
	}
}

// zeroesLifetimes reports whether msgType must zero T1/T2 and every
// IA-Address lifetime so the server ignores client hints (RFC 3315 section
// 18.1, spec section 4.1).
func zeroesLifetimes(msgType wire.MessageType) bool {
	switch msgType {
	case wire.Solicit, wire.Confirm, wire.Decline, wire.Release:
		return true
	default:
		return false
	}
}

// encodeIANA writes the IA_NA option. DECLINE carries only the addresses in
// DadFailure (spec section 4.5's DECLINE-targets rule); every other message
// carries every address not in DadFailure.
func encodeIANA(enc *wire.Encoder, s *Session, msgType wire.MessageType) error {
	iana := s.identity.IANA()
	if iana == nil {
		return nil
	}

	var addrs []wire.IAAddr
	if msgType == wire.Decline {
		targets := s.declineTarget
		for _, rec := range s.identity.Addresses() {
			if rec.Status != identity.StatusDadFailure {
				continue
			}
			if !inDeclineTarget(rec.Address, targets) {
				continue
			}
			addrs = append(addrs, toWireIAAddr(rec, msgType))
		}
	} else {
		for _, rec := range s.identity.Addresses() {
			if rec.Status == identity.StatusEmpty || rec.Status == identity.StatusDadFailure {
				continue
			}
			addrs = append(addrs, toWireIAAddr(rec, msgType))
		}
	}

	t1, t2 := iana.T1, iana.T2
	if zeroesLifetimes(msgType) {
		t1, t2 = 0, 0
	}
	return enc.IANA(iana.IAID, t1, t2, addrs)
}

// inDeclineTarget reports whether address is named in targets, or whether
// targets is nil (meaning "every DadFailure address", spec section 4.5's
// automatic-DECLINE rule).
func inDeclineTarget(address net.IP, targets []net.IP) bool {
	if targets == nil {
		return true
	}
	for _, t := range targets {
		if t.Equal(address) {
			return true
		}
	}
	return false
}

func toWireIAAddr(rec identity.IAAddressRecord, msgType wire.MessageType) wire.IAAddr {
	var out wire.IAAddr
	copy(out.Address[:], rec.Address.To16())
	if !zeroesLifetimes(msgType) {
		out.PreferredLifetime = rec.PreferredLifetime
		out.ValidLifetime = rec.ValidLifetime
	}
	return out
}

// requestedOptionCodes translates the Option-Request Bitmap into wire option
// codes (spec section 4.2, section 6).
func requestedOptionCodes(opts identity.RequestedOption) []uint16 {
	var codes []uint16
	if opts&identity.OptDNSServer != 0 {
		codes = append(codes, wire.OptDNSServers)
	}
	if opts&identity.OptSNTPServer != 0 {
		codes = append(codes, wire.OptSNTPServers)
	}
	if opts&identity.OptNewPosixTimeZone != 0 {
		codes = append(codes, wire.OptNewPosixTZ)
	}
	if opts&identity.OptDomainName != 0 {
		codes = append(codes, wire.OptDomainList)
	}
	return codes
}

func clamp16(v int) int {
	if v > 0xFFFF {
		return 0xFFFF
	}
	return v
}
