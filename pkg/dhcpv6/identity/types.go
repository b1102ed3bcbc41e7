// Package identity implements the Identity Store (spec section 4.2): the
// client DUID, IA_NA record, up to N IA-Address records, server DUID,
// preference, option-request bitmap, FQDN record, and received server
// options (DNS, SNTP, time-zone, domain-name).
package identity

import "net"

// DefaultMaxIAAddresses is the compile-time N of spec section 3: the number
// of IA-Address records an IA_NA can hold. Overridable per Store via
// NewStore.
const DefaultMaxIAAddresses = 1

// AddressStatus is the lifecycle state of one IA-Address record (spec
// section 3).
type AddressStatus int

const (
	StatusEmpty AddressStatus = iota
	StatusInitial
	StatusDadTentative
	StatusValid
	StatusDadFailure
)

func (s AddressStatus) String() string {
	switch s {
	case StatusEmpty:
		return "empty"
	case StatusInitial:
		return "initial"
	case StatusDadTentative:
		return "dad-tentative"
	case StatusValid:
		return "valid"
	case StatusDadFailure:
		return "dad-failure"
	default:
		return "unknown"
	}
}

// IAAddressRecord is one slot in the IA_NA's address list.
type IAAddressRecord struct {
	Address           net.IP
	PreferredLifetime uint32
	ValidLifetime     uint32
	Status            AddressStatus
	MapTag            uint32 // scratch field, used only during reply correlation
	StackIndex        int    // opaque index into the IP stack's address table, -1 if none
}

func (r IAAddressRecord) inUse() bool {
	return r.Status != StatusEmpty
}

// IANA holds the IA_NA header: IAID and the renew/rebind deadlines.
type IANA struct {
	IAID uint32
	T1   uint32
	T2   uint32
}

// RequestedOption is one bit of the Option-Request Bitmap (spec section 3).
type RequestedOption uint8

const (
	OptDNSServer RequestedOption = 1 << iota
	OptSNTPServer
	OptNewPosixTimeZone
	OptDomainName
	OptClientFQDN
)

// FQDNOp selects which of the three caller operations request-option-FQDN
// encodes into the flags byte (spec section 4.2).
type FQDNOp int

const (
	// DesiresUpdateAAAARR leaves the S bit clear (flags 0x00): the client updates its own AAAA records and the server is not asked to.
	DesiresUpdateAAAARR FQDNOp = iota
	// DesiresServerDoDNSUpdate asks the server to perform the DNS update (flags 0x01, the S bit).
	DesiresServerDoDNSUpdate
	// DesiresNoServerUpdate sets the N bit (0x04), telling the server not to update DNS at all.
	DesiresNoServerUpdate
)

// FQDNRecord is the client's Client FQDN option state.
type FQDNRecord struct {
	Flags  byte
	Domain string
}

// ServerOptions holds the server-provided options the client only records,
// never resolves (spec section 1's out-of-scope list).
type ServerOptions struct {
	DNSServers  []net.IP
	SNTPServers []net.IP
	TimeZone    string
	DomainNames []string
}
