package identity

import (
	"crypto/rand"
	"encoding/binary"
	"net"
	"strings"
	"sync"
	"time"

	dherrors "github.com/krisarmstrong/dhcp6c/pkg/dhcpv6/errors"
	"github.com/krisarmstrong/dhcp6c/pkg/dhcpv6/wire"
)

// Store is the Identity Store of spec section 4.2. It exclusively owns the
// client DUID, IA_NA, its IA-Address records, the learned server DUID, and
// every cached option. All methods are safe for concurrent use; callers
// needing atomicity across multiple calls (the state machine) still hold
// their own session mutex around these.
type Store struct {
	mu sync.RWMutex

	started bool

	clientDUID *wire.DUID
	serverDUID *wire.DUID

	iana      *IANA
	addresses []IAAddressRecord

	requested RequestedOption
	fqdn      *FQDNRecord

	server ServerOptions
}

// NewStore creates an Identity Store holding up to maxAddresses IA-Address
// records (spec section 3's compile-time N; 0 or negative defaults to
// DefaultMaxIAAddresses).
func NewStore(maxAddresses int) *Store {
	if maxAddresses <= 0 {
		maxAddresses = DefaultMaxIAAddresses
	}
	return &Store{addresses: make([]IAAddressRecord, maxAddresses)}
}

// SetStarted flips the store's started flag; CreateClientDUID and
// CreateClientIANA refuse once started is true (spec section 7's
// "attempt to mutate while started" configuration error).
func (s *Store) SetStarted(started bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = started
}

func (s *Store) errIfStarted() error {
	if s.started {
		return dherrors.New(dherrors.KindConfiguration, dherrors.CodeMutateWhileRunning,
			"cannot mutate identity while the session is started")
	}
	return nil
}

// CreateClientDUID constructs the client DUID (spec section 4.2). When
// duidType is DUIDLinkLayerPlusTime and callerTime is 0, a time value is
// synthesised from seconds-since-2000-01-01 plus a random offset.
func (s *Store) CreateClientDUID(duidType, hwType uint16, callerTime uint32, linkLayer []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.errIfStarted(); err != nil {
		return err
	}
	switch duidType {
	case wire.DUIDLinkLayerPlusTime, wire.DUIDLinkLayerOnly:
	case wire.DUIDVendorAssigned:
		return dherrors.New(dherrors.KindConfiguration, dherrors.CodeUnsupportedDUID,
			"vendor-assigned DUID is not supported by this client")
	default:
		return dherrors.New(dherrors.KindConfiguration, dherrors.CodeUnsupportedDUID,
			"unrecognised DUID type")
	}
	switch hwType {
	case wire.HwTypeEthernet, wire.HwTypeEUI64:
	default:
		return dherrors.New(dherrors.KindConfiguration, dherrors.CodeUnsupportedHwType,
			"unrecognised DUID hardware type")
	}
	wantLen := 6
	if hwType == wire.HwTypeEUI64 {
		wantLen = 8
	}
	if len(linkLayer) != wantLen {
		return dherrors.New(dherrors.KindConfiguration, dherrors.CodeInvalidParameter,
			"link-layer address length does not match hardware type")
	}

	t := callerTime
	if duidType == wire.DUIDLinkLayerPlusTime && t == 0 {
		t = synthesizeDUIDTime()
	}

	s.clientDUID = &wire.DUID{
		Type:      duidType,
		HwType:    hwType,
		Time:      t,
		LinkLayer: append([]byte(nil), linkLayer...),
	}
	return nil
}

func synthesizeDUIDTime() uint32 {
	var randomPart [4]byte
	_, _ = rand.Read(randomPart[:])
	base := uint32(time.Since(wire.Epoch2000).Seconds())
	return base + binary.BigEndian.Uint32(randomPart[:])
}

// ClientDUID returns the client DUID, or nil if CreateClientDUID has not
// been called yet.
func (s *Store) ClientDUID() *wire.DUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clientDUID
}

// SetServerDUID records the DUID learned from a server reply.
func (s *Store) SetServerDUID(d *wire.DUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serverDUID = d
}

// ServerDUID returns the learned server DUID, or nil.
func (s *Store) ServerDUID() *wire.DUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.serverDUID
}

// CreateClientIANA initialises the IA_NA header (spec section 4.2).
// Idempotent: the last call wins (spec section 8's idempotence law).
func (s *Store) CreateClientIANA(iaid, t1, t2 uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.errIfStarted(); err != nil {
		return err
	}
	if iaid == 0 {
		return dherrors.New(dherrors.KindConfiguration, dherrors.CodeInvalidParameter,
			"IAID must not be zero")
	}
	if t1 != 0 && t2 != 0 && t1 > t2 {
		return dherrors.New(dherrors.KindConfiguration, dherrors.CodeInvalidParameter,
			"T1 must not exceed T2")
	}
	s.iana = &IANA{IAID: iaid, T1: t1, T2: t2}
	return nil
}

// IANA returns the current IA_NA header, or nil if uninitialised.
func (s *Store) IANA() *IANA {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.iana == nil {
		return nil
	}
	cp := *s.iana
	return &cp
}

// SetLeaseTimes overwrites T1/T2, e.g. after a server assigns them in a reply.
func (s *Store) SetLeaseTimes(t1, t2 uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.iana == nil {
		return dherrors.New(dherrors.KindConfiguration, dherrors.CodeMissingIANA, "IA_NA not initialised")
	}
	s.iana.T1, s.iana.T2 = t1, t2
	return nil
}

// AddIA slots a new IA-Address into the first empty record (spec section
// 4.2). Requires CreateClientIANA to have been called first.
func (s *Store) AddIA(address net.IP, preferred, valid uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.iana == nil {
		return dherrors.New(dherrors.KindConfiguration, dherrors.CodeMissingIANA, "IA_NA not initialised")
	}
	if preferred > valid && valid != 0 {
		return dherrors.New(dherrors.KindConfiguration, dherrors.CodeInvalidParameter,
			"preferred lifetime exceeds valid lifetime")
	}
	if address == nil || address.IsUnspecified() {
		return dherrors.New(dherrors.KindWire, dherrors.CodeInvalidIAData, "IA-Address must not be the zero address")
	}
	for _, rec := range s.addresses {
		if rec.inUse() && rec.Address.Equal(address) {
			return dherrors.New(dherrors.KindState, dherrors.CodeIAAddressAlreadyExist,
				"address already present in the IA_NA")
		}
	}
	for i := range s.addresses {
		if !s.addresses[i].inUse() {
			s.addresses[i] = IAAddressRecord{
				Address:           address,
				PreferredLifetime: preferred,
				ValidLifetime:     valid,
				Status:            StatusInitial,
				StackIndex:        -1,
			}
			return nil
		}
	}
	return dherrors.New(dherrors.KindResource, dherrors.CodeMaxIAAddress, "no free IA-Address slot")
}

// RemoveIA clears the record holding address, if present.
func (s *Store) RemoveIA(address net.IP) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.addresses {
		if s.addresses[i].inUse() && s.addresses[i].Address.Equal(address) {
			s.addresses[i] = IAAddressRecord{}
		}
	}
}

// RemoveAllIA clears every IA-Address record, returning the stack indices
// that were registered so the caller can release them with the IP stack
// collaborator.
func (s *Store) RemoveAllIA() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var indices []int
	for i := range s.addresses {
		if s.addresses[i].inUse() && s.addresses[i].StackIndex >= 0 {
			indices = append(indices, s.addresses[i].StackIndex)
		}
		s.addresses[i] = IAAddressRecord{}
	}
	return indices
}

// Addresses returns a copy of the IA-Address records (including empty slots).
func (s *Store) Addresses() []IAAddressRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]IAAddressRecord, len(s.addresses))
	copy(out, s.addresses)
	return out
}

// UpdateAddressStatus transitions the record holding address to status, and
// records its IP-stack index when provided (>= 0).
func (s *Store) UpdateAddressStatus(address net.IP, status AddressStatus, stackIndex int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.addresses {
		if s.addresses[i].inUse() && s.addresses[i].Address.Equal(address) {
			s.addresses[i].Status = status
			if stackIndex >= 0 {
				s.addresses[i].StackIndex = stackIndex
			}
			return
		}
	}
}

// AddressesWithStatus returns every record currently in the given status.
func (s *Store) AddressesWithStatus(status AddressStatus) []IAAddressRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []IAAddressRecord
	for _, rec := range s.addresses {
		if rec.inUse() && rec.Status == status {
			out = append(out, rec)
		}
	}
	return out
}

// RequestOption flips the bit for opt (spec section 4.2). Calling it true
// then false leaves the bitmap unchanged (spec section 8's idempotence law).
func (s *Store) RequestOption(opt RequestedOption, enable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if enable {
		s.requested |= opt
	} else {
		s.requested &^= opt
	}
}

// RequestedOptions returns the current option-request bitmap.
func (s *Store) RequestedOptions() RequestedOption {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.requested
}

// RequestFQDN sets the Client FQDN record (spec section 4.2).
func (s *Store) RequestFQDN(domain string, op FQDNOp) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(domain) > 255 {
		return dherrors.New(dherrors.KindConfiguration, dherrors.CodeInvalidParameter,
			"FQDN domain name exceeds 255 bytes")
	}
	var flags byte
	switch op {
	case DesiresUpdateAAAARR:
		flags = 0x00
	case DesiresServerDoDNSUpdate:
		flags = 0x01
	default:
		flags = 0x04
	}
	s.fqdn = &FQDNRecord{Flags: flags, Domain: domain}
	s.requested |= OptClientFQDN
	return nil
}

// FQDN returns the current Client FQDN record, or nil.
func (s *Store) FQDN() *FQDNRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fqdn
}

// SetServerOptions records server-provided DNS/SNTP/time-zone/domain-name
// options verbatim; the client never resolves them (spec section 1).
func (s *Store) SetServerOptions(opts ServerOptions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.server = opts
}

// ServerOptions returns the last-recorded server options.
func (s *Store) ServerOptions() ServerOptions {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.server
}

// primaryValidAddress returns the first IA-Address record currently Valid:
// "the" IA-Address the single-address accessors below report on (spec
// section 4.2's accessor set; DefaultMaxIAAddresses is usually 1).
func (s *Store) primaryValidAddress() (IAAddressRecord, bool) {
	for _, rec := range s.addresses {
		if rec.inUse() && rec.Status == StatusValid {
			return rec, true
		}
	}
	return IAAddressRecord{}, false
}

// GetIPv6Address returns the primary Valid IA-Address, or a zero IP and
// IAAddressNotValid when none is Valid (spec section 4.2).
func (s *Store) GetIPv6Address() (net.IP, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.primaryValidAddress()
	if !ok {
		return nil, dherrors.New(dherrors.KindState, dherrors.CodeIAAddressNotValid, "no IA-Address is Valid")
	}
	return rec.Address, nil
}

// GetLeaseTimeData returns the primary Valid IA-Address's preferred and
// valid lifetimes (spec section 4.2).
func (s *Store) GetLeaseTimeData() (preferred, valid uint32, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.primaryValidAddress()
	if !ok {
		return 0, 0, dherrors.New(dherrors.KindState, dherrors.CodeIAAddressNotValid, "no IA-Address is Valid")
	}
	return rec.PreferredLifetime, rec.ValidLifetime, nil
}

// GetTimeAccrued gates the caller-supplied accrued-time reading on the
// primary IA-Address being Valid (spec section 4.2). accrued is supplied by
// the caller since the Identity Store has no clock of its own — the
// session's lease.Tracker owns it.
func (s *Store) GetTimeAccrued(accrued uint32) (uint32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.primaryValidAddress(); !ok {
		return 0, dherrors.New(dherrors.KindState, dherrors.CodeIAAddressNotValid, "no IA-Address is Valid")
	}
	return accrued, nil
}

// GetValidIPAddressCount returns the number of IA-Address records currently
// Valid (spec section 4.2). Unlike the other accessors this is never
// gated: zero is itself a meaningful answer.
func (s *Store) GetValidIPAddressCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, rec := range s.addresses {
		if rec.inUse() && rec.Status == StatusValid {
			n++
		}
	}
	return n
}

// GetValidIPAddressLeaseTime returns the valid lifetime of the index'th
// currently-Valid IA-Address, 0-based (spec section 4.2).
func (s *Store) GetValidIPAddressLeaseTime(index int) (uint32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := 0
	for _, rec := range s.addresses {
		if !rec.inUse() || rec.Status != StatusValid {
			continue
		}
		if i == index {
			return rec.ValidLifetime, nil
		}
		i++
	}
	return 0, dherrors.New(dherrors.KindState, dherrors.CodeIAAddressNotValid, "no Valid IA-Address at that index")
}

// GetDNSServerAddress returns the index'th recorded DNS server address,
// gated on the primary IA-Address being Valid (spec section 4.2).
func (s *Store) GetDNSServerAddress(index int) (net.IP, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.primaryValidAddress(); !ok {
		return nil, dherrors.New(dherrors.KindState, dherrors.CodeIAAddressNotValid, "no IA-Address is Valid")
	}
	if index < 0 || index >= len(s.server.DNSServers) {
		return nil, dherrors.New(dherrors.KindState, dherrors.CodeUnknown, "DNS server index out of range")
	}
	return s.server.DNSServers[index], nil
}

// GetTimeServerAddress returns the index'th recorded SNTP/time server
// address, gated on the primary IA-Address being Valid (spec section 4.2).
func (s *Store) GetTimeServerAddress(index int) (net.IP, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.primaryValidAddress(); !ok {
		return nil, dherrors.New(dherrors.KindState, dherrors.CodeIAAddressNotValid, "no IA-Address is Valid")
	}
	if index < 0 || index >= len(s.server.SNTPServers) {
		return nil, dherrors.New(dherrors.KindState, dherrors.CodeUnknown, "time server index out of range")
	}
	return s.server.SNTPServers[index], nil
}

// GetOtherOptionData copies the server's domain-name list or POSIX
// time-zone string into buffer for code, gated on the primary IA-Address
// being Valid (spec section 4.2). Returns the number of bytes written.
func (s *Store) GetOtherOptionData(code uint16, buffer []byte) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.primaryValidAddress(); !ok {
		return 0, dherrors.New(dherrors.KindState, dherrors.CodeIAAddressNotValid, "no IA-Address is Valid")
	}
	var data []byte
	switch code {
	case wire.OptDomainList:
		data = []byte(strings.Join(s.server.DomainNames, ","))
	case wire.OptNewPosixTZ:
		data = []byte(s.server.TimeZone)
	default:
		return 0, dherrors.New(dherrors.KindState, dherrors.CodeUnknown, "unsupported option code")
	}
	return copy(buffer, data), nil
}
