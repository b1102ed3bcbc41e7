package wire

import (
	"encoding/binary"

	dherrors "github.com/krisarmstrong/dhcp6c/pkg/dhcpv6/errors"
)

// IPv6HeaderLen and UDPHeaderLen are subtracted from the pool payload size to
// compute how much room is left for the DHCPv6 message itself (spec section
// 4.1's "remaining-payload" calculation).
const (
	IPv6HeaderLen = 40
	UDPHeaderLen  = 8
)

// IAAddr is one IA-Address to encode inside an IA_NA option.
type IAAddr struct {
	Address           [16]byte
	PreferredLifetime uint32
	ValidLifetime     uint32
}

// Encoder serialises a single DHCPv6 message into a caller-supplied buffer.
// Every write targets buf directly; FQDN is the one method that allocates,
// since EncodeDomainName builds its label encoding in a temporary slice
// before it is copied into buf. Each encode method
// refuses when the remaining payload budget is insufficient, returning a
// resource/buffer-overflow error rather than growing the buffer.
type Encoder struct {
	buf    []byte
	off    int
	budget int // pool-payload-size - IPv6 header - UDP header
}

// NewEncoder wraps buf for writing, with poolPayloadSize the size of the
// packet-pool buffer the caller allocated (header space included). The
// encoder computes its own usable budget by subtracting the IPv6 and UDP
// header sizes, per spec section 4.1.
func NewEncoder(buf []byte, poolPayloadSize int) *Encoder {
	budget := poolPayloadSize - IPv6HeaderLen - UDPHeaderLen
	if budget > len(buf) {
		budget = len(buf)
	}
	return &Encoder{buf: buf, budget: budget}
}

// Offset returns the number of bytes written so far.
func (e *Encoder) Offset() int { return e.off }

// Bytes returns the written prefix of the buffer.
func (e *Encoder) Bytes() []byte { return e.buf[:e.off] }

func (e *Encoder) remaining() int { return e.budget - e.off }

func (e *Encoder) reserve(n int) error {
	if n < 0 || e.remaining() < n {
		return dherrors.New(dherrors.KindResource, dherrors.CodeBufferOverflow,
			"insufficient packet payload for option")
	}
	return nil
}

// Header writes the 4-byte DHCPv6 message header: type plus the 24-bit
// transaction ID, and resets the offset to the start of the options area.
func (e *Encoder) Header(msgType MessageType, transactionID [3]byte) error {
	if err := e.reserve(4); err != nil {
		return err
	}
	e.buf[0] = byte(msgType)
	copy(e.buf[1:4], transactionID[:])
	e.off = 4
	return nil
}

// option writes a complete <code:16><length:16><data> option and advances
// the offset, after checking the remaining budget.
func (e *Encoder) option(code uint16, data []byte) error {
	need := 4 + len(data)
	if err := e.reserve(need); err != nil {
		return err
	}
	binary.BigEndian.PutUint16(e.buf[e.off:], code)
	binary.BigEndian.PutUint16(e.buf[e.off+2:], uint16(len(data)))
	copy(e.buf[e.off+4:], data)
	e.off += need
	return nil
}

// ClientID encodes OPTION_CLIENTID carrying the raw DUID bytes.
func (e *Encoder) ClientID(duid []byte) error {
	return e.option(OptClientID, duid)
}

// ServerID encodes OPTION_SERVERID carrying the raw server DUID bytes.
func (e *Encoder) ServerID(duid []byte) error {
	return e.option(OptServerID, duid)
}

// ElapsedTime encodes OPTION_ELAPSED_TIME, hundredths of a second since the
// current transaction's first send (spec section 3's Elapsed-Time Counter).
func (e *Encoder) ElapsedTime(hundredths uint16) error {
	var data [2]byte
	binary.BigEndian.PutUint16(data[:], hundredths)
	return e.option(OptElapsedTime, data[:])
}

// RapidCommit encodes the zero-length OPTION_RAPID_COMMIT.
func (e *Encoder) RapidCommit() error {
	return e.option(OptRapidCommit, nil)
}

// Preference encodes OPTION_PREFERENCE (server-only in practice, included
// for round-trip completeness in tests).
func (e *Encoder) Preference(pref uint8) error {
	return e.option(OptPreference, []byte{pref})
}

// OptionRequest encodes OPTION_ORO from the list of requested option codes,
// writing straight into buf at the reserved offset (spec section 4.1: no
// dynamic allocation inside the codec).
func (e *Encoder) OptionRequest(codes []uint16) error {
	length := 2 * len(codes)
	need := 4 + length
	if err := e.reserve(need); err != nil {
		return err
	}
	start := e.off
	binary.BigEndian.PutUint16(e.buf[start:], OptORO)
	binary.BigEndian.PutUint16(e.buf[start+2:], uint16(length))
	for i, c := range codes {
		binary.BigEndian.PutUint16(e.buf[start+4+2*i:], c)
	}
	e.off = start + need
	return nil
}

// FQDN encodes OPTION_FQDN: one flags byte followed by the RFC 1035
// length-prefixed domain name, uncompressed (spec section 4.1, RFC 3315
// section 8 forbids compression). The header and flags byte are written
// straight into buf; the labels are built by EncodeDomainName in a newly
// allocated slice and copied into buf at the reserved offset.
func (e *Encoder) FQDN(flags byte, domain string) error {
	labels, err := EncodeDomainName(domain)
	if err != nil {
		return err
	}
	length := 1 + len(labels)
	need := 4 + length
	if err := e.reserve(need); err != nil {
		return err
	}
	start := e.off
	binary.BigEndian.PutUint16(e.buf[start:], OptFQDN)
	binary.BigEndian.PutUint16(e.buf[start+2:], uint16(length))
	e.buf[start+4] = flags
	copy(e.buf[start+5:], labels)
	e.off = start + need
	return nil
}

// IANA encodes OPTION_IA_NA: a 4-byte header reservation for code+length,
// IAID/T1/T2, then each active IA-Address as a nested option, with the
// IA_NA's own length back-patched once the nested content is known (spec
// section 4.1).
func (e *Encoder) IANA(iaid, t1, t2 uint32, addrs []IAAddr) error {
	headerNeed := 4 + 12 // option header + IAID/T1/T2
	if err := e.reserve(headerNeed); err != nil {
		return err
	}
	start := e.off
	binary.BigEndian.PutUint16(e.buf[start:], OptIANA)
	// length back-patched below
	binary.BigEndian.PutUint32(e.buf[start+4:], iaid)
	binary.BigEndian.PutUint32(e.buf[start+8:], t1)
	binary.BigEndian.PutUint32(e.buf[start+12:], t2)
	e.off = start + headerNeed

	for _, a := range addrs {
		if err := e.iaAddr(a); err != nil {
			return err
		}
	}

	length := e.off - start - 4
	binary.BigEndian.PutUint16(e.buf[start+2:], uint16(length))
	return nil
}

// iaAddr encodes a single nested OPTION_IAADDR, writing straight into buf
// at the reserved offset.
func (e *Encoder) iaAddr(a IAAddr) error {
	const dataLen = 24
	need := 4 + dataLen
	if err := e.reserve(need); err != nil {
		return err
	}
	start := e.off
	binary.BigEndian.PutUint16(e.buf[start:], OptIAAddr)
	binary.BigEndian.PutUint16(e.buf[start+2:], dataLen)
	copy(e.buf[start+4:start+20], a.Address[:])
	binary.BigEndian.PutUint32(e.buf[start+20:], a.PreferredLifetime)
	binary.BigEndian.PutUint32(e.buf[start+24:], a.ValidLifetime)
	e.off = start + need
	return nil
}
