package wire

import (
	"encoding/binary"

	dherrors "github.com/krisarmstrong/dhcp6c/pkg/dhcpv6/errors"
)

// DecodeMessage parses a DHCPv6 message header and its top-level options.
// Every option's bounds are validated before any byte of its data is
// dereferenced (spec section 4.1's option-nesting invariant: start + 4 +
// length <= end).
func DecodeMessage(data []byte) (*Message, error) {
	if len(data) < 4 {
		return nil, dherrors.New(dherrors.KindWire, dherrors.CodeIncompleteOption,
			"message shorter than header")
	}
	msg := &Message{Type: MessageType(data[0])}
	copy(msg.TransactionID[:], data[1:4])

	opts, err := decodeOptions(data[4:])
	if err != nil {
		return nil, err
	}
	msg.Options = opts
	return msg, nil
}

// decodeOptions scans a flat options buffer into a slice of Option, checking
// start+4+length <= end at every step before trusting length.
func decodeOptions(data []byte) ([]Option, error) {
	var opts []Option
	off := 0
	for off < len(data) {
		if off+4 > len(data) {
			return nil, dherrors.New(dherrors.KindWire, dherrors.CodeIncompleteOption,
				"option header truncated")
		}
		code := binary.BigEndian.Uint16(data[off:])
		length := int(binary.BigEndian.Uint16(data[off+2:]))
		if off+4+length > len(data) {
			return nil, dherrors.New(dherrors.KindWire, dherrors.CodeIncompleteOption,
				"option data exceeds message bounds")
		}
		optData := make([]byte, length)
		copy(optData, data[off+4:off+4+length])
		opts = append(opts, Option{Code: code, Data: optData})
		off += 4 + length
	}
	return opts, nil
}

// Find returns the first option with the given code, or nil.
func Find(opts []Option, code uint16) *Option {
	for i := range opts {
		if opts[i].Code == code {
			return &opts[i]
		}
	}
	return nil
}

// FindAll returns every option with the given code, in wire order.
func FindAll(opts []Option, code uint16) []Option {
	var out []Option
	for _, o := range opts {
		if o.Code == code {
			out = append(out, o)
		}
	}
	return out
}

// DecodedIAAddr is a parsed OPTION_IAADDR, optionally carrying a nested
// status code (spec section 3's IA-Address record, wire subset).
type DecodedIAAddr struct {
	Address           [16]byte
	PreferredLifetime uint32
	ValidLifetime     uint32
	Status            *DecodedStatus
}

// DecodedIANA is a parsed OPTION_IA_NA with its nested addresses and
// optional top-level status code.
type DecodedIANA struct {
	IAID      uint32
	T1        uint32
	T2        uint32
	Addresses []DecodedIAAddr
	Status    *DecodedStatus
}

// DecodedStatus is a parsed OPTION_STATUS_CODE.
type DecodedStatus struct {
	Code    StatusCode
	Message string
}

// DecodeStatusCode parses OPTION_STATUS_CODE data: a 2-byte code followed by
// an optional UTF-8 message. Per spec section 9's open question, any 16-bit
// value is accepted as well-formed; only truncated data (< 2 bytes) is a
// decode failure.
func DecodeStatusCode(data []byte) (*DecodedStatus, error) {
	if len(data) < 2 {
		return nil, dherrors.New(dherrors.KindWire, dherrors.CodeInvalidOptionData,
			"status code option shorter than 2 bytes")
	}
	return &DecodedStatus{
		Code:    StatusCode(binary.BigEndian.Uint16(data)),
		Message: string(data[2:]),
	}, nil
}

// DecodeIAAddr parses a single OPTION_IAADDR's data, including its optional
// nested status-code sub-option, validating bounds before the nested scan.
func DecodeIAAddr(data []byte) (*DecodedIAAddr, error) {
	if len(data) < 24 {
		return nil, dherrors.New(dherrors.KindWire, dherrors.CodeInvalidIAData,
			"IA-Address option shorter than 24 bytes")
	}
	out := &DecodedIAAddr{
		PreferredLifetime: binary.BigEndian.Uint32(data[16:20]),
		ValidLifetime:     binary.BigEndian.Uint32(data[20:24]),
	}
	copy(out.Address[:], data[0:16])

	if len(data) > 24 {
		subs, err := decodeOptions(data[24:])
		if err != nil {
			return nil, dherrors.Wrap(dherrors.KindWire, dherrors.CodeInvalidIAData,
				"IA-Address sub-option truncated", err)
		}
		if so := Find(subs, OptStatusCode); so != nil {
			st, err := DecodeStatusCode(so.Data)
			if err != nil {
				return nil, err
			}
			out.Status = st
		}
	}
	return out, nil
}

// DecodeIANA parses OPTION_IA_NA data: IAID/T1/T2 followed by nested
// IA-Address and Status Code options, validating length at each nesting
// level before dereferencing (spec section 4.1).
func DecodeIANA(data []byte) (*DecodedIANA, error) {
	if len(data) < 12 {
		return nil, dherrors.New(dherrors.KindWire, dherrors.CodeInvalidIAData,
			"IA_NA option shorter than 12 bytes")
	}
	out := &DecodedIANA{
		IAID: binary.BigEndian.Uint32(data[0:4]),
		T1:   binary.BigEndian.Uint32(data[4:8]),
		T2:   binary.BigEndian.Uint32(data[8:12]),
	}
	if out.T1 != 0 && out.T2 != 0 && out.T1 > out.T2 {
		return nil, dherrors.New(dherrors.KindWire, dherrors.CodeInvalidIATime,
			"T1 exceeds T2")
	}

	if len(data) > 12 {
		subs, err := decodeOptions(data[12:])
		if err != nil {
			return nil, dherrors.Wrap(dherrors.KindWire, dherrors.CodeInvalidIAData,
				"IA_NA sub-option truncated", err)
		}
		for _, so := range subs {
			switch so.Code {
			case OptIAAddr:
				addr, err := DecodeIAAddr(so.Data)
				if err != nil {
					return nil, err
				}
				out.Addresses = append(out.Addresses, *addr)
			case OptStatusCode:
				st, err := DecodeStatusCode(so.Data)
				if err != nil {
					return nil, err
				}
				out.Status = st
			}
		}
	}
	return out, nil
}

// DecodeAddressList decodes a flat list of 16-byte IPv6 addresses, as used
// by OPTION_DNS_SERVERS and OPTION_SNTP_SERVERS.
func DecodeAddressList(data []byte) ([][16]byte, error) {
	if len(data)%16 != 0 {
		return nil, dherrors.New(dherrors.KindWire, dherrors.CodeInvalidDataSize,
			"address list option not a multiple of 16 bytes")
	}
	out := make([][16]byte, len(data)/16)
	for i := range out {
		copy(out[i][:], data[i*16:i*16+16])
	}
	return out, nil
}

// DecodePreference parses OPTION_PREFERENCE: a single byte.
func DecodePreference(data []byte) (uint8, error) {
	if len(data) != 1 {
		return 0, dherrors.New(dherrors.KindWire, dherrors.CodeInvalidPreference,
			"preference option must be exactly 1 byte")
	}
	return data[0], nil
}
