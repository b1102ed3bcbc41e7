package wire

import (
	"encoding/binary"

	dherrors "github.com/krisarmstrong/dhcp6c/pkg/dhcpv6/errors"
)

// DUID is the decoded form of a DHCP Unique Identifier (spec section 3).
type DUID struct {
	Type         uint16
	HwType       uint16
	Time         uint32 // valid only when Type == DUIDLinkLayerPlusTime
	LinkLayer    []byte // 6 bytes for Ethernet, 8 for EUI-64
}

// Encode renders the DUID to its wire form: 2-byte type, 2-byte hw-type,
// optional 4-byte time, then the link-layer address.
func (d DUID) Encode() []byte {
	size := 4 + len(d.LinkLayer)
	if d.Type == DUIDLinkLayerPlusTime {
		size += 4
	}
	out := make([]byte, size)
	binary.BigEndian.PutUint16(out[0:2], d.Type)
	binary.BigEndian.PutUint16(out[2:4], d.HwType)
	off := 4
	if d.Type == DUIDLinkLayerPlusTime {
		binary.BigEndian.PutUint32(out[off:off+4], d.Time)
		off += 4
	}
	copy(out[off:], d.LinkLayer)
	return out
}

// DecodeDUID parses raw DUID option data into its typed fields, rejecting
// anything shorter than the minimal header or with a link-layer address of
// an unexpected length for the declared hardware type.
func DecodeDUID(data []byte) (*DUID, error) {
	if len(data) < 4 {
		return nil, dherrors.New(dherrors.KindWire, dherrors.CodeInvalidClientDUID,
			"DUID shorter than 4-byte header")
	}
	d := &DUID{
		Type:   binary.BigEndian.Uint16(data[0:2]),
		HwType: binary.BigEndian.Uint16(data[2:4]),
	}
	off := 4
	if d.Type == DUIDLinkLayerPlusTime {
		if len(data) < off+4 {
			return nil, dherrors.New(dherrors.KindWire, dherrors.CodeInvalidClientDUID,
				"DUID-LLT missing time field")
		}
		d.Time = binary.BigEndian.Uint32(data[off : off+4])
		off += 4
	}
	d.LinkLayer = append([]byte(nil), data[off:]...)
	if d.Type == DUIDLinkLayerPlusTime || d.Type == DUIDLinkLayerOnly {
		if (d.HwType == HwTypeEthernet && len(d.LinkLayer) != 6) ||
			(d.HwType == HwTypeEUI64 && len(d.LinkLayer) != 8) {
			return nil, dherrors.New(dherrors.KindWire, dherrors.CodeInvalidClientDUID,
				"DUID link-layer address length does not match hardware type")
		}
	}
	return d, nil
}
