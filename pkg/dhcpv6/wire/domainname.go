package wire

import (
	"strings"

	dherrors "github.com/krisarmstrong/dhcp6c/pkg/dhcpv6/errors"
)

// maxLabelLength is the largest single DNS label RFC 1035 section 3.1
// permits; a length byte above this indicates either corruption or a
// compression pointer, both forbidden on DHCPv6 option data (RFC 3315
// section 8).
const maxLabelLength = 63

// maxDomainNameLength bounds the caller-supplied domain name for the Client
// FQDN option (spec section 4.2).
const maxDomainNameLength = 255

// EncodeDomainName renders name as RFC 1035 length-prefixed labels with a
// trailing zero-length terminator. No compression is ever emitted, matching
// RFC 3315 section 8.
func EncodeDomainName(name string) ([]byte, error) {
	if len(name) > maxDomainNameLength {
		return nil, dherrors.New(dherrors.KindConfiguration, dherrors.CodeInvalidParameter,
			"domain name exceeds 255 bytes")
	}
	name = strings.TrimSuffix(name, ".")
	var out []byte
	if name != "" {
		for _, label := range strings.Split(name, ".") {
			if len(label) == 0 {
				return nil, dherrors.New(dherrors.KindWire, dherrors.CodeProcessingError,
					"empty domain name label")
			}
			if len(label) > maxLabelLength {
				return nil, dherrors.New(dherrors.KindWire, dherrors.CodeProcessingError,
					"domain name label exceeds 63 bytes")
			}
			out = append(out, byte(len(label)))
			out = append(out, label...)
		}
	}
	out = append(out, 0)
	return out, nil
}

// DecodeDomainNames iterates successive length-prefixed labels until data is
// exhausted, decoding one or more NUL-terminator-delimited names. A label
// length greater than 63 is a decode failure (compression pointers have
// their top two bits set, which always exceeds 63). Returns the decoded
// names in presentation form (dot-separated, no trailing dot).
func DecodeDomainNames(data []byte) ([]string, error) {
	var names []string
	var cur strings.Builder
	i := 0
	for i < len(data) {
		length := int(data[i])
		if length == 0 {
			names = append(names, cur.String())
			cur.Reset()
			i++
			continue
		}
		if length > maxLabelLength {
			return nil, dherrors.New(dherrors.KindWire, dherrors.CodeProcessingError,
				"domain name label exceeds 63 bytes or is a compression pointer")
		}
		i++
		if i+length > len(data) {
			return nil, dherrors.New(dherrors.KindWire, dherrors.CodeIncompleteOption,
				"domain name label exceeds option bounds")
		}
		if cur.Len() > 0 {
			cur.WriteByte('.')
		}
		cur.Write(data[i : i+length])
		i += length
	}
	if cur.Len() > 0 {
		// Data did not end on a label terminator; still return what we have,
		// the caller decides whether a missing terminator is acceptable.
		names = append(names, cur.String())
	}
	return names, nil
}
