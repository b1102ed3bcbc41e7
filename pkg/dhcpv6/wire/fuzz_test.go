package wire

import "testing"

// FuzzDecodeMessage exercises the decoder with arbitrary bytes; it must
// never panic, only return an error for malformed input.
func FuzzDecodeMessage(f *testing.F) {
	buf := make([]byte, 64)
	enc := NewEncoder(buf, 64)
	_ = enc.Header(Solicit, [3]byte{1, 2, 3})
	_ = enc.ElapsedTime(0)
	f.Add(enc.Bytes())
	f.Add([]byte{})
	f.Add([]byte{0x01})
	f.Add([]byte{0x07, 0, 0, 0, 0x00, 0x03, 0xFF, 0xFF})

	f.Fuzz(func(t *testing.T, data []byte) {
		defer func() {
			if r := recover(); r != nil {
				t.Errorf("DecodeMessage panicked on %v: %v", data, r)
			}
		}()
		_, _ = DecodeMessage(data)
	})
}

// FuzzDecodeDomainNames exercises the label scanner with arbitrary bytes.
func FuzzDecodeDomainNames(f *testing.F) {
	f.Add([]byte{3, 'f', 'o', 'o', 0})
	f.Add([]byte{})
	f.Add([]byte{64})

	f.Fuzz(func(t *testing.T, data []byte) {
		defer func() {
			if r := recover(); r != nil {
				t.Errorf("DecodeDomainNames panicked on %v: %v", data, r)
			}
		}()
		_, _ = DecodeDomainNames(data)
	})
}
