package netio

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// allDHCPRelayAgentsAndServersMAC is the Ethernet multicast MAC
// corresponding to ff02::1:2, used only to make a captured frame look like
// a real multicast transmission.
var allDHCPRelayAgentsAndServersMAC = net.HardwareAddr{0x33, 0x33, 0x00, 0x01, 0x00, 0x02}

// Capture is the optional `--pcap` diagnostic path: it wraps outgoing and
// incoming DHCPv6 payloads in synthesized Ethernet/IPv6/UDP frames and
// appends them to a pcap file, grounded on dhcpv6.go's
// sendDHCPv6Response layer-serialize pattern, generalized from building one
// server response to recording both directions of a client exchange. It
// never touches the wire itself; the real send/receive path stays
// Endpoint's net.UDPConn (see the stdlib-justification entry in the design
// ledger).
type Capture struct {
	file   *os.File
	writer *pcapgo.Writer
}

// OpenCapture creates (or truncates) path and writes a pcap file header
// sized for DHCPv6-sized frames.
func OpenCapture(path string) (*Capture, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("netio: create capture file %s: %w", path, err)
	}
	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(1600, layers.LinkTypeEthernet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("netio: write capture header: %w", err)
	}
	return &Capture{file: f, writer: w}, nil
}

// Close flushes and closes the capture file.
func (c *Capture) Close() error {
	if c == nil || c.file == nil {
		return nil
	}
	return c.file.Close()
}

// RecordSent appends an outgoing DHCPv6 datagram, src:546 to dest:destPort.
func (c *Capture) RecordSent(payload []byte, src, dest net.IP, destPort int) error {
	return c.record(payload, src, ClientPort, dest, destPort)
}

// RecordReceived appends an incoming DHCPv6 datagram, src:547 (the server)
// to our own address:546.
func (c *Capture) RecordReceived(payload []byte, src net.IP, local net.IP) error {
	return c.record(payload, src, ServerPort, local, ClientPort)
}

func (c *Capture) record(payload []byte, srcIP net.IP, srcPort int, dstIP net.IP, dstPort int) error {
	if c == nil || c.writer == nil {
		return nil
	}

	udp := &layers.UDP{
		SrcPort: layers.UDPPort(srcPort),
		DstPort: layers.UDPPort(dstPort),
	}
	ipv6 := &layers.IPv6{
		Version:    6,
		HopLimit:   64,
		NextHeader: layers.IPProtocolUDP,
		SrcIP:      srcIP,
		DstIP:      dstIP,
	}
	dstMAC := allDHCPRelayAgentsAndServersMAC
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01},
		DstMAC:       dstMAC,
		EthernetType: layers.EthernetTypeIPv6,
	}

	udp.Length = uint16(8 + len(payload))
	udp.SetNetworkLayerForChecksum(ipv6)

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ipv6, udp, gopacket.Payload(payload)); err != nil {
		return fmt.Errorf("netio: serialize captured frame: %w", err)
	}

	ci := gopacket.CaptureInfo{
		Timestamp:     time.Now(),
		CaptureLength: len(buf.Bytes()),
		Length:        len(buf.Bytes()),
	}
	if err := c.writer.WritePacket(ci, buf.Bytes()); err != nil {
		return fmt.Errorf("netio: write captured frame: %w", err)
	}
	return nil
}
