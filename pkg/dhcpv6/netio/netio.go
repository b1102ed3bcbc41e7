// Package netio implements the External Interfaces of spec section 6: the
// UDP wire (client port 546, server port 547, multicast group ff02::1:2)
// and the collaborator interfaces the core consumes from the host IP stack.
package netio

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/ipv6"
)

// ClientPort and ServerPort are the well-known DHCPv6 UDP ports.
const (
	ClientPort = 546
	ServerPort = 547
)

// AllServersMulticast is "All DHCPv6 Relay Agents and Servers" (ff02::1:2),
// the default destination for client-originated messages (spec section 6).
const AllServersMulticast = "ff02::1:2"

// IPStack is the set of collaborator calls the core consumes from the host
// IP stack (spec section 6). Implementations talk to the real network
// stack; tests substitute an in-memory fake.
type IPStack interface {
	// AddressSet installs address/prefix on the interface and returns an
	// opaque slot index.
	AddressSet(iface string, address net.IP, prefix int) (int, error)
	// AddressDelete removes the address previously installed at index.
	AddressDelete(index int) error
	// DefaultRouterAdd installs a default route learned out-of-band (e.g.
	// from Router Advertisements); DHCPv6 itself never carries one, but the
	// collaborator interface is symmetric with AddressSet/Delete.
	DefaultRouterAdd(address net.IP, iface string, lifetime uint32) error
	DefaultRouterDelete(address net.IP) error
	// SourceAddressForUnicast returns the stack's source-address selection
	// for a unicast destination (spec section 6).
	SourceAddressForUnicast(dest net.IP) (net.IP, error)
	// LinkLocalAddress returns a link-local address on iface, used as the
	// source for multicast destinations.
	LinkLocalAddress(iface string) (net.IP, error)
	// NotifyAddressChange registers a DAD-result callback; fn receives the
	// address and whether DAD succeeded.
	NotifyAddressChange(fn func(address net.IP, succeeded bool)) error
}

// Endpoint is the UDP wire collaborator (spec section 6): bind once, then
// Send/Receive DHCPv6 message payloads. Grounded on capture.Engine's
// open-once/Send/Read shape, generalized from a pcap handle to a real
// net.UDPConn since the primary data path is plain UDP, not raw capture
// (see the stdlib-justification entry in the design ledger).
type Endpoint struct {
	iface   string
	conn    *net.UDPConn
	capture *Capture
}

// SetCapture attaches the optional `--pcap` diagnostic recorder; passing
// nil detaches it. Capture never affects the real send/receive path, only
// mirrors what already crossed it.
func (e *Endpoint) SetCapture(c *Capture) {
	e.capture = c
}

// Open binds the DHCPv6 client UDP socket on iface, joining the
// All_DHCP_Relay_Agents_and_Servers multicast group so the endpoint can also
// receive RECONFIGURE messages sent to that address.
func Open(iface string) (*Endpoint, error) {
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, fmt.Errorf("netio: resolve interface %s: %w", iface, err)
	}

	laddr := &net.UDPAddr{Port: ClientPort, Zone: iface}
	conn, err := net.ListenUDP("udp6", laddr)
	if err != nil {
		return nil, fmt.Errorf("netio: listen on %s:%d: %w", iface, ClientPort, err)
	}

	pc := ipv6.NewPacketConn(conn)
	group := &net.UDPAddr{IP: net.ParseIP(AllServersMulticast)}
	if err := pc.JoinGroup(ifi, group); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("netio: join %s on %s: %w", AllServersMulticast, iface, err)
	}

	return &Endpoint{iface: iface, conn: conn}, nil
}

// Close releases the UDP socket.
func (e *Endpoint) Close() error {
	if e == nil || e.conn == nil {
		return nil
	}
	return e.conn.Close()
}

// SendFromSource transmits packet to dest:destPort, sourced from srcAddr
// (spec section 6's udp_send_from_source). sourceIndex names the IA-Address
// record the caller is acting on, used only for host-side diagnostics.
func (e *Endpoint) SendFromSource(packet []byte, dest net.IP, destPort int, srcAddr net.IP, sourceIndex int) error {
	raddr := &net.UDPAddr{IP: dest, Port: destPort, Zone: e.iface}
	_, err := e.conn.WriteToUDP(packet, raddr)
	if err != nil {
		return fmt.Errorf("netio: send to %s: %w", raddr, err)
	}
	if e.capture != nil {
		_ = e.capture.RecordSent(packet, srcAddr, dest, destPort)
	}
	return nil
}

// Receive blocks for up to timeout waiting for one UDP datagram, returning
// its payload and source address (spec section 6's udp_receive). A timeout
// with no data returns (nil, nil, nil); callers treat that as "no reply
// yet" rather than an error, matching the scheduler's Tick/Timer contract.
func (e *Endpoint) Receive(ctx context.Context, timeout time.Duration) ([]byte, net.IP, error) {
	if err := e.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, nil, fmt.Errorf("netio: set read deadline: %w", err)
	}
	buf := make([]byte, 1500)
	n, raddr, err := e.conn.ReadFromUDP(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		default:
		}
		return nil, nil, fmt.Errorf("netio: receive: %w", err)
	}
	out := make([]byte, n)
	copy(out, buf[:n])
	if e.capture != nil {
		local := e.conn.LocalAddr().(*net.UDPAddr).IP
		_ = e.capture.RecordReceived(out, raddr.IP, local)
	}
	return out, raddr.IP, nil
}

// AllocatePacket returns a zeroed buffer sized for one DHCPv6 message
// (spec section 6's packet_allocate). Present as a discrete operation,
// rather than an inline make([]byte, n), so a future pool-backed
// implementation can replace it without touching call sites.
func AllocatePacket(size int) []byte {
	return make([]byte, size)
}

// ReleasePacket is the symmetric packet_release; it is a no-op for the
// garbage-collected allocator above but kept as a named call so the
// collaborator contract of spec section 6 is honored explicitly rather than
// silently dropped.
func ReleasePacket(buf []byte) {}
