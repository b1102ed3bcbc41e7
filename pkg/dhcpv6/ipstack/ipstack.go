//go:build linux

// Package ipstack is the concrete host-side implementation of
// netio.IPStack: the address table, default-router list, and DAD
// notification collaborator the client core treats as external (spec
// section 6). Grounded on libnetwork/osl's netlink-backed interface
// management — AddrAdd/AddrDel/RouteAdd/RouteDel against a real link, DAD
// flags inspected the same way port_mapping_linux_test.go's NODAD setup
// does, generalized from one-shot test fixtures to a running watch loop.
package ipstack

import (
	"fmt"
	"net"
	"sync"
	"syscall"

	"github.com/vishvananda/netlink"
)

// Stack implements netio.IPStack against the Linux kernel's IPv6 stack via
// netlink. One Stack serves one interface.
type Stack struct {
	mu   sync.Mutex
	link netlink.Link

	nextIndex int
	installed map[int]*netlink.Addr

	watchOnce sync.Once
	watchDone chan struct{}
	notify    func(address net.IP, succeeded bool)
}

// New resolves iface and returns a Stack bound to it.
func New(iface string) (*Stack, error) {
	link, err := netlink.LinkByName(iface)
	if err != nil {
		return nil, fmt.Errorf("ipstack: resolve link %s: %w", iface, err)
	}
	return &Stack{
		link:      link,
		installed: make(map[int]*netlink.Addr),
	}, nil
}

// AddressSet installs address/prefix on the link with IFA_F_TENTATIVE so the
// kernel performs DAD before the address is usable (spec section 6's
// address_set, spec section 4.5's DadTentative state).
func (s *Stack) AddressSet(iface string, address net.IP, prefix int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ipNet := &net.IPNet{IP: address, Mask: net.CIDRMask(prefix, 128)}
	addr := &netlink.Addr{IPNet: ipNet, Flags: syscall.IFA_F_TENTATIVE}
	if err := netlink.AddrAdd(s.link, addr); err != nil {
		return -1, fmt.Errorf("ipstack: add address %s: %w", address, err)
	}

	s.nextIndex++
	index := s.nextIndex
	s.installed[index] = addr
	return index, nil
}

// Adopt registers an address that is already present on the link (e.g.
// restored from a persisted record in a new process) so a later
// AddressDelete can find it, without re-running AddrAdd against the
// kernel. It returns an error if the address is not actually installed.
func (s *Stack) Adopt(address net.IP) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	addrs, err := netlink.AddrList(s.link, netlink.FAMILY_V6)
	if err != nil {
		return -1, fmt.Errorf("ipstack: list addresses: %w", err)
	}
	for _, a := range addrs {
		if a.IP.Equal(address) {
			s.nextIndex++
			index := s.nextIndex
			s.installed[index] = &a
			return index, nil
		}
	}
	return -1, fmt.Errorf("ipstack: %s is not installed on the link", address)
}

// AddressDelete removes the address previously installed at index.
func (s *Stack) AddressDelete(index int) error {
	s.mu.Lock()
	addr, ok := s.installed[index]
	if ok {
		delete(s.installed, index)
	}
	s.mu.Unlock()

	if !ok {
		return nil
	}
	if err := netlink.AddrDel(s.link, addr); err != nil {
		return fmt.Errorf("ipstack: delete address: %w", err)
	}
	return nil
}

// DefaultRouterAdd installs a default route out-of-band of DHCPv6, e.g. one
// learned from Router Advertisements.
func (s *Stack) DefaultRouterAdd(address net.IP, iface string, lifetime uint32) error {
	route := &netlink.Route{
		LinkIndex: s.link.Attrs().Index,
		Gw:        address,
	}
	if err := netlink.RouteAdd(route); err != nil {
		return fmt.Errorf("ipstack: add default route via %s: %w", address, err)
	}
	return nil
}

// DefaultRouterDelete removes a previously installed default route.
func (s *Stack) DefaultRouterDelete(address net.IP) error {
	route := &netlink.Route{
		LinkIndex: s.link.Attrs().Index,
		Gw:        address,
	}
	if err := netlink.RouteDel(route); err != nil {
		return fmt.Errorf("ipstack: delete default route via %s: %w", address, err)
	}
	return nil
}

// SourceAddressForUnicast asks the kernel which source address it would use
// to reach dest, by opening a connected UDP socket and reading its local
// address back (the standard Go idiom for route-table source selection,
// since there is no netlink call for this).
func (s *Stack) SourceAddressForUnicast(dest net.IP) (net.IP, error) {
	conn, err := net.Dial("udp6", net.JoinHostPort(dest.String(), "1"))
	if err != nil {
		return nil, fmt.Errorf("ipstack: source address for %s: %w", dest, err)
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP, nil
}

// LinkLocalAddress returns the link's first link-local address.
func (s *Stack) LinkLocalAddress(iface string) (net.IP, error) {
	addrs, err := netlink.AddrList(s.link, netlink.FAMILY_V6)
	if err != nil {
		return nil, fmt.Errorf("ipstack: list addresses on %s: %w", iface, err)
	}
	for _, a := range addrs {
		if a.IP.IsLinkLocalUnicast() {
			return a.IP, nil
		}
	}
	return nil, fmt.Errorf("ipstack: no link-local address on %s", iface)
}

// NotifyAddressChange registers fn as the DAD-result callback and starts a
// netlink address-update watch loop on first call (spec section 6's
// address_change_notify).
func (s *Stack) NotifyAddressChange(fn func(address net.IP, succeeded bool)) error {
	s.mu.Lock()
	s.notify = fn
	s.mu.Unlock()

	var startErr error
	s.watchOnce.Do(func() {
		s.watchDone = make(chan struct{})
		updates := make(chan netlink.AddrUpdate)
		if err := netlink.AddrSubscribe(updates, s.watchDone); err != nil {
			startErr = fmt.Errorf("ipstack: subscribe to address updates: %w", err)
			return
		}
		go s.watchLoop(updates)
	})
	return startErr
}

// watchLoop translates netlink IFA_F_TENTATIVE/IFA_F_DADFAILED flag
// transitions on our own link into DAD success/failure callbacks.
func (s *Stack) watchLoop(updates <-chan netlink.AddrUpdate) {
	ourIndex := s.link.Attrs().Index
	for update := range updates {
		if update.LinkIndex != ourIndex || !update.NewAddr {
			continue
		}
		ip := update.LinkAddress.IP
		if update.Flags&syscall.IFA_F_DADFAILED != 0 {
			s.mu.Lock()
			fn := s.notify
			s.mu.Unlock()
			if fn != nil {
				fn(ip, false)
			}
			continue
		}
		if update.Flags&syscall.IFA_F_TENTATIVE == 0 {
			s.mu.Lock()
			fn := s.notify
			s.mu.Unlock()
			if fn != nil {
				fn(ip, true)
			}
		}
	}
}

// Close stops the address-watch goroutine, if started.
func (s *Stack) Close() {
	if s.watchDone != nil {
		close(s.watchDone)
	}
}
