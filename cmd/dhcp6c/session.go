package main

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/krisarmstrong/dhcp6c/pkg/config"
	"github.com/krisarmstrong/dhcp6c/pkg/dhcpv6/client"
	"github.com/krisarmstrong/dhcp6c/pkg/dhcpv6/identity"
	"github.com/krisarmstrong/dhcp6c/pkg/dhcpv6/ipstack"
	"github.com/krisarmstrong/dhcp6c/pkg/dhcpv6/netio"
	"github.com/krisarmstrong/dhcp6c/pkg/dhcpv6/store"
	"github.com/krisarmstrong/dhcp6c/pkg/dhcpv6/wire"
	"github.com/krisarmstrong/dhcp6c/pkg/logging"
	"github.com/krisarmstrong/dhcp6c/pkg/stats"
)

// sessionHandle bundles the session and its collaborators a subcommand
// needs to drive one request, observe its outcome, and tear back down.
type sessionHandle struct {
	session *client.Session
	stack   *ipstack.Stack
	stats   *stats.Statistics
	cfg     *config.Config
	rec     *store.Store
	capture *netio.Capture

	stateCh chan client.State
	ctx     context.Context

	mu      sync.Mutex
	lastErr string
}

// newSessionHandle loads the config, resolves the interface, and wires a
// Session against the Linux netlink IP stack. It does not call Start; the
// caller does that after any request-specific setup.
func newSessionHandle() (*sessionHandle, error) {
	logging.InitColors(!flagNoColor)

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if flagInterface != "" {
		cfg.Interface = flagInterface
	}

	ifi, err := net.InterfaceByName(cfg.Interface)
	if err != nil {
		return nil, fmt.Errorf("resolve interface %s: %w", cfg.Interface, err)
	}

	stk, err := ipstack.New(cfg.Interface)
	if err != nil {
		return nil, fmt.Errorf("bind IP stack on %s: %w", cfg.Interface, err)
	}

	st := stats.NewStatistics(cfg.Interface, version)

	var capture *netio.Capture
	if flagPcap || cfg.PcapDiagnostic {
		path := strings.TrimSuffix(flagConfig, ".yaml") + ".pcap"
		capture, err = netio.OpenCapture(path)
		if err != nil {
			return nil, fmt.Errorf("open capture: %w", err)
		}
		logging.Info("recording exchange to %s", path)
	}

	rec, err := store.Open(cfg.PersistPath)
	if err != nil {
		rec = nil // persistence disabled, not fatal
	}

	h := &sessionHandle{
		stack:   stk,
		stats:   st,
		cfg:     cfg,
		rec:     rec,
		capture: capture,
		stateCh: make(chan client.State, 16),
	}

	sess := client.NewSession(client.Config{
		Interface:      cfg.Interface,
		HardwareAddr:   ifi.HardwareAddr,
		MaxIAAddresses: cfg.MaxIAAddresses,
		RapidCommit:    cfg.RapidCommit,
		DADEnabled:     true,
		Stats:          st,
		OnStateChange: func(old, new client.State) {
			select {
			case h.stateCh <- new:
			default:
			}
		},
		OnServerError: func(status wire.StatusCode, msgType wire.MessageType) {
			h.mu.Lock()
			h.lastErr = fmt.Sprintf("%s returned status %d", msgType, status)
			h.mu.Unlock()
		},
	}, stk)
	h.session = sess
	sess.SetCapture(capture)

	if err := configureIdentity(sess, cfg, ifi.HardwareAddr); err != nil {
		return nil, err
	}

	return h, nil
}

// configureIdentity seeds the identity store from the loaded config before
// Start validates it (spec section 4.2).
func configureIdentity(sess *client.Session, cfg *config.Config, linkLayer net.HardwareAddr) error {
	id := sess.Identity()

	var duidType uint16
	switch strings.ToLower(cfg.DUID.Type) {
	case "llt":
		duidType = wire.DUIDLinkLayerPlusTime
	default:
		duidType = wire.DUIDLinkLayerOnly
	}

	var hwType uint16
	var addr []byte
	switch strings.ToLower(cfg.DUID.HwType) {
	case "eui64":
		hwType = wire.HwTypeEUI64
		addr = eui64From(linkLayer)
	default:
		hwType = wire.HwTypeEthernet
		addr = linkLayer
	}

	if err := id.CreateClientDUID(duidType, hwType, cfg.DUID.Time, addr); err != nil {
		return fmt.Errorf("configure client DUID: %w", err)
	}
	if err := id.CreateClientIANA(cfg.IANA.IAID, cfg.IANA.T1, cfg.IANA.T2); err != nil {
		return fmt.Errorf("configure IA_NA: %w", err)
	}

	if cfg.RequestsOption("dns") {
		id.RequestOption(identity.OptDNSServer, true)
	}
	if cfg.RequestsOption("sntp") {
		id.RequestOption(identity.OptSNTPServer, true)
	}
	if cfg.RequestsOption("timezone") {
		id.RequestOption(identity.OptNewPosixTimeZone, true)
	}
	if cfg.RequestsOption("domain") {
		id.RequestOption(identity.OptDomainName, true)
	}

	if cfg.FQDN != nil {
		id.RequestOption(identity.OptClientFQDN, true)
		op := identity.DesiresUpdateAAAARR
		switch strings.ToLower(cfg.FQDN.Op) {
		case "server-update":
			op = identity.DesiresServerDoDNSUpdate
		case "no-update":
			op = identity.DesiresNoServerUpdate
		}
		if err := id.RequestFQDN(cfg.FQDN.Domain, op); err != nil {
			return fmt.Errorf("configure client FQDN: %w", err)
		}
	}

	return nil
}

// eui64From pads a 6-byte MAC into an 8-byte EUI-64 identifier (the
// standard ff:fe insertion), since DUID-LL/DUID-LLT with HwTypeEUI64
// requires an 8-byte link-layer address.
func eui64From(mac net.HardwareAddr) []byte {
	if len(mac) != 6 {
		return mac
	}
	out := make([]byte, 8)
	copy(out[0:3], mac[0:3])
	out[3] = 0xff
	out[4] = 0xfe
	copy(out[5:8], mac[3:6])
	return out
}

// start opens the endpoint, attaches the capture recorder, and launches
// the worker goroutine.
func (h *sessionHandle) start() error {
	h.ctx = cmdContext()
	return h.session.Start(h.ctx)
}

// restoreLease loads the persisted record for this interface and seeds the
// identity store's address list from it, for commands that act on an
// already-held lease (CONFIRM/RENEW/REBIND/RELEASE/DECLINE) rather than
// soliciting a new one.
func (h *sessionHandle) restoreLease() error {
	if h.rec == nil {
		return fmt.Errorf("no persisted record store configured (set persist_path)")
	}
	rec, ok, err := h.rec.Restore(h.cfg.Interface)
	if err != nil {
		return fmt.Errorf("restore session record: %w", err)
	}
	if !ok {
		return fmt.Errorf("no persisted lease found for %s; run solicit first", h.cfg.Interface)
	}

	id := h.session.Identity()
	if len(rec.ServerDUID) > 0 {
		if d, err := wire.DecodeDUID(rec.ServerDUID); err == nil {
			id.SetServerDUID(d)
		}
	}
	if err := id.SetLeaseTimes(rec.T1, rec.T2); err != nil {
		return fmt.Errorf("restore lease times: %w", err)
	}
	for _, a := range rec.Addresses {
		if identity.AddressStatus(a.Status) != identity.StatusValid {
			continue
		}
		if err := id.AddIA(a.Address, a.PreferredLifetime, a.ValidLifetime); err != nil {
			return fmt.Errorf("restore address %s: %w", a.Address, err)
		}
		index, err := h.stack.Adopt(a.Address)
		if err != nil {
			logging.Warning("restore %s: %v", a.Address, err)
			index = -1
		}
		id.UpdateAddressStatus(a.Address, identity.StatusValid, index)
	}
	return nil
}

// awaitTerminal blocks until the session reaches BOUND_TO_ADDRESS or INIT
// (the two resting states the worker settles into once a transaction
// finishes, per spec section 4.5) or the timeout elapses.
func (h *sessionHandle) awaitTerminal(timeout time.Duration) (client.State, error) {
	deadline := time.After(timeout)
	for {
		select {
		case st := <-h.stateCh:
			if st == client.StateBoundToAddress || st == client.StateInit {
				return st, nil
			}
		case <-deadline:
			return 0, fmt.Errorf("timed out after %s waiting for the session to settle", timeout)
		}
	}
}

func (h *sessionHandle) serverError() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastErr
}

// stop persists the session record (if configured) and tears everything
// down.
func (h *sessionHandle) stop() {
	h.session.Stop()
	if h.rec != nil {
		if err := h.rec.Snapshot(h.snapshot()); err != nil {
			logging.Warning("persist session record: %v", err)
		}
		_ = h.rec.Close()
	}
	if h.capture != nil {
		_ = h.capture.Close()
	}
	h.stack.Close()
}

func (h *sessionHandle) snapshot() store.Record {
	id := h.session.Identity()
	addrs := id.Addresses()
	rec := store.Record{
		Interface: h.cfg.Interface,
		State:     h.session.State().String(),
		Requested: uint8(id.RequestedOptions()),
	}
	if d := id.ClientDUID(); d != nil {
		rec.ClientDUID = d.Encode()
	}
	if d := id.ServerDUID(); d != nil {
		rec.ServerDUID = d.Encode()
	}
	if ia := id.IANA(); ia != nil {
		rec.IAID, rec.T1, rec.T2 = ia.IAID, ia.T1, ia.T2
	}
	for _, a := range addrs {
		rec.Addresses = append(rec.Addresses, store.AddressRecord{
			Address:           a.Address,
			PreferredLifetime: a.PreferredLifetime,
			ValidLifetime:     a.ValidLifetime,
			Status:            int(a.Status),
			StackIndex:        a.StackIndex,
		})
	}
	if f := id.FQDN(); f != nil {
		rec.FQDNFlags, rec.FQDNDomain = f.Flags, f.Domain
	}
	opts := id.ServerOptions()
	rec.DNSServers, rec.SNTPServers, rec.TimeZone, rec.DomainNames =
		opts.DNSServers, opts.SNTPServers, opts.TimeZone, opts.DomainNames
	return rec
}
