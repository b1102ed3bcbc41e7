package main

import (
	"fmt"

	"github.com/krisarmstrong/dhcp6c/pkg/dhcpv6/client"
	"github.com/krisarmstrong/dhcp6c/pkg/logging"
	"github.com/spf13/cobra"
)

var daemonRestore bool

// daemonCmd keeps a session running in the foreground: solicit (or restore)
// once, then let the worker's own tick loop carry RENEW/REBIND at T1/T2
// until the process is signalled to stop. Grounded on the teacher's
// daemon.go lifecycle shape (Config, Start, signal-driven Shutdown), trimmed
// of the API-server and multi-simulation machinery that package carried:
// one session's own ticker already does the job a separate scheduler would.
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Hold a lease and let RENEW/REBIND run automatically until stopped",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := newSessionHandle()
		if err != nil {
			return err
		}
		defer h.stop()

		if daemonRestore {
			if err := h.restoreLease(); err != nil {
				return err
			}
		}
		if err := h.start(); err != nil {
			return fmt.Errorf("start session: %w", err)
		}
		if !daemonRestore {
			if err := h.session.RequestSolicit(); err != nil {
				return fmt.Errorf("solicit: %w", err)
			}
		}

		state, waitErr := h.awaitTerminal(flagTimeout)
		if err := reportOutcome(h, "daemon: initial bind", state, waitErr); err != nil {
			return err
		}

		logging.Info("daemon running on %s, ctrl-c to stop", h.cfg.Interface)
		for {
			select {
			case <-h.ctx.Done():
				return nil
			case st := <-h.stateCh:
				logging.Protocol("dhcpv6", "state -> %s", st)
				if st == client.StateInit {
					logging.Warning("lease lost, re-soliciting")
					if err := h.session.RequestSolicit(); err != nil {
						logging.Error("re-solicit: %v", err)
					}
				}
			}
		}
	},
}

func init() {
	daemonCmd.Flags().BoolVar(&daemonRestore, "restore", false, "restore a persisted lease instead of soliciting a new one")
}
