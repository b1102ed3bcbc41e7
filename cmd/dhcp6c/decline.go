package main

import (
	"fmt"
	"net"

	"github.com/spf13/cobra"
)

var declineAddressFlags []string

var declineCmd = &cobra.Command{
	Use:   "decline",
	Short: "Decline addresses that failed Duplicate Address Detection",
	Long: `decline tells the server not to hand out the given addresses again.
Only addresses this session has recorded as DAD-failed are declined; a given
address that is not DAD-failed is left out. With no --address flags, it
declines every address this session currently has recorded as DAD-failed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var addrs []net.IP
		for _, s := range declineAddressFlags {
			ip := net.ParseIP(s)
			if ip == nil {
				return fmt.Errorf("invalid --address %q", s)
			}
			addrs = append(addrs, ip)
		}

		h, err := newSessionHandle()
		if err != nil {
			return err
		}
		defer h.stop()

		if err := h.restoreLease(); err != nil {
			return err
		}
		if err := h.start(); err != nil {
			return fmt.Errorf("start session: %w", err)
		}
		if err := h.session.RequestDecline(addrs); err != nil {
			return fmt.Errorf("decline: %w", err)
		}

		state, waitErr := h.awaitTerminal(flagTimeout)
		return reportOutcome(h, "decline", state, waitErr)
	},
}

func init() {
	declineCmd.Flags().StringSliceVar(&declineAddressFlags, "address", nil,
		"address to decline (repeatable); defaults to every DAD-failed address")
}
