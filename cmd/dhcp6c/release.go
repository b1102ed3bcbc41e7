package main

import (
	"fmt"

	"github.com/krisarmstrong/dhcp6c/pkg/dhcpv6/client"
	"github.com/krisarmstrong/dhcp6c/pkg/logging"
	"github.com/spf13/cobra"
)

var releaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Release a previously obtained lease",
	RunE: func(cmd *cobra.Command, args []string) error {
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
		if err := h.session.RequestRelease(); err != nil {
			return fmt.Errorf("release: %w", err)
		}

		state, waitErr := h.awaitTerminal(flagTimeout)
		if waitErr != nil {
			return waitErr
		}
		if state != client.StateInit {
			return fmt.Errorf("release did not complete, session ended in %s", state)
		}
		logging.Success("release complete")
		return nil
	},
}
