package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rebindCmd = &cobra.Command{
	Use:   "rebind",
	Short: "Force REBIND of a previously obtained lease before T2 fires",
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
		if err := h.session.RequestRebind(); err != nil {
			return fmt.Errorf("rebind: %w", err)
		}

		state, waitErr := h.awaitTerminal(flagTimeout)
		return reportOutcome(h, "rebind", state, waitErr)
	},
}
