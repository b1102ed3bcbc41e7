package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var renewCmd = &cobra.Command{
	Use:   "renew",
	Short: "Force RENEW of a previously obtained lease before T1 fires",
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
		if err := h.session.RequestRenew(); err != nil {
			return fmt.Errorf("renew: %w", err)
		}

		state, waitErr := h.awaitTerminal(flagTimeout)
		return reportOutcome(h, "renew", state, waitErr)
	},
}
