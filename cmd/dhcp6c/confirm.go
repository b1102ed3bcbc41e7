package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var confirmCmd = &cobra.Command{
	Use:   "confirm",
	Short: "Confirm a previously obtained lease is still valid on this link",
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
		if err := h.session.RequestConfirm(); err != nil {
			return fmt.Errorf("confirm: %w", err)
		}

		state, waitErr := h.awaitTerminal(flagTimeout)
		return reportOutcome(h, "confirm", state, waitErr)
	},
}
