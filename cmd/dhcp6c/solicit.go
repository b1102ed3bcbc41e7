package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var solicitCmd = &cobra.Command{
	Use:   "solicit",
	Short: "Solicit a DHCPv6 lease (SOLICIT/REQUEST, or Rapid Commit if configured)",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := newSessionHandle()
		if err != nil {
			return err
		}
		defer h.stop()

		if err := h.start(); err != nil {
			return fmt.Errorf("start session: %w", err)
		}
		if err := h.session.RequestSolicit(); err != nil {
			return fmt.Errorf("solicit: %w", err)
		}

		state, waitErr := h.awaitTerminal(flagTimeout)
		return reportOutcome(h, "solicit", state, waitErr)
	},
}
