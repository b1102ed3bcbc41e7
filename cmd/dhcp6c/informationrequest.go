package main

import (
	"fmt"

	"github.com/krisarmstrong/dhcp6c/pkg/logging"
	"github.com/spf13/cobra"
)

var informationRequestCmd = &cobra.Command{
	Use:   "information-request",
	Short: "Request server options without an address (stateless configuration)",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := newSessionHandle()
		if err != nil {
			return err
		}
		defer h.stop()

		if err := h.start(); err != nil {
			return fmt.Errorf("start session: %w", err)
		}
		if err := h.session.RequestInformationRequest(); err != nil {
			return fmt.Errorf("information-request: %w", err)
		}

		if _, waitErr := h.awaitTerminal(flagTimeout); waitErr != nil {
			return waitErr
		}

		opts := h.session.Identity().ServerOptions()
		logging.Success("information-request complete")
		fmt.Printf("  dns servers:  %v\n", opts.DNSServers)
		fmt.Printf("  sntp servers: %v\n", opts.SNTPServers)
		fmt.Printf("  time zone:    %s\n", opts.TimeZone)
		fmt.Printf("  domain names: %v\n", opts.DomainNames)
		return nil
	},
}
