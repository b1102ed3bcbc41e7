package main

import (
	"fmt"

	"github.com/krisarmstrong/dhcp6c/pkg/dhcpv6/client"
	"github.com/krisarmstrong/dhcp6c/pkg/logging"
)

// reportOutcome prints the session's address list on success, or an error
// built from the recorded server status on failure, and returns a non-nil
// error for commands that did not reach a bound state.
func reportOutcome(h *sessionHandle, verb string, state client.State, waitErr error) error {
	if waitErr != nil {
		return waitErr
	}
	if state != client.StateBoundToAddress {
		if msg := h.serverError(); msg != "" {
			return fmt.Errorf("%s did not bind: %s", verb, msg)
		}
		return fmt.Errorf("%s returned to INIT without binding", verb)
	}

	logging.Success("%s complete", verb)
	for _, a := range h.session.Identity().Addresses() {
		fmt.Printf("  %s  preferred=%ds valid=%ds  %s\n",
			a.Address, a.PreferredLifetime, a.ValidLifetime, a.Status)
	}
	return nil
}
