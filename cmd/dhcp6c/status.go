package main

import (
	"encoding/hex"
	"fmt"

	"github.com/krisarmstrong/dhcp6c/pkg/config"
	"github.com/krisarmstrong/dhcp6c/pkg/dhcpv6/identity"
	"github.com/krisarmstrong/dhcp6c/pkg/dhcpv6/store"
	"github.com/krisarmstrong/dhcp6c/pkg/tui"
	"github.com/spf13/cobra"
)

var statusWatch bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the persisted session record for this interface",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(flagConfig)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if flagInterface != "" {
			cfg.Interface = flagInterface
		}

		rec, err := store.Open(cfg.PersistPath)
		if err != nil {
			return fmt.Errorf("open record store: %w", err)
		}
		defer rec.Close()

		refresh := func() tui.Status {
			snapshot, _, _ := rec.Restore(cfg.Interface)
			return recordToStatus(snapshot)
		}

		if statusWatch {
			return tui.Run(refresh)
		}

		s := refresh()
		fmt.Printf("interface:    %s\n", s.Interface)
		fmt.Printf("state:        %s\n", s.State)
		fmt.Printf("client DUID:  %s\n", s.ClientDUID)
		fmt.Printf("server DUID:  %s\n", s.ServerDUID)
		fmt.Printf("T1 / T2:      %d / %d\n", s.T1, s.T2)
		fmt.Printf("accrued:      %d\n", s.AccruedSeconds)
		for _, a := range s.Addresses {
			fmt.Printf("  %s  preferred=%d valid=%d  %s\n",
				a.Address, a.PreferredLifetime, a.ValidLifetime, a.Status)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusWatch, "watch", false, "live terminal view, refreshed once per second")
}

func recordToStatus(rec store.Record) tui.Status {
	s := tui.Status{
		Interface:      rec.Interface,
		State:          rec.State,
		ClientDUID:     hex.EncodeToString(rec.ClientDUID),
		ServerDUID:     hex.EncodeToString(rec.ServerDUID),
		AccruedSeconds: rec.AccruedSeconds,
		T1:             rec.T1,
		T2:             rec.T2,
	}
	for _, a := range rec.Addresses {
		s.Addresses = append(s.Addresses, tui.LeaseAddress{
			Address:           a.Address,
			PreferredLifetime: a.PreferredLifetime,
			ValidLifetime:     a.ValidLifetime,
			Status:            identity.AddressStatus(a.Status).String(),
		})
	}
	return s
}
