package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	version = "v0.1.0"
	commit  = "dev"
	date    = "unknown"
)

// Persistent flags shared by every subcommand.
var (
	flagConfig    string
	flagInterface string
	flagDebug     int
	flagNoColor   bool
	flagPcap      bool
	flagTimeout   time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "dhcp6c",
	Short: "DHCPv6 client core",
	Long: `dhcp6c drives one DHCPv6 client session per invocation: solicit a
lease, confirm or renew one already held, or release it, against the
RFC 3315 state machine and option set.`,
	Version: version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("dhcp6c %s (commit: %s, built: %s)\n", version, commit, date))

	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "dhcp6c.yaml", "path to the session config file")
	rootCmd.PersistentFlags().StringVarP(&flagInterface, "interface", "i", "", "override the config file's interface")
	rootCmd.PersistentFlags().IntVar(&flagDebug, "debug-level", 0, "protocol debug verbosity (0-3)")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "disable colored log output")
	rootCmd.PersistentFlags().BoolVar(&flagPcap, "pcap", false, "capture the exchange to a pcap file alongside the config")
	rootCmd.PersistentFlags().DurationVar(&flagTimeout, "timeout", 30*time.Second, "how long to wait for the session to reach a terminal state")

	rootCmd.AddCommand(solicitCmd, confirmCmd, renewCmd, rebindCmd, releaseCmd, declineCmd, informationRequestCmd, statusCmd, daemonCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
