// Package main provides the dhcp6c command-line interface for the DHCPv6
// client core.
package main

func main() {
	Execute()
}
