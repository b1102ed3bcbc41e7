// Package config provides configuration file loading and validation for the
// DHCPv6 client session.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Default configuration values (spec section 4.2, section 4.3).
const (
	DefaultMaxIAAddresses = 1
	DefaultDebugLevel     = 0
)

// Config is the full configuration for one DHCPv6 client session, loaded
// from YAML (spec section 6's host glue: interface, DUID policy, requested
// options, FQDN policy, persisted-record path).
type Config struct {
	Interface string `yaml:"interface"`

	DUID DUIDConfig `yaml:"duid"`
	IANA IANAConfig `yaml:"iana"`

	RequestedOptions []string    `yaml:"requested_options"`
	FQDN             *FQDNConfig `yaml:"fqdn,omitempty"`

	RapidCommit bool `yaml:"rapid_commit"`

	MaxIAAddresses int    `yaml:"max_ia_addresses"`
	PersistPath    string `yaml:"persist_path"`
	PcapDiagnostic bool   `yaml:"pcap_diagnostic"`

	DebugLevel int `yaml:"debug_level"`
}

// DUIDConfig selects the client DUID type and hardware type (spec
// section 4.2). Type is one of "llt" (DUID-LLT) or "ll" (DUID-LL);
// HwType is one of "ethernet" or "eui64".
type DUIDConfig struct {
	Type   string `yaml:"type"`
	HwType string `yaml:"hw_type"`
	// Time overrides the synthesized DUID-LLT timestamp; 0 means synthesize.
	Time uint32 `yaml:"time"`
}

// IANAConfig seeds the client's IA_NA header (spec section 4.2).
type IANAConfig struct {
	IAID uint32 `yaml:"iaid"`
	T1   uint32 `yaml:"t1"`
	T2   uint32 `yaml:"t2"`
}

// FQDNConfig mirrors identity.RequestFQDN's parameters (spec section 4.2).
// Op is one of "update-aaaa", "server-update", or "no-update".
type FQDNConfig struct {
	Domain string `yaml:"domain"`
	Op     string `yaml:"op"`
}

// Load reads and validates a DHCPv6 client configuration file.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", filename, err)
	}

	cfg := &Config{
		MaxIAAddresses: DefaultMaxIAAddresses,
		DebugLevel:     DefaultDebugLevel,
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", filename, err)
	}

	if cfg.MaxIAAddresses <= 0 {
		cfg.MaxIAAddresses = DefaultMaxIAAddresses
	}

	errs := NewValidator(filename).Validate(cfg)
	if errs.HasErrors() {
		return nil, errs
	}
	return cfg, nil
}

// RequestsOption reports whether opt (one of "dns", "sntp", "timezone",
// "domain") appears in RequestedOptions, case-insensitively.
func (c *Config) RequestsOption(opt string) bool {
	for _, o := range c.RequestedOptions {
		if strings.EqualFold(o, opt) {
			return true
		}
	}
	return false
}
