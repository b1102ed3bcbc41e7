// Package config provides configuration validation.
package config

import "strings"

// Validator accumulates configuration errors while checking a Config
// (spec section 4.2's configuration-error taxonomy, applied at load time
// rather than per-call).
type Validator struct {
	errors *ConfigErrorList
	file   string
}

// NewValidator creates a new configuration validator.
func NewValidator(file string) *Validator {
	return &Validator{
		errors: &ConfigErrorList{File: file, Valid: true},
		file:   file,
	}
}

var validDUIDTypes = map[string]bool{"llt": true, "ll": true}
var validHwTypes = map[string]bool{"ethernet": true, "eui64": true}
var validFQDNOps = map[string]bool{"update-aaaa": true, "server-update": true, "no-update": true}
var validRequestedOptions = map[string]bool{"dns": true, "sntp": true, "timezone": true, "domain": true}

// Validate checks a complete Config, returning every accumulated error and
// warning rather than stopping at the first.
func (v *Validator) Validate(cfg *Config) *ConfigErrorList {
	if cfg == nil {
		v.addError("", "configuration is nil")
		return v.errors
	}

	if cfg.Interface == "" {
		v.addError("interface", "interface is required")
	}

	v.validateDUID(cfg.DUID)
	v.validateIANA(cfg.IANA)

	for _, opt := range cfg.RequestedOptions {
		if !validRequestedOptions[strings.ToLower(opt)] {
			v.addWarning("requested_options", "unrecognised option "+opt)
		}
	}

	if cfg.FQDN != nil {
		v.validateFQDN(*cfg.FQDN)
	}

	if cfg.MaxIAAddresses < 0 {
		v.addError("max_ia_addresses", "must not be negative")
	}

	return v.errors
}

func (v *Validator) validateDUID(d DUIDConfig) {
	if d.Type == "" {
		v.addError("duid.type", "DUID type is required (llt or ll)")
	} else if !validDUIDTypes[strings.ToLower(d.Type)] {
		v.addError("duid.type", "unsupported DUID type: "+d.Type)
	}

	if d.HwType == "" {
		v.addError("duid.hw_type", "DUID hardware type is required (ethernet or eui64)")
	} else if !validHwTypes[strings.ToLower(d.HwType)] {
		v.addError("duid.hw_type", "unsupported DUID hardware type: "+d.HwType)
	}
}

func (v *Validator) validateIANA(ia IANAConfig) {
	if ia.IAID == 0 {
		v.addError("iana.iaid", "IAID must not be zero")
	}
	if ia.T1 != 0 && ia.T2 != 0 && ia.T1 > ia.T2 {
		v.addError("iana.t1", "T1 must not exceed T2")
	}
}

func (v *Validator) validateFQDN(f FQDNConfig) {
	if len(f.Domain) > 255 {
		v.addError("fqdn.domain", "domain name exceeds 255 bytes")
	}
	if f.Op != "" && !validFQDNOps[strings.ToLower(f.Op)] {
		v.addError("fqdn.op", "unrecognised FQDN operation: "+f.Op)
	}
}

func (v *Validator) addError(field, message string) {
	v.errors.Add(NewConfigError(v.file, field, message))
}

func (v *Validator) addWarning(field, message string) {
	v.errors.Add(NewConfigWarning(v.file, field, message))
}
