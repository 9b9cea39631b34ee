// Package config loads and validates Slotline configuration.
//
// Configuration is read from a YAML file, merged over hardcoded defaults,
// and finally overridden by SLOTLINE_* environment variables. The loaded
// Config is treated as immutable after Load returns.
package config
