// Package config loads, validates, and defaults the TOML configuration that
// drives the snapsync daemon and CLI.
package config
