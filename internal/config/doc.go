// Package config loads, normalizes, and validates stagehand configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and overlays a .env file when one sits next to
// the configuration. The Config type centralizes every knob the daemon and CLI
// need: where the database and logs live, how often the worker polls, how long
// an external tool may run, and the settings row seeded into a fresh store.
//
// Always obtain settings through this package so downstream code receives
// expanded paths, canonical log formats, and clear validation errors.
package config
