// Package config loads and validates medintake configuration.
//
// Configuration lives in a TOML file. Load applies repository defaults,
// decodes the file when present, expands and normalizes path values, and
// validates the result so downstream packages can trust every field. The
// package also owns sample config generation for `medintake config init`.
package config
