// Package config loads, normalizes, and validates the studio TOML
// configuration.
//
// Load merges defaults, an optional config file, and environment fallbacks
// (OPENAI_API_KEY, ANTHROPIC_API_KEY, JWT_SECRET, PORT, STUDIO_ENV) into a
// Config whose paths are absolute. CreateSample writes the embedded sample file
// used by `studio config init`.
package config
