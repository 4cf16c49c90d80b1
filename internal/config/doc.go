// Package config loads the YAML service configuration over built-in
// defaults, applies .env and environment overrides for secrets and
// validates each section.
package config
