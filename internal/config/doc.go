// Package config provides the configuration of a crawl run: defaults,
// validation, and the optional configuration file (YAML or TOML) holding
// global crawl settings, domain allow and block lists, and per-site
// overrides.
package config
