// Package config provides configuration loading and validation for the
// dictation daemon. It layers a YAML file over built-in defaults, resolves
// secrets from the environment, and validates every section.
package config
