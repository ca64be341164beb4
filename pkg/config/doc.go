// Package config loads application configuration from WARDEN_*
// environment variables with typed getters, defaults and validation.
package config
