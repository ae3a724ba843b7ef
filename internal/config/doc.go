// Package config holds the tool's configuration and loads it from a YAML
// file, a dotenv file and ZOOPLA_* environment variables.
package config
