package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DefaultEnvFile is the dotenv file read when none is named.
const DefaultEnvFile = ".env"

// Environment variables that override the config file.
const (
	EnvBaseURL     = "ZOOPLA_BASE_URL"
	EnvProxy       = "ZOOPLA_PROXY"
	EnvCookie      = "ZOOPLA_COOKIE"
	EnvUserAgent   = "ZOOPLA_USER_AGENT"
	EnvTimeout     = "ZOOPLA_TIMEOUT"
	EnvWorkers     = "ZOOPLA_WORKERS"
	EnvRate        = "ZOOPLA_RATE"
	EnvDatabaseURL = "ZOOPLA_DATABASE_URL"
	EnvDataDir     = "ZOOPLA_DATA_DIR"
	EnvAMQPURL     = "ZOOPLA_AMQP_URL"
	EnvLogFormat   = "ZOOPLA_LOG_FORMAT"
)

// LoadDotEnv loads variables from a dotenv file into the process
// environment without overriding variables that are already set.
// With path "" the default .env is read if present.
func LoadDotEnv(path string) error {
	explicit := path != ""
	if !explicit {
		path = DefaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv copies ZOOPLA_* overrides found through lookup into c.
func ApplyEnv(c *Config, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	str(EnvBaseURL, &c.BaseURL)
	str(EnvProxy, &c.ProxyAddress)
	str(EnvCookie, &c.Cookie)
	str(EnvUserAgent, &c.UserAgent)
	str(EnvDatabaseURL, &c.DatabaseURL)
	str(EnvDataDir, &c.DBDir)
	str(EnvAMQPURL, &c.AMQPURL)
	str(EnvLogFormat, &c.LogFormat)

	if v, ok := lookup(EnvTimeout); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %w", ErrInvalidEnv, EnvTimeout, v, err)
		}
		c.Timeout = d
	}
	if v, ok := lookup(EnvWorkers); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %w", ErrInvalidEnv, EnvWorkers, v, err)
		}
		c.Workers = n
	}
	if v, ok := lookup(EnvRate); ok && v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %w", ErrInvalidEnv, EnvRate, v, err)
		}
		c.Rate = r
	}
	return nil
}
