package sntp

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
)

var ErrInvalidConfig = errors.New("invalid sntp config")

// Config holds the static client configuration. Every field can be set from
// the environment; unset variables take the envDefault values.
type Config struct {
	Servers       []string      `env:"NTP_SERVERS" envSeparator:"," envDefault:"us.pool.ntp.org,de.pool.ntp.org,at.pool.ntp.org,uk.pool.ntp.org,au.pool.ntp.org"`
	Port          string        `env:"NTP_PORT" envDefault:"123"`
	SocketTimeout time.Duration `env:"NTP_TIMEOUT" envDefault:"10s"`
	MaxRetries    int           `env:"NTP_MAX_RETRIES" envDefault:"5"` // total attempts across Servers
	Version       int           `env:"NTP_VERSION" envDefault:"3"`
}

// LoadConfig reads the config from the process environment.
func LoadConfig() (Config, error) {
	return ParseConfig(nil)
}

// ParseConfig reads the config from environment, or from the process
// environment when environment is nil.
func ParseConfig(environment map[string]string) (Config, error) {
	config := Config{}
	if err := env.Parse(&config, env.Options{Environment: environment}); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// DefaultConfig returns the built-in defaults, ignoring the environment.
func DefaultConfig() Config {
	config, err := ParseConfig(map[string]string{})
	if err != nil {
		panic(err)
	}
	return config
}

func (config Config) Validate() error {
	if len(config.Servers) == 0 {
		return fmt.Errorf("%w: no servers", ErrInvalidConfig)
	}
	for _, server := range config.Servers {
		if server == "" {
			return fmt.Errorf("%w: empty server name", ErrInvalidConfig)
		}
	}
	if config.Port == "" {
		return fmt.Errorf("%w: empty port", ErrInvalidConfig)
	}
	if config.SocketTimeout <= 0 {
		return fmt.Errorf("%w: socket timeout must be positive, got %v", ErrInvalidConfig, config.SocketTimeout)
	}
	if config.MaxRetries < 1 {
		return fmt.Errorf("%w: max retries must be at least 1, got %d", ErrInvalidConfig, config.MaxRetries)
	}
	if config.Version < 1 || config.Version > 4 {
		return fmt.Errorf("%w: only NTP versions 1 to 4 are supported, got %d", ErrInvalidConfig, config.Version)
	}
	return nil
}
