// Package config reads run tunables from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const envPrefix = "MLA_"

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate
)

// Config holds everything that is not a positional input file.
type Config struct {
	LogLevel        string        `validate:"oneof=trace debug info warn error"`
	NoColor         bool
	KnownHostsFile  string        `validate:"omitempty,file"`
	UseAgent        bool
	ConnectTimeout  time.Duration `validate:"gt=0"`
	ConnectAttempts int           `validate:"min=1,max=10"`
	Parallel        int           `validate:"min=1,max=64"`
	MetricsFile     string
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		LogLevel:        "debug",
		ConnectTimeout:  10 * time.Second,
		ConnectAttempts: 3,
		Parallel:        1,
	}
}

// Load reads an optional .env file from the working directory, then the
// MLA_* environment variables, and validates the result.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup, applying defaults for unset variables.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	get := func(name string) (string, bool) {
		v, ok := lookup(envPrefix + name)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get("LOG_LEVEL"); ok {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v, ok := get("KNOWN_HOSTS"); ok {
		cfg.KnownHostsFile = v
	}
	if v, ok := get("METRICS_FILE"); ok {
		cfg.MetricsFile = v
	}

	var err error
	if v, ok := get("NO_COLOR"); ok {
		if cfg.NoColor, err = strconv.ParseBool(v); err != nil {
			return Config{}, fmt.Errorf("%sNO_COLOR: %w", envPrefix, err)
		}
	}
	if v, ok := get("SSH_AGENT"); ok {
		if cfg.UseAgent, err = strconv.ParseBool(v); err != nil {
			return Config{}, fmt.Errorf("%sSSH_AGENT: %w", envPrefix, err)
		}
	}
	if v, ok := get("CONNECT_TIMEOUT"); ok {
		if cfg.ConnectTimeout, err = time.ParseDuration(v); err != nil {
			return Config{}, fmt.Errorf("%sCONNECT_TIMEOUT: %w", envPrefix, err)
		}
	}
	if v, ok := get("CONNECT_ATTEMPTS"); ok {
		if cfg.ConnectAttempts, err = strconv.Atoi(v); err != nil {
			return Config{}, fmt.Errorf("%sCONNECT_ATTEMPTS: %w", envPrefix, err)
		}
	}
	if v, ok := get("PARALLEL"); ok {
		if cfg.Parallel, err = strconv.Atoi(v); err != nil {
			return Config{}, fmt.Errorf("%sPARALLEL: %w", envPrefix, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c Config) Validate() error {
	validatorOnce.Do(func() {
		validateInst = validator.New()
	})
	if err := validateInst.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid configuration: %s failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
