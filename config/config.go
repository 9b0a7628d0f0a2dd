// Package config reads runtime settings from OTPVAULT_* environment variables,
// after loading an optional .env file from the working directory.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/fahmaliyi/otpvault/backend"
	"github.com/fahmaliyi/otpvault/vault"
)

const (
	Prefix  = "OTPVAULT_"
	dirName = ".otpvault"
)

var (
	ErrParsingConfig = errors.New("failed to parse environment variables into config")
	ErrInvalidValue  = errors.New("invalid config value")
)

type Config struct {
	Backend string `env:"BACKEND" envDefault:"vault"`
	Path    string `env:"PATH"`

	KDF        string `env:"KDF" envDefault:"argon2id"`
	KDFTime    uint32 `env:"KDF_TIME" envDefault:"3"`
	KDFMemory  uint32 `env:"KDF_MEMORY" envDefault:"65536"`
	KDFThreads uint8  `env:"KDF_THREADS" envDefault:"1"`
	Cipher     string `env:"CIPHER" envDefault:"aes-256-gcm"`

	Workers     int           `env:"WORKERS" envDefault:"2"`
	RefreshStep time.Duration `env:"REFRESH_STEP" envDefault:"30s"`

	UI             string        `env:"UI" envDefault:"tui"`
	ClipboardClear time.Duration `env:"CLIPBOARD_CLEAR" envDefault:"30s"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
	LogFile   string `env:"LOG_FILE"`
}

// Load reads .env (if present) and the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return parse(env.Options{Prefix: Prefix})
}

// LoadFrom reads settings from environ only, ignoring the process environment.
func LoadFrom(environ map[string]string) (Config, error) {
	return parse(env.Options{Prefix: Prefix, Environment: environ})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, errors.Join(ErrParsingConfig, err)
	}
	if err := cfg.resolve(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) resolve() error {
	kind, ok := backend.ParseKind(c.Backend)
	if !ok {
		return fmt.Errorf("%w: backend %q", ErrInvalidValue, c.Backend)
	}
	c.Backend = string(kind)

	if _, ok := vault.ParseKDF(c.KDF); !ok {
		return fmt.Errorf("%w: kdf %q", ErrInvalidValue, c.KDF)
	}
	if err := c.KDFParams().Check(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	if _, ok := vault.ParseCipher(c.Cipher); !ok {
		return fmt.Errorf("%w: cipher %q", ErrInvalidValue, c.Cipher)
	}
	if c.RefreshStep < time.Second {
		return fmt.Errorf("%w: refresh step %s", ErrInvalidValue, c.RefreshStep)
	}
	if c.UI != "tui" && c.UI != "cli" {
		return fmt.Errorf("%w: ui %q", ErrInvalidValue, c.UI)
	}

	if c.Path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home directory: %w", err)
		}
		c.Path = filepath.Join(home, dirName, defaultFile(kind))
	}
	return nil
}

func defaultFile(kind backend.Kind) string {
	if kind == backend.KindKDBX {
		return "database.kdbx"
	}
	return "vault.dat"
}

func (c Config) BackendKind() backend.Kind {
	kind, _ := backend.ParseKind(c.Backend)
	return kind
}

// KDFParams returns the configured parameters without a salt.
func (c Config) KDFParams() vault.KDFParams {
	alg, _ := vault.ParseKDF(c.KDF)
	return vault.KDFParams{Algorithm: alg, Time: c.KDFTime, Memory: c.KDFMemory, Threads: c.KDFThreads}
}

func (c Config) CipherID() vault.Cipher {
	ci, _ := vault.ParseCipher(c.Cipher)
	return ci
}

// BackendOptions fills the storage settings; the caller adds pool, clock and logger.
func (c Config) BackendOptions() backend.Options {
	return backend.Options{
		Kind:        c.BackendKind(),
		Path:        c.Path,
		KDF:         c.KDFParams(),
		Cipher:      c.CipherID(),
		RefreshStep: uint64(c.RefreshStep / time.Second),
	}
}
