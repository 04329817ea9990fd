// Package pgconfig loads session and pool settings from a YAML file, with
// ${VAR} environment substitution, for applications that prefer to manage
// connection settings as config rather than Go literals. It is a
// convenience layer around session.Options / pool.Options — nothing in
// session or pool depends on it.
package pgconfig

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pgframe/pgframe/pgerr"
	"github.com/pgframe/pgframe/pool"
	"github.com/pgframe/pgframe/session"
)

// File is the top-level YAML document shape.
type File struct {
	Client ClientConfig `yaml:"client"`
	Pool   PoolConfig   `yaml:"pool"`
}

// ClientConfig mirrors session.Options with YAML tags.
type ClientConfig struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	Host     string `yaml:"host"`
	Port     uint16 `yaml:"port"`
	Prepare  bool   `yaml:"prepare"`
}

// PoolConfig mirrors pool.Options with YAML tags and duration strings
// ("5s", "1m") instead of time.Duration values.
type PoolConfig struct {
	MaxConnections int    `yaml:"max_connections"`
	AcquireTimeout string `yaml:"acquire_timeout"`
	IdleTimeout    string `yaml:"idle_timeout"`
	MaxLifetime    string `yaml:"max_lifetime"`
	TestOnCheckout bool   `yaml:"test_on_checkout"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// substituteEnvVars replaces ${VAR_NAME} patterns with environment
// variable values, leaving unmatched patterns untouched.
func substituteEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envVarPattern.FindSubmatch(match)[1]
		if val, ok := os.LookupEnv(string(name)); ok {
			return []byte(val)
		}
		return match
	})
}

// Load reads and parses a YAML config file with environment variable
// substitution applied before unmarshaling.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pgerr.Wrap(pgerr.Io, "reading config file", err)
	}

	data = substituteEnvVars(data)

	f := &File{}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, pgerr.Wrap(pgerr.Io, "parsing config file", err)
	}
	applyDefaults(f)
	return f, nil
}

func applyDefaults(f *File) {
	if f.Client.Port == 0 {
		f.Client.Port = 5432
	}
	if f.Pool.MaxConnections == 0 {
		f.Pool.MaxConnections = 10
	}
	if f.Pool.AcquireTimeout == "" {
		f.Pool.AcquireTimeout = "30s"
	}
}

// SessionOptions converts ClientConfig into session.Options.
func (f *File) SessionOptions() session.Options {
	c := f.Client
	return session.Options{
		User:     c.User,
		Password: c.Password,
		Database: c.Database,
		Host:     c.Host,
		Port:     c.Port,
		Prepare:  c.Prepare,
	}
}

// PoolOptions converts File into pool.Options, parsing its duration
// strings.
func (f *File) PoolOptions() (pool.Options, error) {
	acquire, err := parseDuration(f.Pool.AcquireTimeout, 30*time.Second)
	if err != nil {
		return pool.Options{}, fmt.Errorf("acquire_timeout: %w", err)
	}
	idle, err := parseDuration(f.Pool.IdleTimeout, 0)
	if err != nil {
		return pool.Options{}, fmt.Errorf("idle_timeout: %w", err)
	}
	lifetime, err := parseDuration(f.Pool.MaxLifetime, 0)
	if err != nil {
		return pool.Options{}, fmt.Errorf("max_lifetime: %w", err)
	}

	return pool.Options{
		ClientOptions:  f.SessionOptions(),
		MaxConnections: f.Pool.MaxConnections,
		AcquireTimeout: acquire,
		IdleTimeout:    idle,
		MaxLifetime:    lifetime,
		TestOnCheckout: f.Pool.TestOnCheckout,
	}, nil
}

func parseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	return time.ParseDuration(s)
}
