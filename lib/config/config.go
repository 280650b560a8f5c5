// Package config reads the lab configuration file: the instruments on the
// bench, how to reach them and where captured traces are stored.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"gopkg.in/yaml.v3"

	"github.com/gotmc/eedlab/lib/connutil"
	"github.com/gotmc/eedlab/lib/ds1054"
)

// Instrument models.
const (
	ModelDS1054  = "ds1054"
	ModelDG1022  = "dg1022"
	ModelDM3058E = "dm3058e"
	ModelDP832   = "dp832"
	ModelGeneric = "scpi"
)

var models = map[string]struct{}{
	ModelDS1054:  {},
	ModelDG1022:  {},
	ModelDM3058E: {},
	ModelDP832:   {},
	ModelGeneric: {},
}

// Config represents the lab configuration.
type Config struct {
	Settings    Settings     `yaml:"settings"`
	Instruments []Instrument `yaml:"instruments"`
	Storage     Storage      `yaml:"storage"`
}

// Settings represents global settings.
type Settings struct {
	Verbosity int    `yaml:"verbosity"` // glog -v
	Listen    string `yaml:"listen"`    // address of the HTTP lab API
}

// Instrument represents one instrument on the bench.
type Instrument struct {
	Name     string   `yaml:"name"`
	Model    string   `yaml:"model"`
	Resource string   `yaml:"resource"`
	Backends []string `yaml:"backends"`
	Timeout  Duration `yaml:"timeout"`
	MaxRead  int      `yaml:"maxRead"`
	Log      bool     `yaml:"log"`
	BaudRate int      `yaml:"baudRate"`

	Prologix    Prologix             `yaml:"prologix"`
	Acquisition ds1054.AcquireConfig `yaml:"acquisition"`
}

// Prologix represents the GPIB controller an instrument hangs off.
type Prologix struct {
	Port  string `yaml:"port"`
	AR488 bool   `yaml:"ar488"`
	EOT   bool   `yaml:"eot"`
}

// Storage represents the trace database.
type Storage struct {
	Driver string `yaml:"driver"` // sqlite3 or mysql
	DSN    string `yaml:"dsn"`
	MySQL  MySQL  `yaml:"mysql"`
}

// MySQL holds the fields a MySQL DSN is built from when no DSN is given.
type MySQL struct {
	Server       string `yaml:"server"`
	User         string `yaml:"user"`
	PasswordFile string `yaml:"passwordFile"`
	DBName       string `yaml:"dbName"`
}

// Duration is a time.Duration written as "5s" or "1m30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("config.Duration: failed to parse: %s", err)
	}
	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates a configuration. Unknown keys are errors.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks instrument names, models and backends.
func (c *Config) Validate() error {
	seen := map[string]bool{}
	known := map[string]bool{}
	for _, n := range connutil.DefaultBackends("linux") {
		known[n] = true
	}
	for i := range c.Instruments {
		in := &c.Instruments[i]
		if in.Name == "" {
			return fmt.Errorf("instrument %d: no name", i+1)
		}
		if seen[in.Name] {
			return fmt.Errorf("instrument %q: duplicate name", in.Name)
		}
		seen[in.Name] = true
		in.Model = strings.ToLower(in.Model)
		if in.Model == "" {
			in.Model = ModelGeneric
		}
		if _, ok := models[in.Model]; !ok {
			return fmt.Errorf("instrument %q: unknown model %q", in.Name, in.Model)
		}
		if in.Resource == "" {
			return fmt.Errorf("instrument %q: no resource", in.Name)
		}
		for _, b := range in.Backends {
			if !known[b] {
				return fmt.Errorf("instrument %q: unknown backend %q", in.Name, b)
			}
		}
		if time.Duration(in.Timeout) < 0 {
			return fmt.Errorf("instrument %q: negative timeout", in.Name)
		}
	}
	switch c.Storage.Driver {
	case "", "sqlite3", "mysql":
	default:
		return fmt.Errorf("storage: unknown driver %q", c.Storage.Driver)
	}
	return nil
}

// Lookup returns the instrument called name.
func (c *Config) Lookup(name string) (*Instrument, bool) {
	for i := range c.Instruments {
		if c.Instruments[i].Name == name {
			return &c.Instruments[i], true
		}
	}
	return nil, false
}

// Conn returns the connection settings of the instrument.
func (in *Instrument) Conn() *connutil.Conn {
	return &connutil.Conn{
		Resource:     in.Resource,
		Backends:     strings.Join(in.Backends, ","),
		Timeout:      time.Duration(in.Timeout),
		MaxRead:      in.MaxRead,
		Log:          in.Log,
		BaudRate:     in.BaudRate,
		PrologixPort: in.Prologix.Port,
		AR488:        in.Prologix.AR488,
		EOT:          in.Prologix.EOT,
	}
}

// ScopeOptions returns the DS1054 options of the instrument.
func (in *Instrument) ScopeOptions() []ds1054.Option {
	return []ds1054.Option{ds1054.WithAcquireConfig(in.Acquisition)}
}

var errNoStorage = errors.New("no storage configured")

// DriverDSN returns the database/sql driver name and data source name. A
// MySQL DSN is built from the mysql fields when dsn is empty.
func (s Storage) DriverDSN() (driver, dsn string, err error) {
	switch s.Driver {
	case "":
		return "", "", errNoStorage
	case "sqlite3":
		if s.DSN == "" {
			return "", "", errors.New("storage: sqlite3 needs a dsn")
		}
		return s.Driver, s.DSN, nil
	case "mysql":
		if s.DSN != "" {
			return s.Driver, s.DSN, nil
		}
		cfg := mysql.NewConfig()
		cfg.User = s.MySQL.User
		cfg.Net = "tcp"
		cfg.Addr = s.MySQL.Server
		cfg.DBName = s.MySQL.DBName
		if s.MySQL.PasswordFile != "" {
			pass, err := os.ReadFile(s.MySQL.PasswordFile)
			if err != nil {
				return "", "", fmt.Errorf("unable to read MySQL password file %q: %w", s.MySQL.PasswordFile, err)
			}
			cfg.Passwd = strings.TrimSpace(string(pass))
		}
		return s.Driver, cfg.FormatDSN(), nil
	}
	return "", "", fmt.Errorf("storage: unknown driver %q", s.Driver)
}

// IsNoStorage reports whether err means no storage is configured.
func IsNoStorage(err error) bool { return errors.Is(err, errNoStorage) }
