// Package config loads the server configuration from flags, TONTINE_*
// environment variables, and defaults, in that order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/warp/tontine-engine/tontine"
)

var supportedDbs = supportedType{
	"sqlite": {},
	"badger": {},
	"memory": {},
}

type supportedType map[string]struct{}

func (t supportedType) String() string {
	types := make([]string, 0, len(t))
	for tt := range t {
		types = append(types, tt)
	}
	return strings.Join(types, " | ")
}

func (t supportedType) supports(typ string) bool {
	_, ok := t[typ]
	return ok
}

type Config struct {
	Port              uint32
	DbType            string
	DbPath            string
	LogLevel          log.Level
	AddressPrefix     string
	AdvancePolicy     tontine.AdvancePolicy
	CORSOrigins       []string
	SchedulerEnabled  bool
	SchedulerInterval time.Duration
	SchedulerOperator tontine.Address
}

var (
	Port              = "port"
	DbType            = "db-type"
	DbPath            = "db-path"
	LogLevel          = "log-level"
	AddressPrefix     = "address-prefix"
	AdvancePolicy     = "advance-policy"
	CORSOrigins       = "cors-origins"
	SchedulerEnabled  = "scheduler-enabled"
	SchedulerInterval = "scheduler-interval"
	SchedulerOperator = "scheduler-operator"

	defaultPort              = uint32(8080)
	defaultDbType            = "sqlite"
	defaultDbPath            = "tontine.db"
	defaultLogLevel          = "info"
	defaultAddressPrefix     = tontine.DefaultAddressPrefix
	defaultAdvancePolicy     = string(tontine.AdvanceManual)
	defaultCORSOrigins       = []string{"http://localhost:5173", "http://localhost:8080"}
	defaultSchedulerEnabled  = false
	defaultSchedulerInterval = time.Minute
)

// Flags returns the command-line flag set understood by LoadConfig.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("tontine-server", pflag.ContinueOnError)
	fs.Uint32(Port, defaultPort, "HTTP server port")
	fs.String(DbType, defaultDbType, "entity store backend ("+supportedDbs.String()+")")
	fs.String(DbPath, defaultDbPath, "SQLite file or Badger directory; \":memory:\" or empty for in-memory")
	fs.String(LogLevel, defaultLogLevel, "log level (trace, debug, info, warn, error)")
	fs.String(AddressPrefix, defaultAddressPrefix, "required prefix of member addresses")
	fs.String(AdvancePolicy, defaultAdvancePolicy, "how the next round opens (manual | on-distribution)")
	fs.StringSlice(CORSOrigins, defaultCORSOrigins, "allowed CORS origins")
	fs.Bool(SchedulerEnabled, defaultSchedulerEnabled, "distribute rounds automatically after the deadline")
	fs.Duration(SchedulerInterval, defaultSchedulerInterval, "how often the scheduler checks the current round")
	fs.String(SchedulerOperator, "", "address the scheduler distributes as (admin or arbitrator)")
	return fs
}

// LoadConfig parses args, overlays TONTINE_* environment variables, and
// validates the result.
func LoadConfig(args []string) (*Config, error) {
	fs := Flags()
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("TONTINE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(Port, defaultPort)
	v.SetDefault(DbType, defaultDbType)
	v.SetDefault(DbPath, defaultDbPath)
	v.SetDefault(LogLevel, defaultLogLevel)
	v.SetDefault(AddressPrefix, defaultAddressPrefix)
	v.SetDefault(AdvancePolicy, defaultAdvancePolicy)
	v.SetDefault(CORSOrigins, defaultCORSOrigins)
	v.SetDefault(SchedulerEnabled, defaultSchedulerEnabled)
	v.SetDefault(SchedulerInterval, defaultSchedulerInterval)

	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	dbType := v.GetString(DbType)
	if !supportedDbs.supports(dbType) {
		return nil, fmt.Errorf("db type not supported, please select one of: %s", supportedDbs)
	}

	level, err := log.ParseLevel(v.GetString(LogLevel))
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	policy, err := tontine.ParseAdvancePolicy(v.GetString(AdvancePolicy))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:              v.GetUint32(Port),
		DbType:            dbType,
		DbPath:            v.GetString(DbPath),
		LogLevel:          level,
		AddressPrefix:     v.GetString(AddressPrefix),
		AdvancePolicy:     policy,
		CORSOrigins:       v.GetStringSlice(CORSOrigins),
		SchedulerEnabled:  v.GetBool(SchedulerEnabled),
		SchedulerInterval: v.GetDuration(SchedulerInterval),
		SchedulerOperator: tontine.Address(v.GetString(SchedulerOperator)),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port == 0 {
		return fmt.Errorf("port must be positive")
	}
	if c.SchedulerEnabled {
		if c.SchedulerInterval <= 0 {
			return fmt.Errorf("scheduler interval must be positive")
		}
		if err := tontine.ValidateAddress(c.AddressPrefix, c.SchedulerOperator); err != nil {
			return fmt.Errorf("scheduler operator: %w", err)
		}
	}
	return nil
}
