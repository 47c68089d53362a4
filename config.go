package chain

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/viper"

	"github.com/kintsdev/chain/dialect"
)

// Config holds database and runtime configuration for a DataSource
type Config struct {
	Driver                 string        `mapstructure:"driver"` // postgres, sqlite, mysql, sqlserver
	Host                   string        `mapstructure:"host"`
	Port                   int           `mapstructure:"port"`
	Database               string        `mapstructure:"database"`
	Username               string        `mapstructure:"username"`
	Password               string        `mapstructure:"password"`
	SSLMode                string        `mapstructure:"ssl_mode"`
	Path                   string        `mapstructure:"path"` // sqlite file, ":memory:" when empty
	MaxConnections         int32         `mapstructure:"max_connections"`
	MinConnections         int32         `mapstructure:"min_connections"`
	MaxConnLifetime        time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime        time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod      time.Duration `mapstructure:"health_check_period"`
	ConnectTimeout         time.Duration `mapstructure:"connect_timeout"`
	ApplicationName        string        `mapstructure:"application_name"`
	RetryAttempts          int           `mapstructure:"retry_attempts"` // transient error retries (default 0 = no retry)
	RetryBackoff           time.Duration `mapstructure:"retry_backoff"`
	StatementCacheCapacity int           `mapstructure:"statement_cache_capacity"` // pgx per-conn statement cache capacity (0 = default)

	CircuitBreakerEnabled   bool          `mapstructure:"circuit_breaker_enabled"`
	CircuitFailureThreshold int           `mapstructure:"circuit_failure_threshold"`
	CircuitOpenTimeout      time.Duration `mapstructure:"circuit_open_timeout"`
	CircuitHalfOpenMaxCalls int           `mapstructure:"circuit_half_open_max_calls"`

	// RulesFile is an optional YAML rule file loaded by Open.
	RulesFile string `mapstructure:"rules_file"`
}

func (c *Config) driver() string {
	if c.Driver == "" {
		return dialect.Postgres
	}
	return c.Driver
}

func (c *Config) host() string {
	if c.Host == "" {
		return "localhost"
	}
	return c.Host
}

// ConnString returns the driver-specific connection string
func (c *Config) ConnString() string {
	d, err := dialect.Lookup(c.driver())
	if err != nil {
		return ""
	}
	switch d.Name() {
	case dialect.SQLite:
		return c.sqliteDSN()
	case dialect.MySQL:
		return c.mysqlDSN()
	case dialect.SQLServer:
		return c.sqlServerDSN()
	case dialect.Postgres:
		return c.postgresDSN()
	}
	return ""
}

func (c *Config) postgresDSN() string {
	ssl := c.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	port := c.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s application_name=%s connect_timeout=%d",
		c.host(),
		port,
		c.Database,
		c.Username,
		c.Password,
		ssl,
		c.ApplicationName,
		int(c.ConnectTimeout.Seconds()),
	)
}

func (c *Config) sqliteDSN() string {
	path := c.Path
	if path == "" || path == ":memory:" {
		path = "file::memory:"
	}
	return path + "?_pragma=foreign_keys(1)"
}

func (c *Config) mysqlDSN() string {
	port := c.Port
	if port == 0 {
		port = 3306
	}
	mc := mysql.NewConfig()
	mc.User = c.Username
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(c.host(), strconv.Itoa(port))
	mc.DBName = c.Database
	mc.ParseTime = true
	if c.ConnectTimeout > 0 {
		mc.Timeout = c.ConnectTimeout
	}
	if c.ApplicationName != "" {
		mc.ConnectionAttributes = "program_name:" + c.ApplicationName
	}
	return mc.FormatDSN()
}

func (c *Config) sqlServerDSN() string {
	port := c.Port
	if port == 0 {
		port = 1433
	}
	q := url.Values{}
	if c.Database != "" {
		q.Set("database", c.Database)
	}
	if c.ApplicationName != "" {
		q.Set("app name", c.ApplicationName)
	}
	if c.ConnectTimeout > 0 {
		q.Set("connection timeout", strconv.Itoa(int(c.ConnectTimeout.Seconds())))
	}
	switch strings.ToLower(c.SSLMode) {
	case "", "disable":
		q.Set("encrypt", "disable")
	default:
		q.Set("encrypt", "true")
	}
	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(c.Username, c.Password),
		Host:     net.JoinHostPort(c.host(), strconv.Itoa(port)),
		RawQuery: q.Encode(),
	}
	return u.String()
}

// LoadConfig reads configuration from a file (yaml, json or toml) and CHAIN_* environment
// variables, e.g. CHAIN_DATABASE or CHAIN_RETRY_ATTEMPTS. An empty path reads the
// environment only.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("chain")
	v.AutomaticEnv()

	v.SetDefault("driver", dialect.Postgres)
	v.SetDefault("host", "localhost")
	v.SetDefault("ssl_mode", "disable")
	v.SetDefault("connect_timeout", 5*time.Second)
	v.SetDefault("circuit_failure_threshold", 5)
	v.SetDefault("circuit_open_timeout", 30*time.Second)
	v.SetDefault("circuit_half_open_max_calls", 1)
	// AutomaticEnv only sees keys viper already knows about
	for _, k := range []string{"port", "database", "username", "password", "path", "max_connections",
		"min_connections", "max_conn_lifetime", "max_conn_idle_time", "health_check_period", "application_name",
		"retry_attempts", "retry_backoff", "statement_cache_capacity", "circuit_breaker_enabled", "rules_file"} {
		_ = v.BindEnv(k)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, &ORMError{Code: ErrCodeConfiguration, Message: fmt.Sprintf("read config: %v", err), Internal: err}
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &ORMError{Code: ErrCodeConfiguration, Message: fmt.Sprintf("unmarshal config: %v", err), Internal: err}
	}
	if _, err := dialect.Lookup(cfg.Driver); err != nil {
		return nil, &ORMError{Code: ErrCodeConfiguration, Message: err.Error(), Internal: err}
	}
	return &cfg, nil
}
