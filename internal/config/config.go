package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"hr-lifecycle/backend/pkg/models"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// EnvPrefix is prepended to every environment override, e.g. HRL_STORAGE_DRIVER.
const EnvPrefix = "HRL"

// Config holds the configuration for the application.
type Config struct {
	Server struct {
		Addr            string        `mapstructure:"addr"`
		ReadTimeout     time.Duration `mapstructure:"read_timeout"`
		WriteTimeout    time.Duration `mapstructure:"write_timeout"`
		IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
		TLS             struct {
			Enable bool `mapstructure:"enable"`
			// SelfSigned generates CertFile and KeyFile for Hostnames when
			// they are missing.
			SelfSigned bool     `mapstructure:"self_signed"`
			CertFile   string   `mapstructure:"cert_file"`
			KeyFile    string   `mapstructure:"key_file"`
			Hostnames  []string `mapstructure:"hostnames"`
		} `mapstructure:"tls"`
	} `mapstructure:"server"`
	Storage struct {
		Driver string `mapstructure:"driver"`
		SQLite struct {
			Path string `mapstructure:"path"`
		} `mapstructure:"sqlite"`
		Postgres struct {
			Host     string `mapstructure:"host"`
			Port     int    `mapstructure:"port"`
			User     string `mapstructure:"user"`
			Password string `mapstructure:"password"`
			Name     string `mapstructure:"name"`
			SSLMode  string `mapstructure:"sslmode"`
			MaxConns int32  `mapstructure:"max_conns"`
		} `mapstructure:"postgres"`
	} `mapstructure:"storage"`
	Catalog struct {
		// Path to a YAML catalog. Empty means the built-in tracks.
		Path string `mapstructure:"path"`
	} `mapstructure:"catalog"`
	CompanyInfo struct {
		Name    string `mapstructure:"name"`
		Address string `mapstructure:"address"`
		Phone   string `mapstructure:"phone"`
		Email   string `mapstructure:"email"`
		Website string `mapstructure:"website"`
	} `mapstructure:"company"`
	HR struct {
		ManagerName        string   `mapstructure:"manager_name"`
		ManagerDesignation string   `mapstructure:"manager_designation"`
		ManagerEmail       string   `mapstructure:"manager_email"`
		TeamEmails         []string `mapstructure:"team_emails"`
	} `mapstructure:"hr"`
	Integrations struct {
		GatewayURL string        `mapstructure:"gateway_url"`
		Timeout    time.Duration `mapstructure:"timeout"`
	} `mapstructure:"integrations"`
	Auth struct {
		// OverrideActors may skip tasks whose requirements are unmet. "*"
		// allows every actor.
		OverrideActors []string `mapstructure:"override_actors"`
	} `mapstructure:"auth"`
	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.tls.enable", false)
	v.SetDefault("server.tls.self_signed", false)
	v.SetDefault("server.tls.cert_file", "certs/server.crt")
	v.SetDefault("server.tls.key_file", "certs/server.key")
	v.SetDefault("server.tls.hostnames", []string{"localhost", "127.0.0.1"})

	v.SetDefault("storage.driver", DriverMemory)
	v.SetDefault("storage.sqlite.path", "hr-lifecycle.db")
	v.SetDefault("storage.postgres.host", "localhost")
	v.SetDefault("storage.postgres.port", 5432)
	v.SetDefault("storage.postgres.user", "postgres")
	v.SetDefault("storage.postgres.password", "")
	v.SetDefault("storage.postgres.name", "hr_lifecycle")
	v.SetDefault("storage.postgres.sslmode", "disable")
	v.SetDefault("storage.postgres.max_conns", 10)

	v.SetDefault("catalog.path", "")

	v.SetDefault("company.name", "")
	v.SetDefault("company.address", "")
	v.SetDefault("company.phone", "")
	v.SetDefault("company.email", "")
	v.SetDefault("company.website", "")

	v.SetDefault("hr.manager_name", "")
	v.SetDefault("hr.manager_designation", "HR Manager")
	v.SetDefault("hr.manager_email", "")
	v.SetDefault("hr.team_emails", []string{})

	v.SetDefault("integrations.gateway_url", "")
	v.SetDefault("integrations.timeout", 10*time.Second)

	v.SetDefault("auth.override_actors", []string{})

	v.SetDefault("log.level", "info")
}

// LoadConfig loads the configuration from a file and the environment.
//
// With an empty path, config.yaml is looked up in . and ./config and may be
// absent. An explicit path must exist.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) normalize() {
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	c.Integrations.GatewayURL = strings.TrimRight(strings.TrimSpace(c.Integrations.GatewayURL), "/")
	emails := c.HR.TeamEmails[:0]
	for _, e := range c.HR.TeamEmails {
		if e = strings.TrimSpace(e); e != "" {
			emails = append(emails, e)
		}
	}
	c.HR.TeamEmails = emails
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory, DriverPostgres:
	case DriverSQLite:
		if c.Storage.SQLite.Path == "" {
			return fmt.Errorf("invalid config: storage.sqlite.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("invalid config: unknown storage driver %q", c.Storage.Driver)
	}
	if c.Server.TLS.Enable && (c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "") {
		return fmt.Errorf("invalid config: server.tls.cert_file and server.tls.key_file are required when tls is enabled")
	}
	if strings.TrimSpace(c.CompanyInfo.Name) == "" {
		return fmt.Errorf("invalid config: company.name is required")
	}
	return nil
}

// Company projects the company and HR sections into the profile the
// dispatcher fills intent payloads from.
func (c *Config) Company() models.CompanyProfile {
	return models.CompanyProfile{
		Name:           c.CompanyInfo.Name,
		Address:        c.CompanyInfo.Address,
		Phone:          c.CompanyInfo.Phone,
		Email:          c.CompanyInfo.Email,
		Website:        c.CompanyInfo.Website,
		HRManagerName:  c.HR.ManagerName,
		HRManagerTitle: c.HR.ManagerDesignation,
		HRManagerEmail: c.HR.ManagerEmail,
		HRTeamEmails:   append([]string(nil), c.HR.TeamEmails...),
	}
}

// PostgresDSN builds a connection string for pgxpool.ParseConfig.
func (c *Config) PostgresDSN() string {
	pg := c.Storage.Postgres
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		pg.Host, pg.Port, pg.User, pg.Password, pg.Name, pg.SSLMode)
}
