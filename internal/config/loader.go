package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/pvsentinel/narrativecore/internal/db"
	"github.com/pvsentinel/narrativecore/internal/terms"
)

// Config is the full runtime configuration of the service.
type Config struct {
	Database db.Config
	Storage  StorageConfig
	Server   ServerConfig
	Review   ReviewConfig
	Terms    TermsConfig
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Driver is one of postgres, sqlite or memory.
	Driver string
	// SQLitePath is the database file used when Driver is sqlite.
	SQLitePath string
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

// ReviewConfig tunes the change classifier.
type ReviewConfig struct {
	MinorLengthThreshold int
}

// TermsConfig points at the clinical terms dictionary.
type TermsConfig struct {
	// File is the YAML dictionary path; empty means built-in defaults.
	File string
}

// DefaultConfig returns the configuration used when no file or env overrides
// are present.
func DefaultConfig() Config {
	return Config{
		Database: db.DefaultConfig(),
		Storage: StorageConfig{
			Driver:     "memory",
			SQLitePath: "pv_sentinel.db",
		},
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Review: ReviewConfig{
			MinorLengthThreshold: terms.DefaultMinorLengthThreshold,
		},
		Terms: TermsConfig{},
	}
}

// Load reads config.yaml from the given directory with environment overrides
// like PV_DATABASE_HOST or PV_STORAGE_DRIVER.
func Load(configPath string) (Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("PV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")
	v.BindEnv("storage.driver")
	v.BindEnv("storage.sqlite_path")
	v.BindEnv("server.addr")
	v.BindEnv("terms.file")

	if err := v.ReadInConfig(); err != nil {
		fmt.Println("No config.yaml found, using defaults and env vars")
	} else {
		fmt.Println("Loaded config.yaml")
	}

	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("storage.driver") {
		cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(v.GetString("storage.driver")))
	}
	if v.IsSet("storage.sqlite_path") {
		cfg.Storage.SQLitePath = v.GetString("storage.sqlite_path")
	}
	if v.IsSet("server.addr") {
		cfg.Server.Addr = v.GetString("server.addr")
	}
	if v.IsSet("server.allowed_origins") {
		cfg.Server.AllowedOrigins = v.GetStringSlice("server.allowed_origins")
	}
	if v.IsSet("review.minor_length_threshold") {
		cfg.Review.MinorLengthThreshold = v.GetInt("review.minor_length_threshold")
	}
	if v.IsSet("terms.file") {
		cfg.Terms.File = v.GetString("terms.file")
	}

	switch cfg.Storage.Driver {
	case "postgres", "sqlite", "memory":
	default:
		return Config{}, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}

	return cfg, nil
}
