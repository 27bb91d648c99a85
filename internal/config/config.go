package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/vitos/stake_leveling/internal/domain"
	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Staking domain.StakingConfig `yaml:"staking"`
	Storage struct {
		Driver         string        `yaml:"driver"`
		SQLitePath     string        `yaml:"sqlite_path"`
		PostgresDSN    string        `yaml:"postgres_dsn"`
		PersistTimeout time.Duration `yaml:"persist_timeout"`
	} `yaml:"storage"`
	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"` // empty logs to stderr
	} `yaml:"logging"`
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
}

func Default() *Config {
	cfg := &Config{Staking: domain.DefaultStakingConfig()}
	cfg.Storage.Driver = DriverSQLite
	cfg.Storage.SQLitePath = "stake.db"
	cfg.Storage.PersistTimeout = 2 * time.Second
	cfg.Logging.Level = "info"
	cfg.Server.Port = 8080
	return cfg
}

// Load reads .env (if present), then the YAML file (if path is non-empty and exists),
// then applies environment overrides and validates. Any error must stop the process.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		if err := cfg.readYAML(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) readYAML(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	floats := map[string]*float64{
		"ENTRY_PERCENTAGE":    &c.Staking.EntryPercentage,
		"MINIMUM_STAKE":       &c.Staking.MinimumStake,
		"LEVEL_UP_MULTIPLIER": &c.Staking.LevelUpMultiplier,
	}
	for key, dst := range floats {
		if v, ok := lookup(key); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = f
		}
	}

	ints := map[string]*int{
		"WINS_TO_LEVEL_UP":      &c.Staking.WinsToLevelUp,
		"LOSS_COMPENSATION":     &c.Staking.LossCompensation,
		"BOUNDARY_LOSS_PENALTY": &c.Staking.BoundaryLossPenalty,
		"SERVER_PORT":           &c.Server.Port,
	}
	for key, dst := range ints {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}

	strs := map[string]*string{
		"STORAGE_DRIVER": &c.Storage.Driver,
		"SQLITE_PATH":    &c.Storage.SQLitePath,
		"DATABASE_URL":   &c.Storage.PostgresDSN,
		"LOG_LEVEL":      &c.Logging.Level,
		"LOG_FILE":       &c.Logging.File,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup("PERSIST_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PERSIST_TIMEOUT: %w", err)
		}
		c.Storage.PersistTimeout = d
	}
	return nil
}

func (c *Config) Validate() error {
	if err := c.Staking.Validate(); err != nil {
		return err
	}
	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("storage.sqlite_path is required for sqlite")
		}
	case DriverPostgres:
		if c.Storage.PostgresDSN == "" {
			return errors.New("storage.postgres_dsn (DATABASE_URL) is required for postgres")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Storage.PersistTimeout <= 0 {
		return fmt.Errorf("storage.persist_timeout must be > 0, got %s", c.Storage.PersistTimeout)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}
