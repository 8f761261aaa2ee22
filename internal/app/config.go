package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"ciphermesh/internal/domain"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CIPHERMESH_"

// Backend names accepted by the cache and sent sections.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
	BackendMongo = "mongo"
)

// Config holds runtime wiring options for building the app.
type Config struct {
	// Home is the data directory, e.g. $HOME/.ciphermesh.
	Home       string `yaml:"home"`
	UserID     string `yaml:"user_id"`
	DeviceID   uint32 `yaml:"device_id"`
	Passphrase string `yaml:"passphrase"`
	LogMode    string `yaml:"log_mode"`

	Directory DirectoryConfig `yaml:"directory"`
	Transport TransportConfig `yaml:"transport"`
	Cache     CacheConfig     `yaml:"cache"`
	Redis     RedisConfig     `yaml:"redis"`
	Sent      SentConfig      `yaml:"sent"`
	Mongo     MongoConfig     `yaml:"mongo"`
	Keys      KeysConfig      `yaml:"keys"`
	FanOut    FanOutConfig    `yaml:"fanout"`
}

// DirectoryConfig locates the key directory.
type DirectoryConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// TransportConfig locates the websocket transport. An empty URL uses the
// directory URL.
type TransportConfig struct {
	URL string `yaml:"url"`
}

// CacheConfig selects the decrypted item cache.
type CacheConfig struct {
	Backend string `yaml:"backend"`
	LRUSize int    `yaml:"lru_size"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SentConfig selects where sent records live.
type SentConfig struct {
	Backend string `yaml:"backend"`
}

type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// KeysConfig tunes the key lifecycle. Zero values take the manager's
// defaults.
type KeysConfig struct {
	LowWater  int           `yaml:"low_water"`
	BatchSize int           `yaml:"batch_size"`
	Rotation  time.Duration `yaml:"rotation"`
	Retention time.Duration `yaml:"retention"`
}

type FanOutConfig struct {
	Parallelism int `yaml:"parallelism"`
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		DeviceID:  1,
		LogMode:   "development",
		Directory: DirectoryConfig{URL: "http://127.0.0.1:8080", Timeout: 15 * time.Second},
		Cache:     CacheConfig{Backend: BackendFile, LRUSize: 1024},
		Redis:     RedisConfig{Addr: "localhost:6379"},
		Sent:      SentConfig{Backend: BackendFile},
		Mongo:     MongoConfig{URI: "mongodb://localhost:27017", Database: "ciphermesh"},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty), a .env file in the working directory if one exists and
// finally CIPHERMESH_* environment variables.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, cfg.fillHome()
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = v
		}
	}
	str("HOME", &c.Home)
	str("USER_ID", &c.UserID)
	str("PASSPHRASE", &c.Passphrase)
	str("LOG_MODE", &c.LogMode)
	str("DIRECTORY_URL", &c.Directory.URL)
	str("TRANSPORT_URL", &c.Transport.URL)
	str("CACHE_BACKEND", &c.Cache.Backend)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	str("SENT_BACKEND", &c.Sent.Backend)
	str("MONGO_URI", &c.Mongo.URI)
	str("MONGO_DATABASE", &c.Mongo.Database)

	var errs []error
	num := func(key string, dst *int) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}
	if v, ok := os.LookupEnv(EnvPrefix + "DEVICE_ID"); ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sDEVICE_ID: %w", EnvPrefix, err))
		} else {
			c.DeviceID = uint32(n)
		}
	}
	dur("DIRECTORY_TIMEOUT", &c.Directory.Timeout)
	num("CACHE_LRU_SIZE", &c.Cache.LRUSize)
	num("REDIS_DB", &c.Redis.DB)
	num("KEYS_LOW_WATER", &c.Keys.LowWater)
	num("KEYS_BATCH_SIZE", &c.Keys.BatchSize)
	dur("KEYS_ROTATION", &c.Keys.Rotation)
	dur("KEYS_RETENTION", &c.Keys.Retention)
	num("FANOUT_PARALLELISM", &c.FanOut.Parallelism)
	return errors.Join(errs...)
}

func (c *Config) fillHome() error {
	if c.Home != "" {
		return nil
	}
	dir, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	c.Home = filepath.Join(dir, ".ciphermesh")
	return nil
}

// Self is the device address this configuration runs as.
func (c Config) Self() domain.DeviceAddress {
	return domain.DeviceAddress{UserID: domain.UserID(c.UserID), DeviceID: domain.DeviceID(c.DeviceID)}
}

// TransportURL is the websocket base, falling back to the directory.
func (c Config) TransportURL() string {
	if c.Transport.URL != "" {
		return c.Transport.URL
	}
	return c.Directory.URL
}

// Validate checks the fields every command needs.
func (c Config) Validate() error {
	var errs []error
	if c.UserID == "" {
		errs = append(errs, errors.New("user_id is required"))
	}
	if c.DeviceID == 0 {
		errs = append(errs, errors.New("device_id must be positive"))
	}
	if c.Directory.URL == "" {
		errs = append(errs, errors.New("directory.url is required"))
	}
	switch c.Cache.Backend {
	case BackendFile, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("cache.backend %q: want %s or %s", c.Cache.Backend, BackendFile, BackendRedis))
	}
	switch c.Sent.Backend {
	case BackendFile, BackendMongo:
	default:
		errs = append(errs, fmt.Errorf("sent.backend %q: want %s or %s", c.Sent.Backend, BackendFile, BackendMongo))
	}
	return errors.Join(errs...)
}
