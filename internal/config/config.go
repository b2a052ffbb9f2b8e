// Package config loads the edge cache configuration: defaults, then an
// optional YAML file named by EDGE_CACHE_CONFIG, then environment overrides.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Sternrassler/html-edge-cache/pkg/edgecache"
)

// FileEnv names the environment variable holding the config file path.
const FileEnv = "EDGE_CACHE_CONFIG"

// Store backends.
const (
	BackendRedis   = "redis"
	BackendSQLite  = "sqlite"
	BackendLevelDB = "leveldb"
	BackendMemory  = "memory"
	BackendNone    = "none"
)

type Config struct {
	Server struct {
		Port            int           `yaml:"port"`
		ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	} `yaml:"server"`

	Origin struct {
		URL     string        `yaml:"url"`
		Host    string        `yaml:"host"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"origin"`

	Store struct {
		Backend     string `yaml:"backend"`
		RedisURL    string `yaml:"redisUrl"`
		SQLitePath  string `yaml:"sqlitePath"`
		LevelDBPath string `yaml:"leveldbPath"`
	} `yaml:"store"`

	Cache struct {
		EntryTTL          time.Duration `yaml:"entryTtl"`
		VersionTTL        time.Duration `yaml:"versionTtl"`
		LocalSize         int           `yaml:"localSize"`
		LocalTTL          time.Duration `yaml:"localTtl"`
		MaxBodyBytes      int64         `yaml:"maxBodyBytes"`
		ReportWriteErrors bool          `yaml:"reportWriteErrors"`
		BypassCookies     []string      `yaml:"bypassCookies"`
		TrackingParams    []string      `yaml:"trackingParams"`
	} `yaml:"cache"`

	PurgeAPI struct {
		URL   string `yaml:"url"`
		Token string `yaml:"token"`
	} `yaml:"purgeApi"`

	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
}

// Default returns the built-in defaults. The origin URL has no default.
func Default() Config {
	var cfg Config
	cfg.Server.Port = 8080
	cfg.Server.ShutdownTimeout = 30 * time.Second
	cfg.Origin.Timeout = 30 * time.Second
	cfg.Store.Backend = BackendMemory
	cfg.Store.RedisURL = "redis://localhost:6379/0"
	cfg.Store.SQLitePath = "edge-cache.db"
	cfg.Store.LevelDBPath = "edge-cache.ldb"
	cfg.Cache.VersionTTL = 10 * time.Second
	cfg.Cache.LocalTTL = time.Minute
	cfg.Cache.MaxBodyBytes = 10 << 20
	cfg.Log.Level = "info"
	return cfg
}

// Load builds the configuration from defaults, the file named by
// EDGE_CACHE_CONFIG and the environment, then validates it.
func Load() (Config, error) {
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if path, ok := lookup(FileEnv); ok && path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	var errs []string
	num := func(name string, dst *int) {
		if v, ok := lookup(name); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", name, err))
				return
			}
			*dst = n
		}
	}
	num64 := func(name string, dst *int64) {
		if v, ok := lookup(name); ok && v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", name, err))
				return
			}
			*dst = n
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v, ok := lookup(name); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", name, err))
				return
			}
			*dst = d
		}
	}
	flag := func(name string, dst *bool) {
		if v, ok := lookup(name); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", name, err))
				return
			}
			*dst = b
		}
	}

	str("ORIGIN_URL", &c.Origin.URL)
	str("ORIGIN_HOST", &c.Origin.Host)
	num("PORT", &c.Server.Port)
	str("STORE_BACKEND", &c.Store.Backend)
	str("REDIS_URL", &c.Store.RedisURL)
	str("SQLITE_PATH", &c.Store.SQLitePath)
	str("LEVELDB_PATH", &c.Store.LevelDBPath)
	str("LOG_LEVEL", &c.Log.Level)
	flag("LOG_PRETTY", &c.Log.Pretty)
	num("LOCAL_CACHE_SIZE", &c.Cache.LocalSize)
	dur("LOCAL_CACHE_TTL", &c.Cache.LocalTTL)
	dur("VERSION_TTL", &c.Cache.VersionTTL)
	dur("ENTRY_TTL", &c.Cache.EntryTTL)
	flag("REPORT_WRITE_ERRORS", &c.Cache.ReportWriteErrors)
	num64("MAX_BODY_BYTES", &c.Cache.MaxBodyBytes)
	str("PURGE_API_URL", &c.PurgeAPI.URL)
	str("PURGE_API_TOKEN", &c.PurgeAPI.Token)

	if v, ok := lookup("BYPASS_COOKIES"); ok && v != "" {
		c.Cache.BypassCookies = splitList(v)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

// splitList splits a comma or pipe separated list.
func splitList(v string) []string {
	var out []string
	for _, item := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == '|' }) {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Validate checks the configuration for values the server cannot run with.
func (c Config) Validate() error {
	if c.Origin.URL == "" {
		return fmt.Errorf("origin url is required (ORIGIN_URL or origin.url)")
	}
	u, err := url.Parse(c.Origin.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("origin url must be an absolute http(s) url, got %q", c.Origin.URL)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.Server.Port)
	}

	switch c.Store.Backend {
	case BackendRedis:
		if c.Store.RedisURL == "" {
			return fmt.Errorf("store.redisUrl is required for the redis backend")
		}
	case BackendSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlitePath is required for the sqlite backend")
		}
	case BackendLevelDB:
		if c.Store.LevelDBPath == "" {
			return fmt.Errorf("store.leveldbPath is required for the leveldb backend")
		}
	case BackendMemory, BackendNone:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	if c.Cache.LocalSize < 0 {
		return fmt.Errorf("local cache size cannot be negative")
	}
	if c.Cache.EntryTTL < 0 || c.Cache.VersionTTL < 0 || c.Cache.LocalTTL < 0 {
		return fmt.Errorf("cache ttls cannot be negative")
	}
	if c.Cache.MaxBodyBytes <= 0 || c.Cache.MaxBodyBytes > edgecache.MaxBodyLimit {
		return fmt.Errorf("max body bytes must be between 1 and %d", edgecache.MaxBodyLimit)
	}
	if c.PurgeAPI.URL != "" {
		if u, err := url.Parse(c.PurgeAPI.URL); err != nil || u.Host == "" {
			return fmt.Errorf("purge api url is invalid: %q", c.PurgeAPI.URL)
		}
	}
	return nil
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.Server.Port)
}
