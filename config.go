package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"geeo.io/QuadServer/quad"
)

var (
	// ErrInvalidBoundary is returned when the boundary isn't "x,y,w,h" with w, h > 0
	ErrInvalidBoundary = errors.New("invalid boundary")
	// ErrUnknownVariant is returned for a tree variant other than list or array
	ErrUnknownVariant = errors.New("unknown tree variant")
	// ErrUnknownPersister is returned for an unsupported persister name
	ErrUnknownPersister = errors.New("unknown persister")
)

// Config holds everything main needs to start a server
type Config struct {
	HostPort string
	DBName   string
	Secret   string
	SSL      bool
	SSLHost  string
	Dev      bool
	LogLevel string

	WebhookURL     string
	WebhookBearer  string
	WebhookHeaders map[string]string
	Origins        []string

	Persister   string // bolt, redis, postgres or null
	RedisAddr   string
	PostgresDSN string

	Variant  string // list or array
	Capacity int
	MaxDepth int
	Boundary quad.Rect[float64]
	Geo      bool // x is a longitude, y a latitude

	CPUProfile string
	MemProfile string
	Bench      int
}

// environment variables, by config key
var envNames = map[string]string{
	"host":            "HOST_PORT",
	"db":              "DB_NAME",
	"secret":          "SECRET",
	"ssl":             "SSL",
	"sslhost":         "SSL_HOST",
	"dev":             "DEV",
	"loglevel":        "LOGLEVEL",
	"webhook.url":     "WEBHOOK_URL",
	"webhook.bearer":  "WEBHOOK_BEARER",
	"webhook.headers": "WEBHOOK_HEADERS",
	"origin":          "ORIGIN",
	"persister":       "PERSISTER",
	"redis":           "REDIS_ADDR",
	"postgres":        "POSTGRES_DSN",
	"variant":         "VARIANT",
	"capacity":        "CAPACITY",
	"maxdepth":        "MAX_DEPTH",
	"boundary":        "BOUNDARY",
	"geo":             "GEO",
}

// loadConfig reads, by increasing priority, defaults, the optional config
// file, environment variables and command line flags
func loadConfig(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("quadserver", pflag.ContinueOnError)
	fs.String("config", "", "optional yaml config file")
	fs.String("host", "localhost:8000", "host and port for http server")
	fs.String("db", "bolt.db", "database file name")
	fs.String("secret", "developmentKey", "secret for JWT signatures")
	fs.Bool("ssl", false, "Enable SSL support")
	fs.String("sslhost", "", "FQDN for the SSL certificate")
	fs.Bool("dev", false, "allow development routes")
	fs.String("loglevel", "info", "debug, info, warn or error")
	fs.String("persister", "bolt", "point store: bolt, redis, postgres or null")
	fs.String("redis", "localhost:6379", "redis address")
	fs.String("postgres", "", "postgres connection string")
	fs.String("variant", "array", "quadtree variant: list or array")
	fs.Int("capacity", 8, "points per node before a split")
	fs.Int("maxdepth", quad.Unlimited, "deepest node that may split, -1 for no limit")
	fs.String("boundary", "-180,-90,360,180", "indexed region as x,y,w,h")
	fs.Bool("geo", true, "coordinates are longitude/latitude")
	fs.String("cpuprofile", "", "write cpu profile to file")
	fs.String("memprofile", "", "write memory profile to this file")
	fs.Int("bench", 0, "compare the tree variants on n random points and exit")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	for key, env := range envNames {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}
	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config file %s: %w", file, err)
		}
	}

	cfg := &Config{
		HostPort:      v.GetString("host"),
		DBName:        v.GetString("db"),
		Secret:        v.GetString("secret"),
		SSL:           v.GetBool("ssl"),
		SSLHost:       v.GetString("sslhost"),
		Dev:           v.GetBool("dev"),
		LogLevel:      v.GetString("loglevel"),
		WebhookURL:    v.GetString("webhook.url"),
		WebhookBearer: v.GetString("webhook.bearer"),
		Persister:     v.GetString("persister"),
		RedisAddr:     v.GetString("redis"),
		PostgresDSN:   v.GetString("postgres"),
		Variant:       v.GetString("variant"),
		Capacity:      v.GetInt("capacity"),
		MaxDepth:      v.GetInt("maxdepth"),
		Geo:           v.GetBool("geo"),
		CPUProfile:    v.GetString("cpuprofile"),
		MemProfile:    v.GetString("memprofile"),
		Bench:         v.GetInt("bench"),
	}

	if whh := v.GetString("webhook.headers"); whh != "" {
		if err := json.Unmarshal([]byte(whh), &cfg.WebhookHeaders); err != nil {
			return nil, fmt.Errorf("can't JSON parse WEBHOOK_HEADERS: %w", err)
		}
	}
	if o := v.GetString("origin"); o != "" {
		cfg.Origins = strings.Split(o, ",")
	}

	var err error
	if cfg.Boundary, err = parseBoundary(v.GetString("boundary")); err != nil {
		return nil, err
	}
	switch cfg.Variant {
	case "list", "array":
	default:
		return nil, fmt.Errorf("%q: %w", cfg.Variant, ErrUnknownVariant)
	}
	switch cfg.Persister {
	case "bolt", "redis", "postgres", "null":
	default:
		return nil, fmt.Errorf("%q: %w", cfg.Persister, ErrUnknownPersister)
	}
	return cfg, nil
}

// parseBoundary parses "x,y,w,h"
func parseBoundary(s string) (quad.Rect[float64], error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return quad.Rect[float64]{}, fmt.Errorf("%q: %w", s, ErrInvalidBoundary)
	}
	var values [4]float64
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return quad.Rect[float64]{}, fmt.Errorf("%q: %w", s, ErrInvalidBoundary)
		}
		values[i] = f
	}
	r := quad.NewRect(values[0], values[1], values[2], values[3])
	if !r.Valid() {
		return quad.Rect[float64]{}, fmt.Errorf("%q: %w", s, ErrInvalidBoundary)
	}
	return r, nil
}
