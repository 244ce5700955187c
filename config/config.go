// Package config loads console client settings from the environment, an
// optional YAML profile and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	request "github.com/zhangxinping666/admin-mp-sub001"
	"github.com/zhangxinping666/admin-mp-sub001/tokenstore"
)

// Token store backends.
const (
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Config is decoded from BACKSTAGE_* environment variables.
type Config struct {
	BaseURL        string        `env:"BACKSTAGE_BASE_URL,default=http://localhost:8080/api"`
	Timeout        time.Duration `env:"BACKSTAGE_TIMEOUT,default=30s"`
	RefreshTimeout time.Duration `env:"BACKSTAGE_REFRESH_TIMEOUT,default=5s"`
	RefreshPath    string        `env:"BACKSTAGE_REFRESH_PATH,default=/auth/refresh"`
	LogoutPath     string        `env:"BACKSTAGE_LOGOUT_PATH,default=/backstage/logout"`
	LoginPath      string        `env:"BACKSTAGE_LOGIN_PATH,default=/login"`
	// Semicolon separated, e.g. "4010;4000".
	RefreshCodes []int `env:"BACKSTAGE_REFRESH_CODES,default=4010"`

	TokenStore string        `env:"BACKSTAGE_TOKEN_STORE,default=file"`
	TokenFile  string        `env:"BACKSTAGE_TOKEN_FILE"`
	RedisURL   string        `env:"BACKSTAGE_REDIS_URL,default=redis://localhost:6379/0"`
	RedisKey   string        `env:"BACKSTAGE_REDIS_KEY,default=backstage:session:tokens"`
	RedisTTL   time.Duration `env:"BACKSTAGE_REDIS_TTL,default=168h"`

	RateLimit float64 `env:"BACKSTAGE_RATE_LIMIT,default=0"`
	RateBurst int     `env:"BACKSTAGE_RATE_BURST,default=1"`

	Debug    bool   `env:"BACKSTAGE_DEBUG,default=false"`
	LogLevel string `env:"BACKSTAGE_LOG_LEVEL,default=info"`
}

// Profile is a YAML settings file. Empty fields leave the setting to the
// .env file and the defaults.
type Profile struct {
	BaseURL        string `yaml:"base_url"`
	Timeout        string `yaml:"timeout"`
	RefreshTimeout string `yaml:"refresh_timeout"`
	RefreshPath    string `yaml:"refresh_path"`
	LogoutPath     string `yaml:"logout_path"`
	LoginPath      string `yaml:"login_path"`
	RefreshCodes   []int  `yaml:"refresh_codes"`
	TokenStore     string `yaml:"token_store"`
	TokenFile      string `yaml:"token_file"`
	RedisURL       string `yaml:"redis_url"`
	RedisKey       string `yaml:"redis_key"`
	LogLevel       string `yaml:"log_level"`
}

// ReadProfile decodes a profile file, rejecting unknown keys.
func ReadProfile(path string) (*Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading profile: %w", err)
	}
	defer f.Close()

	var p Profile
	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing profile %s: %w", path, err)
	}
	return &p, nil
}

func (p *Profile) environ() map[string]string {
	env := map[string]string{
		"BACKSTAGE_BASE_URL":        p.BaseURL,
		"BACKSTAGE_TIMEOUT":         p.Timeout,
		"BACKSTAGE_REFRESH_TIMEOUT": p.RefreshTimeout,
		"BACKSTAGE_REFRESH_PATH":    p.RefreshPath,
		"BACKSTAGE_LOGOUT_PATH":     p.LogoutPath,
		"BACKSTAGE_LOGIN_PATH":      p.LoginPath,
		"BACKSTAGE_TOKEN_STORE":     p.TokenStore,
		"BACKSTAGE_TOKEN_FILE":      p.TokenFile,
		"BACKSTAGE_REDIS_URL":       p.RedisURL,
		"BACKSTAGE_REDIS_KEY":       p.RedisKey,
		"BACKSTAGE_LOG_LEVEL":       p.LogLevel,
	}
	if len(p.RefreshCodes) > 0 {
		codes := make([]string, len(p.RefreshCodes))
		for i, code := range p.RefreshCodes {
			codes[i] = strconv.Itoa(code)
		}
		env["BACKSTAGE_REFRESH_CODES"] = strings.Join(codes, ";")
	}
	return env
}

// Load reads envFiles (missing files are ignored; existing variables win)
// and decodes the environment into a validated Config.
func Load(envFiles ...string) (*Config, error) {
	return LoadProfile("", envFiles...)
}

// LoadProfile is Load with a YAML profile applied first. Precedence is
// environment, then profile, then envFiles, then defaults. An empty
// profile path skips the profile.
func LoadProfile(profile string, envFiles ...string) (*Config, error) {
	if profile != "" {
		p, err := ReadProfile(profile)
		if err != nil {
			return nil, err
		}
		for key, value := range p.environ() {
			if value == "" {
				continue
			}
			if _, set := os.LookupEnv(key); !set {
				if err := os.Setenv(key, value); err != nil {
					return nil, fmt.Errorf("applying profile: %w", err)
				}
			}
		}
	}

	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", file, err)
		}
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decoding environment: %w", err)
	}
	if cfg.TokenFile == "" {
		cfg.TokenFile = DefaultTokenFile()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultTokenFile is ~/.backstage/tokens.yaml, or a file in the working
// directory when the home directory is unknown.
func DefaultTokenFile() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".backstage-tokens.yaml"
	}
	return filepath.Join(home, ".backstage", "tokens.yaml")
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var problems []string

	if u, err := url.Parse(c.BaseURL); err != nil || !u.IsAbs() {
		problems = append(problems, fmt.Sprintf("BACKSTAGE_BASE_URL %q must be an absolute URL", c.BaseURL))
	}
	if c.Timeout <= 0 {
		problems = append(problems, "BACKSTAGE_TIMEOUT must be positive")
	}
	if c.RefreshTimeout <= 0 {
		problems = append(problems, "BACKSTAGE_REFRESH_TIMEOUT must be positive")
	}
	if !strings.HasPrefix(c.LoginPath, "/") {
		problems = append(problems, "BACKSTAGE_LOGIN_PATH must start with /")
	}
	switch c.TokenStore {
	case StoreFile, StoreRedis, StoreMemory:
	default:
		problems = append(problems, fmt.Sprintf("BACKSTAGE_TOKEN_STORE %q must be one of file, redis, memory", c.TokenStore))
	}
	if c.RateLimit < 0 {
		problems = append(problems, "BACKSTAGE_RATE_LIMIT must not be negative")
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		problems = append(problems, "BACKSTAGE_RATE_BURST must be at least 1")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// NewTokenStore builds the configured token store.
func (c *Config) NewTokenStore() (request.TokenStore, error) {
	switch c.TokenStore {
	case StoreRedis:
		return tokenstore.NewRedisStoreFromURL(c.RedisURL, c.RedisKey, c.RedisTTL)
	case StoreMemory:
		return request.NewMemoryTokenStore(), nil
	default:
		return tokenstore.NewFileStore(c.TokenFile), nil
	}
}

// ClientOptions translates the configuration into client options. store is
// the token store returned by NewTokenStore.
func (c *Config) ClientOptions(store request.TokenStore) []request.Option {
	refresher := request.NewHTTPRefresher(c.BaseURL, c.RefreshTimeout,
		request.WithRefreshPath(c.RefreshPath),
		request.WithLogoutPath(c.LogoutPath),
	)

	opts := []request.Option{
		request.WithBaseURL(c.BaseURL),
		request.WithTimeout(c.Timeout),
		request.WithTokenStore(store),
		request.WithHTTPRefresher(refresher),
		request.WithRefreshTimeout(c.RefreshTimeout),
		request.WithLoginPath(c.LoginPath),
	}
	if len(c.RefreshCodes) > 0 {
		opts = append(opts, request.WithRefreshCodes(c.RefreshCodes...))
	}
	if c.RateLimit > 0 {
		opts = append(opts, request.WithRateLimit(c.RateLimit, c.RateBurst))
	}
	if c.Debug {
		opts = append(opts, request.WithDebug())
	}
	return opts
}
