// Package config holds the process wide, read-only credentials and upstream endpoints.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPort        = 5000
	DefaultBodyLimit   = "50M"
	DefaultHomepageURL = "http://mytourbook.sourceforge.net/mytourbook/"

	DefaultStravaTokenURL    = "https://www.strava.com/api/v3/oauth/token"
	DefaultSuuntoTokenURL    = "https://cloudapi-oauth.suunto.com/oauth/token"
	DefaultSuuntoAPIURL      = "https://cloudapi.suunto.com/v2"
	DefaultSuuntoCallbackURL = "http://localhost:4919"
	DefaultWeatherAPIURL     = "http://api.weatherapi.com/v1/history.json"
	DefaultOpenWeatherMapURL = "https://api.openweathermap.org"
)

type Config struct {
	Address         string        `yaml:"address"`
	Port            int           `yaml:"port" validate:"min=1,max=65535"`
	BodyLimit       string        `yaml:"body_limit" validate:"required"`
	HomepageURL     string        `yaml:"homepage_url" validate:"required,url"`
	UpstreamTimeout time.Duration `yaml:"upstream_timeout" validate:"min=0"`

	Strava         StravaConfig         `yaml:"strava"`
	Suunto         SuuntoConfig         `yaml:"suunto"`
	WeatherAPI     WeatherAPIConfig     `yaml:"weatherapi"`
	OpenWeatherMap OpenWeatherMapConfig `yaml:"openweathermap"`
}

type StravaConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	TokenURL     string `yaml:"token_url" validate:"required,url"`
}

type SuuntoConfig struct {
	ClientID        string `yaml:"client_id"`
	ClientSecret    string `yaml:"client_secret"`
	SubscriptionKey string `yaml:"subscription_key"`
	TokenURL        string `yaml:"token_url" validate:"required,url"`
	APIURL          string `yaml:"api_url" validate:"required,url"`
	CallbackURL     string `yaml:"callback_url" validate:"required,url"`
}

type WeatherAPIConfig struct {
	Key string `yaml:"key"`
	URL string `yaml:"url" validate:"required,url"`
}

type OpenWeatherMapConfig struct {
	Key string `yaml:"key"`
	URL string `yaml:"url" validate:"required,url"`
}

func Default() *Config {
	return &Config{
		Port:        DefaultPort,
		BodyLimit:   DefaultBodyLimit,
		HomepageURL: DefaultHomepageURL,
		Strava: StravaConfig{
			TokenURL: DefaultStravaTokenURL,
		},
		Suunto: SuuntoConfig{
			TokenURL:    DefaultSuuntoTokenURL,
			APIURL:      DefaultSuuntoAPIURL,
			CallbackURL: DefaultSuuntoCallbackURL,
		},
		WeatherAPI: WeatherAPIConfig{
			URL: DefaultWeatherAPIURL,
		},
		OpenWeatherMap: OpenWeatherMapConfig{
			URL: DefaultOpenWeatherMapURL,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at path
// and the environment, in that order, and validates the result.
func Load(path string, lookupEnv func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := LoadFile(path, cfg); err != nil {
				return nil, err
			}
			slog.Info("Loaded config file", "path", path)
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat config file: %w", err)
		}
	}

	if err := cfg.ApplyEnv(lookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFile merges a YAML file into cfg. ${VAR} references are expanded first.
func LoadFile(path string, cfg *Config) error {
	content, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(content))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("decode config file: %w", err)
	}
	return nil
}

// ApplyEnv overrides values with the environment variables the relay has always used.
func (c *Config) ApplyEnv(lookupEnv func(string) (string, bool)) error {
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}
	var result *multierror.Error

	str := func(key string, dst *string) {
		if v, ok := lookupEnv(key); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookupEnv("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("PORT: %w", err))
		} else {
			c.Port = port
		}
	}
	if v, ok := lookupEnv("UPSTREAM_TIMEOUT"); ok && v != "" {
		timeout, err := time.ParseDuration(v)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("UPSTREAM_TIMEOUT: %w", err))
		} else {
			c.UpstreamTimeout = timeout
		}
	}
	str("ADDRESS", &c.Address)
	str("BODY_LIMIT", &c.BodyLimit)
	str("HOMEPAGE_URL", &c.HomepageURL)

	str("STRAVA_CLIENT_ID", &c.Strava.ClientID)
	str("STRAVA_CLIENT_SECRET", &c.Strava.ClientSecret)
	str("STRAVA_TOKEN_URL", &c.Strava.TokenURL)

	str("SUUNTO_CLIENT_ID", &c.Suunto.ClientID)
	str("SUUNTO_CLIENT_SECRET", &c.Suunto.ClientSecret)
	str("SUUNTO_SUBSCRIPTION_KEY", &c.Suunto.SubscriptionKey)
	str("SUUNTO_TOKEN_URL", &c.Suunto.TokenURL)
	str("SUUNTO_API_URL", &c.Suunto.APIURL)
	str("SUUNTO_CALLBACK_URL", &c.Suunto.CallbackURL)

	str("WEATHERAPI_KEY", &c.WeatherAPI.Key)
	str("WEATHERAPI_URL", &c.WeatherAPI.URL)

	str("OPENWEATHERMAP_KEY", &c.OpenWeatherMap.Key)
	str("OPENWEATHERMAP_URL", &c.OpenWeatherMap.URL)

	return result.ErrorOrNil()
}

func (c *Config) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("yaml")
	})

	var result *multierror.Error
	if err := validate.Struct(c); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range validationErrors {
				result = multierror.Append(result, fmt.Errorf("%s: failed %s validation", fe.Namespace(), fe.Tag()))
			}
		} else {
			result = multierror.Append(result, err)
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

// Addr is the listen address, e.g. ":5000".
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Address, c.Port)
}

// MissingCredentials lists providers whose secrets are not configured. Such
// routes still work but every upstream call will be rejected.
func (c *Config) MissingCredentials() []string {
	var missing []string
	if c.Strava.ClientID == "" || c.Strava.ClientSecret == "" {
		missing = append(missing, "strava")
	}
	if c.Suunto.ClientID == "" || c.Suunto.ClientSecret == "" {
		missing = append(missing, "suunto")
	}
	if c.Suunto.SubscriptionKey == "" {
		missing = append(missing, "suunto subscription key")
	}
	if c.WeatherAPI.Key == "" {
		missing = append(missing, "weatherapi")
	}
	if c.OpenWeatherMap.Key == "" {
		missing = append(missing, "openweathermap")
	}
	return missing
}

// Expand ~ to $HOME
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		home, _ := os.UserHomeDir()
		path = strings.Replace(path, "~", home, 1)
	}
	return filepath.Clean(path)
}
