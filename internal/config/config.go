// Package config loads and validates the client configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ausaccessfed/aaf-mdqt/internal/adapters/driven/cache"
	"github.com/ausaccessfed/aaf-mdqt/internal/adapters/driven/metadata"
	"github.com/ausaccessfed/aaf-mdqt/internal/core/domain"
)

// Defaults for unset fields.
const (
	DefaultConnectTimeout = "5s"
	DefaultRequestTimeout = "100s"
	DefaultMaxRedirects   = metadata.DefaultMaxRedirects
	DefaultRetention      = "7d"
)

// Config holds the settings shared by the CLI and the proxy.
type Config struct {
	// Service is the MDQ service base URL (required).
	Service string `json:"service,omitempty" yaml:"service" validate:"required,http_url"`

	Cache CacheConfig `json:"cache,omitempty" yaml:"cache"`

	Timeouts TimeoutConfig `json:"timeouts,omitempty" yaml:"timeouts"`

	// MaxRedirects is how many redirects a request follows. Defaults to 3.
	MaxRedirects *int `json:"max_redirects,omitempty" yaml:"max_redirects" validate:"omitempty,gte=0,lte=20"`

	// TLSVerify turns transport certificate checks off when false.
	// Defaults to true.
	TLSVerify *bool `json:"tls_verify,omitempty" yaml:"tls_verify"`

	// TrustAnchors are certificate file paths or inline PEM blocks. Empty
	// means documents are not verified.
	TrustAnchors []string `json:"trust_anchors,omitempty" yaml:"trust_anchors" validate:"dive,required"`

	// HashLiteralIdentifiers sends literal entity IDs in {sha1} form.
	HashLiteralIdentifiers bool `json:"hash_literal_identifiers,omitempty" yaml:"hash_literal_identifiers"`

	// Explain records why verification succeeded or failed.
	Explain bool `json:"explain,omitempty" yaml:"explain"`

	// UserAgent overrides the User-Agent header.
	UserAgent string `json:"user_agent,omitempty" yaml:"user_agent"`
}

// CacheConfig selects the response cache backend.
type CacheConfig struct {
	// Backend is one of disabled, memory, file or redis. Defaults to disabled.
	Backend string `json:"backend,omitempty" yaml:"backend" validate:"omitempty,oneof=disabled memory file redis"`

	// Path is the file backend directory.
	Path string `json:"path,omitempty" yaml:"path"`

	// Address, Password, DB and Prefix configure the redis backend.
	Address  string `json:"address,omitempty" yaml:"address" validate:"omitempty,hostname_port"`
	Password string `json:"password,omitempty" yaml:"password"`
	DB       int    `json:"db,omitempty" yaml:"db" validate:"gte=0"`
	Prefix   string `json:"prefix,omitempty" yaml:"prefix"`

	// Retention is how long stale entries that can be revalidated survive
	// a tidy (e.g. "7d").
	Retention string `json:"retention,omitempty" yaml:"retention" validate:"omitempty,duration"`
}

// TimeoutConfig holds the request time limits.
type TimeoutConfig struct {
	// Connect bounds connection establishment (e.g. "5s").
	Connect string `json:"connect,omitempty" yaml:"connect" validate:"omitempty,duration"`

	// Request bounds the whole request, redirects included (e.g. "100s").
	Request string `json:"request,omitempty" yaml:"request" validate:"omitempty,duration"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		_, err := ParseDuration(fl.Field().String())
		return err == nil
	})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{}
	c.SetDefaults()
	return c
}

// Load reads and validates the YAML file at path. Unknown keys are an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML document.
func Parse(data []byte) (*Config, error) {
	c := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, &domain.AppError{
			Code:    domain.ErrCodeConfigInvalid,
			Message: "config is not valid YAML",
			Cause:   err,
		}
	}
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// SetDefaults applies default values to unset configuration fields.
func (c *Config) SetDefaults() {
	if c.Cache.Backend == "" {
		c.Cache.Backend = string(cache.KindDisabled)
	}
	if c.Cache.Path == "" {
		c.Cache.Path = cache.DefaultPath
	}
	if c.Cache.Address == "" {
		c.Cache.Address = cache.DefaultAddress
	}
	if c.Cache.Prefix == "" {
		c.Cache.Prefix = cache.DefaultPrefix
	}
	if c.Cache.Retention == "" {
		c.Cache.Retention = DefaultRetention
	}
	if c.Timeouts.Connect == "" {
		c.Timeouts.Connect = DefaultConnectTimeout
	}
	if c.Timeouts.Request == "" {
		c.Timeouts.Request = DefaultRequestTimeout
	}
	if c.MaxRedirects == nil {
		c.MaxRedirects = intPtr(DefaultMaxRedirects)
	}
	if c.TLSVerify == nil {
		c.TLSVerify = boolPtr(true)
	}
}

// Validate checks field constraints, then the rules that span fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return validationError(err)
	}

	connect, err := ParseDuration(c.Timeouts.Connect)
	if err != nil {
		return domain.ConfigError(fmt.Sprintf("timeouts.connect: %v", err))
	}
	request, err := ParseDuration(c.Timeouts.Request)
	if err != nil {
		return domain.ConfigError(fmt.Sprintf("timeouts.request: %v", err))
	}
	if connect <= 0 || request <= 0 {
		return domain.ConfigError("timeouts must be positive")
	}
	if connect >= request {
		return domain.ConfigError(fmt.Sprintf("timeouts.connect (%s) must be shorter than timeouts.request (%s)", connect, request))
	}

	switch cache.Kind(c.Cache.Backend) {
	case cache.KindFile:
		if strings.TrimSpace(c.Cache.Path) == "" {
			return domain.ConfigError("cache.path is required for the file backend")
		}
	case cache.KindRedis:
		if strings.TrimSpace(c.Cache.Address) == "" {
			return domain.ConfigError("cache.address is required for the redis backend")
		}
	}
	return nil
}

// ValidateLocal is Validate without the service URL requirement, for work
// that only touches local files and the cache.
func (c *Config) ValidateLocal() error {
	local := *c
	if local.Service == "" {
		local.Service = "http://localhost"
	}
	return local.Validate()
}

// ConnectTimeout returns the parsed connect timeout.
func (c *Config) ConnectTimeout() time.Duration {
	d, _ := ParseDuration(c.Timeouts.Connect)
	return d
}

// RequestTimeout returns the parsed request timeout.
func (c *Config) RequestTimeout() time.Duration {
	d, _ := ParseDuration(c.Timeouts.Request)
	return d
}

// Transport returns the retrieval client network settings.
func (c *Config) Transport() metadata.TransportConfig {
	cfg := metadata.DefaultTransportConfig()
	if d := c.ConnectTimeout(); d > 0 {
		cfg.ConnectTimeout = d
	}
	if d := c.RequestTimeout(); d > 0 {
		cfg.RequestTimeout = d
	}
	if c.MaxRedirects != nil {
		cfg.MaxRedirects = *c.MaxRedirects
	}
	if c.TLSVerify != nil {
		cfg.TLSVerify = *c.TLSVerify
	}
	return cfg
}

// CacheSettings returns the cache backend selection.
func (c *Config) CacheSettings() cache.Settings {
	retention, _ := ParseDuration(c.Cache.Retention)
	return cache.Settings{
		Kind:      cache.Kind(c.Cache.Backend),
		Path:      c.Cache.Path,
		Address:   c.Cache.Address,
		Password:  c.Cache.Password,
		DB:        c.Cache.DB,
		Prefix:    c.Cache.Prefix,
		Retention: retention,
	}
}

// IdentifierPolicy returns how literal identifiers are sent.
func (c *Config) IdentifierPolicy() domain.IdentifierPolicy {
	if c.HashLiteralIdentifiers {
		return domain.HashLiteral
	}
	return domain.SendLiteral
}

// ParseDuration parses a duration string, supporting "d" suffix for days.
// Examples: "7d" (7 days), "100s", "1h30m".
func ParseDuration(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		days := strings.TrimSuffix(s, "d")
		var d int64
		if _, err := fmt.Sscanf(days, "%d", &d); err != nil {
			return 0, fmt.Errorf("invalid day format: %s", s)
		}
		// time.Duration overflows past ~106751 days.
		if d < 0 || d > 106751 {
			return 0, fmt.Errorf("day value out of range: %s (max 106751 days)", s)
		}
		return time.Duration(d) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

// validationError turns validator output into a config error naming the
// first offending field.
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &domain.AppError{Code: domain.ErrCodeConfigInvalid, Message: "invalid configuration", Cause: err}
	}
	fe := fieldErrs[0]
	field := strings.TrimPrefix(fe.Namespace(), "Config.")

	var msg string
	switch fe.Tag() {
	case "required":
		msg = fmt.Sprintf("%s is required", field)
	case "oneof":
		msg = fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "duration":
		msg = fmt.Sprintf("%s %q is not a duration", field, fe.Value())
	case "http_url":
		msg = fmt.Sprintf("%s %q is not an http(s) URL", field, fe.Value())
	default:
		msg = fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
	return &domain.AppError{Code: domain.ErrCodeConfigInvalid, Message: msg, Cause: err}
}

func intPtr(v int) *int {
	return &v
}

func boolPtr(v bool) *bool {
	return &v
}
