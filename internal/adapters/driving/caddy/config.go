package caddy

import (
	"fmt"
	"strings"

	"github.com/ausaccessfed/aaf-mdqt/internal/config"
)

// DefaultPathPrefix is where the proxy answers MDQ requests.
const DefaultPathPrefix = "/entities"

// Config holds the configuration for the MDQ proxy handler.
type Config struct {
	// Client settings shared with the command line tool.
	config.Config

	// PathPrefix is the request path the handler answers under.
	// Defaults to "/entities".
	PathPrefix string `json:"path_prefix,omitempty"`

	// RequireVerified refuses documents that were not verified against a
	// trust anchor. Requires trust_anchors.
	RequireVerified bool `json:"require_verified,omitempty"`

	// MetricsEnabled enables Prometheus metrics exposition.
	// Metrics are exposed via Caddy's admin API /metrics endpoint.
	// Defaults to false.
	MetricsEnabled bool `json:"metrics_enabled,omitempty"`
}

// SetDefaults applies default values to unset configuration fields.
func (c *Config) SetDefaults() {
	c.Config.SetDefaults()
	if c.PathPrefix == "" {
		c.PathPrefix = DefaultPathPrefix
	}
	c.PathPrefix = "/" + strings.Trim(c.PathPrefix, "/")
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := c.Config.Validate(); err != nil {
		return err
	}
	if c.RequireVerified && len(c.TrustAnchors) == 0 {
		return fmt.Errorf("trust_anchors is required when require_verified is enabled")
	}
	if c.PathPrefix == "/" {
		return fmt.Errorf("path_prefix must not be the root path")
	}
	return nil
}
