package caddy

import (
	"go.uber.org/zap"

	"github.com/ausaccessfed/aaf-mdqt/internal/core/service"
)

// NewMDQProxyForTest creates an MDQProxy with an injected lookup service.
// This constructor is intended for testing purposes only.
func NewMDQProxyForTest(config Config, lookup *service.Lookup, logger *zap.Logger) *MDQProxy {
	config.SetDefaults()
	return &MDQProxy{
		Config: config,
		lookup: lookup,
		logger: logger,
	}
}
