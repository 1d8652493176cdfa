package mdqt

import (
	"github.com/caddyserver/caddy/v2"
	"github.com/caddyserver/caddy/v2/caddyconfig/httpcaddyfile"

	caddyadapter "github.com/ausaccessfed/aaf-mdqt/internal/adapters/driving/caddy"
)

// MDQProxy is the http.handlers.mdq_proxy Caddy module.
type MDQProxy = caddyadapter.MDQProxy

func init() {
	caddy.RegisterModule(MDQProxy{})
	httpcaddyfile.RegisterHandlerDirective("mdq_proxy", caddyadapter.ParseCaddyfile)
}
