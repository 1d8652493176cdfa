package caddy

import (
	"strconv"

	"github.com/caddyserver/caddy/v2/caddyconfig/caddyfile"
	"github.com/caddyserver/caddy/v2/caddyconfig/httpcaddyfile"
	"github.com/caddyserver/caddy/v2/modules/caddyhttp"

	"github.com/ausaccessfed/aaf-mdqt/internal/config"
)

// ParseCaddyfile sets up the handler from Caddyfile tokens.
//
// Syntax:
//
//	mdq_proxy [<service_url>] {
//	    service <url>
//	    path_prefix <path>
//	    cache disabled|memory|file|redis {
//	        path <dir>
//	        address <host:port>
//	        password <password>
//	        db <n>
//	        prefix <prefix>
//	        retention <duration>
//	    }
//	    connect_timeout <duration>
//	    request_timeout <duration>
//	    max_redirects <n>
//	    tls_verify <true|false>
//	    trust_anchor <path>...
//	    hash_literal_identifiers
//	    explain
//	    user_agent <string>
//	    require_verified
//	    metrics_enabled
//	}
func ParseCaddyfile(h httpcaddyfile.Helper) (caddyhttp.MiddlewareHandler, error) {
	var p MDQProxy
	err := p.UnmarshalCaddyfile(h.Dispenser)
	return &p, err
}

// UnmarshalCaddyfile implements caddyfile.Unmarshaler.
func (p *MDQProxy) UnmarshalCaddyfile(d *caddyfile.Dispenser) error {
	d.Next() // consume directive name

	if d.NextArg() {
		p.Service = d.Val()
	}
	if d.NextArg() {
		return d.ArgErr()
	}

	for d.NextBlock(0) {
		switch d.Val() {
		case "service":
			if !d.NextArg() {
				return d.ArgErr()
			}
			p.Service = d.Val()

		case "path_prefix":
			if !d.NextArg() {
				return d.ArgErr()
			}
			p.PathPrefix = d.Val()

		case "cache":
			if !d.NextArg() {
				return d.ArgErr()
			}
			p.Cache.Backend = d.Val()
			for nesting := d.Nesting(); d.NextBlock(nesting); {
				if err := parseCacheField(d, &p.Cache); err != nil {
					return err
				}
			}

		case "connect_timeout":
			if !d.NextArg() {
				return d.ArgErr()
			}
			p.Timeouts.Connect = d.Val()

		case "request_timeout":
			if !d.NextArg() {
				return d.ArgErr()
			}
			p.Timeouts.Request = d.Val()

		case "max_redirects":
			if !d.NextArg() {
				return d.ArgErr()
			}
			n, err := strconv.Atoi(d.Val())
			if err != nil {
				return d.Errf("invalid max_redirects %q: %v", d.Val(), err)
			}
			p.MaxRedirects = &n

		case "tls_verify":
			if !d.NextArg() {
				return d.ArgErr()
			}
			v, err := strconv.ParseBool(d.Val())
			if err != nil {
				return d.Errf("invalid tls_verify %q: %v", d.Val(), err)
			}
			p.TLSVerify = &v

		case "trust_anchor":
			args := d.RemainingArgs()
			if len(args) == 0 {
				return d.ArgErr()
			}
			p.TrustAnchors = append(p.TrustAnchors, args...)

		case "hash_literal_identifiers":
			p.HashLiteralIdentifiers = true

		case "explain":
			p.Explain = true

		case "user_agent":
			if !d.NextArg() {
				return d.ArgErr()
			}
			p.UserAgent = d.Val()

		case "require_verified":
			p.RequireVerified = true

		case "metrics_enabled":
			p.MetricsEnabled = true

		default:
			return d.Errf("unknown subdirective: %s", d.Val())
		}
	}

	return nil
}

func parseCacheField(d *caddyfile.Dispenser, c *config.CacheConfig) error {
	field := d.Val()
	if !d.NextArg() {
		return d.ArgErr()
	}
	switch field {
	case "path":
		c.Path = d.Val()
	case "address":
		c.Address = d.Val()
	case "password":
		c.Password = d.Val()
	case "db":
		n, err := strconv.Atoi(d.Val())
		if err != nil {
			return d.Errf("invalid cache db %q: %v", d.Val(), err)
		}
		c.DB = n
	case "prefix":
		c.Prefix = d.Val()
	case "retention":
		c.Retention = d.Val()
	default:
		return d.Errf("unknown cache subdirective: %s", field)
	}
	return nil
}
