package caddy

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/caddyserver/caddy/v2"
	"github.com/caddyserver/caddy/v2/caddyconfig/caddyfile"
	"github.com/caddyserver/caddy/v2/modules/caddyhttp"
	"go.uber.org/zap"

	"github.com/ausaccessfed/aaf-mdqt/internal/core/domain"
	"github.com/ausaccessfed/aaf-mdqt/internal/core/ports"
	"github.com/ausaccessfed/aaf-mdqt/internal/core/service"

	"github.com/ausaccessfed/aaf-mdqt/internal/adapters/driven/metadata"
	"github.com/ausaccessfed/aaf-mdqt/internal/adapters/driven/metrics"
	"github.com/ausaccessfed/aaf-mdqt/internal/buildinfo"
	"github.com/ausaccessfed/aaf-mdqt/internal/factory"
)

// Response headers describing how a document was obtained.
const (
	HeaderCache    = "X-MDQ-Cache"
	HeaderVerified = "X-MDQ-Verified"
)

// forwardedHeaders are copied from the upstream response.
var forwardedHeaders = []string{"Cache-Control", "ETag", "Last-Modified", "Expires"}

// MDQProxy is a Caddy HTTP handler module that answers MDQ requests from an
// upstream MDQ service through the response cache, verifying documents
// against the configured trust anchors.
type MDQProxy struct {
	// Configuration embedded directly
	Config

	// Runtime state (not serialized)
	lookup          *service.Lookup
	logger          *zap.Logger
	metricsRecorder ports.MetricsRecorder
}

// CaddyModule returns the Caddy module information.
func (MDQProxy) CaddyModule() caddy.ModuleInfo {
	return caddy.ModuleInfo{
		ID:  "http.handlers.mdq_proxy",
		New: func() caddy.Module { return new(MDQProxy) },
	}
}

// Provision sets up the module.
func (p *MDQProxy) Provision(ctx caddy.Context) error {
	p.logger = ctx.Logger()
	p.logger.Debug("provisioning mdq proxy")

	p.Config.SetDefaults()

	if p.MetricsEnabled {
		p.metricsRecorder = metrics.NewPrometheusMetricsRecorderWithRegistry(ctx.GetMetricsRegistry())
	}

	lookup, err := p.newLookup()
	if err != nil {
		return fmt.Errorf("provision mdq proxy: %w", err)
	}
	p.lookup = lookup

	p.logger.Info("mdq proxy ready",
		zap.String("service", p.Service),
		zap.String("path_prefix", p.PathPrefix),
		zap.String("cache", p.Cache.Backend),
		zap.Int("trust_anchors", len(p.lookup.Anchors())),
		zap.Bool("require_verified", p.RequireVerified))
	return nil
}

// newLookup builds the lookup service. The proxy identifies itself upstream
// with the release User-Agent unless the config names one.
func (p *MDQProxy) newLookup() (*service.Lookup, error) {
	return factory.NewLookup(&p.Config.Config,
		factory.WithLogger(p.logger),
		factory.WithMetricsRecorder(p.getMetricsRecorder()),
		factory.WithUserAgent(buildinfo.UserAgent()),
	)
}

// Validate ensures the module configuration is valid.
func (p *MDQProxy) Validate() error {
	return p.Config.Validate()
}

// ServeHTTP handles GET and HEAD requests for <prefix> and <prefix>/<id>.
// Other paths are passed to the next handler.
func (p *MDQProxy) ServeHTTP(w http.ResponseWriter, r *http.Request, next caddyhttp.Handler) error {
	raw, ok := p.identifierFromPath(r.URL.EscapedPath())
	if !ok {
		return next.ServeHTTP(w, r)
	}

	switch r.Method {
	case http.MethodGet:
		return p.handleGet(w, r, raw)
	case http.MethodHead:
		return p.handleHead(w, r, raw)
	default:
		w.Header().Set("Allow", "GET, HEAD")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return nil
	}
}

// identifierFromPath extracts the raw identifier from an escaped request
// path. The bare prefix is the aggregate request.
func (p *MDQProxy) identifierFromPath(path string) (string, bool) {
	if path == p.PathPrefix || path == p.PathPrefix+"/" {
		return "", true
	}
	rest, found := strings.CutPrefix(path, p.PathPrefix+"/")
	if !found {
		return "", false
	}
	raw, err := url.PathUnescape(rest)
	if err != nil {
		return rest, true
	}
	return raw, true
}

func (p *MDQProxy) handleGet(w http.ResponseWriter, r *http.Request, raw string) error {
	opts := service.RequestOptions{
		Refresh: strings.Contains(r.Header.Get("Cache-Control"), "no-cache"),
	}
	resp, err := p.lookup.Get(r.Context(), raw, opts)
	if err != nil {
		p.renderError(w, r, err)
		return nil
	}

	if p.RequireVerified && !resp.Verified() {
		p.getLogger().Warn("refusing unverified metadata",
			zap.String("entity_id", raw),
			zap.String("url", resp.SourceURL()),
			zap.String("state", string(resp.Verification().State)))
		p.renderAppError(w, &domain.AppError{
			Code:       domain.ErrCodeSignatureInvalid,
			Message:    "metadata signature could not be verified",
			Identifier: raw,
		})
		return nil
	}

	header := w.Header()
	upstream := resp.Header()
	for _, name := range forwardedHeaders {
		if v := upstream.Get(name); v != "" {
			header.Set(name, v)
		}
	}
	header.Set("Content-Type", metadata.MediaType)
	header.Set(HeaderCache, string(resp.CacheOutcome()))
	header.Set(HeaderVerified, string(resp.Verification().State))
	w.WriteHeader(http.StatusOK)
	_, err = w.Write(resp.Body())
	return err
}

func (p *MDQProxy) handleHead(w http.ResponseWriter, r *http.Request, raw string) error {
	exists, err := p.lookup.Exists(r.Context(), raw)
	if err != nil {
		p.renderError(w, r, err)
		return nil
	}
	if !exists {
		w.WriteHeader(http.StatusNotFound)
		return nil
	}
	w.Header().Set("Content-Type", metadata.MediaType)
	w.WriteHeader(http.StatusOK)
	return nil
}

func (p *MDQProxy) renderError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *domain.AppError
	if !errors.As(err, &appErr) {
		appErr = &domain.AppError{Code: domain.ErrCodeUnreachable, Message: "lookup failed", Cause: err}
	}
	p.getLogger().Debug("mdq lookup failed",
		zap.String("path", r.URL.Path),
		zap.String("code", appErr.Code.String()),
		zap.Error(err))

	if r.Method == http.MethodHead {
		w.WriteHeader(statusFor(appErr))
		return
	}
	p.renderAppError(w, appErr)
}

func (p *MDQProxy) renderAppError(w http.ResponseWriter, err *domain.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(err))
	_ = json.NewEncoder(w).Encode(domain.NewJSONErrorResponse(err))
}

// statusFor passes an upstream 404 through; other failures map by code.
func statusFor(err *domain.AppError) int {
	if err.Code == domain.ErrCodeHTTPStatus && err.Status == http.StatusNotFound {
		return http.StatusNotFound
	}
	return err.Code.HTTPStatus()
}

func (p *MDQProxy) getLogger() *zap.Logger {
	if p.logger == nil {
		return zap.NewNop()
	}
	return p.logger
}

// getMetricsRecorder returns the metrics recorder, or a no-op recorder if not set.
func (p *MDQProxy) getMetricsRecorder() ports.MetricsRecorder {
	if p.metricsRecorder != nil {
		return p.metricsRecorder
	}
	return metrics.NewNoopMetricsRecorder()
}

// Cleanup closes the cache backend when the module is unloaded.
// Implements caddy.CleanerUpper for graceful shutdown.
func (p *MDQProxy) Cleanup() error {
	if p.lookup == nil {
		return nil
	}
	return p.lookup.Close()
}

// Interface guards
var (
	_ caddy.Module                = (*MDQProxy)(nil)
	_ caddy.Provisioner           = (*MDQProxy)(nil)
	_ caddy.Validator             = (*MDQProxy)(nil)
	_ caddy.CleanerUpper          = (*MDQProxy)(nil)
	_ caddyhttp.MiddlewareHandler = (*MDQProxy)(nil)
	_ caddyfile.Unmarshaler       = (*MDQProxy)(nil)
)
