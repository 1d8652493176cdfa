package metadata

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ausaccessfed/aaf-mdqt/internal/adapters/driven/cache"
	"github.com/ausaccessfed/aaf-mdqt/internal/core/domain"
	"github.com/ausaccessfed/aaf-mdqt/internal/core/ports"
)

const (
	// MediaType is the MDQ metadata content type.
	MediaType = "application/samlmetadata+xml"

	// DefaultUserAgent identifies the client when no version is injected.
	DefaultUserAgent = "mdqt/unknown"
)

// Client retrieves metadata from an MDQ service through a response cache.
// It is safe for concurrent use when its CacheStore is.
type Client struct {
	baseURL         string
	httpClient      *http.Client
	tlsVerify       bool
	userAgent       string
	cache           ports.CacheStore
	inspector       ports.DocumentInspector
	logger          *zap.Logger
	metricsRecorder ports.MetricsRecorder
	onCacheDecision CacheDecisionFunc
	clock           Clock
}

// NewClient creates a client for the MDQ service at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	options := &clientOptions{transport: DefaultTransportConfig()}
	for _, opt := range opts {
		opt(options)
	}

	c := &Client{
		baseURL:         strings.TrimRight(baseURL, "/"),
		httpClient:      options.httpClient,
		tlsVerify:       options.transport.TLSVerify,
		userAgent:       options.userAgent,
		cache:           options.cache,
		inspector:       options.inspector,
		logger:          options.logger,
		metricsRecorder: options.metricsRecorder,
		onCacheDecision: options.onCacheDecision,
		clock:           options.clock,
	}
	if c.httpClient == nil {
		c.httpClient = NewHTTPClient(options.transport)
	}
	if c.userAgent == "" {
		c.userAgent = DefaultUserAgent
	}
	if c.cache == nil {
		c.cache = cache.NewDisabledStore()
	}
	if c.inspector == nil {
		c.inspector = NewInspector()
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.clock == nil {
		c.clock = RealClock{}
	}
	if !c.tlsVerify {
		c.logger.Warn("TLS certificate verification disabled for MDQ service",
			zap.String("url", c.baseURL))
	}
	return c
}

// BaseURL returns the MDQ service base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// RequestURL returns the URL requested for id. It is also the cache key.
func (c *Client) RequestURL(id domain.EntityIdentifier) string {
	return c.baseURL + "/" + id.RequestPath()
}

// Fetch retrieves the document for id. Transport failures return no
// response and leave the cache untouched.
func (c *Client) Fetch(ctx context.Context, id domain.EntityIdentifier, opts ports.FetchOptions) (*domain.MetadataResponse, error) {
	start := c.clock.Now()
	url := c.RequestURL(id)

	var (
		resp *domain.MetadataResponse
		err  error
	)
	if opts.Mode == domain.ModeExists {
		resp, err = c.head(ctx, id, url)
	} else {
		resp, err = c.get(ctx, id, url, opts.ForceRefresh)
	}

	if c.metricsRecorder != nil {
		c.metricsRecorder.RecordFetch(opts.Mode, resultLabel(err), c.clock.Now().Sub(start))
		if resp != nil {
			c.metricsRecorder.RecordCacheOutcome(resp.CacheOutcome())
		}
	}
	return resp, err
}

func (c *Client) get(ctx context.Context, id domain.EntityIdentifier, url string, force bool) (*domain.MetadataResponse, error) {
	var cached *domain.CacheEntry
	if !force {
		cached = c.lookup(ctx, url)
		if cached != nil && cached.IsFresh(c.clock.Now()) {
			c.decide(url, domain.CacheHit)
			return c.fromEntry(id, cached, domain.CacheHit), nil
		}
	}

	req, err := c.newRequest(ctx, http.MethodGet, url)
	if err != nil {
		return nil, domain.TransportError(domain.ErrCodeUnreachable, url, err)
	}
	if cached != nil {
		if cached.ETag != "" {
			req.Header.Set("If-None-Match", cached.ETag)
		}
		if cached.LastModified != "" {
			req.Header.Set("If-Modified-Since", cached.LastModified)
		}
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		appErr := classifyTransportError(url, err)
		appErr.Identifier = id.Raw()
		c.logger.Warn("MDQ request failed",
			zap.String("entity_id", id.String()),
			zap.String("url", url),
			zap.String("code", appErr.Code.String()),
			zap.Error(err))
		return nil, appErr
	}
	defer httpResp.Body.Close()
	now := c.clock.Now()

	if httpResp.StatusCode == http.StatusNotModified && cached != nil {
		refreshed := cached.Refresh(httpResp.Header, now)
		c.store(ctx, refreshed)
		c.decide(url, domain.CacheRevalidated)
		return c.fromEntry(id, refreshed, domain.CacheRevalidated), nil
	}

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		appErr := classifyTransportError(url, err)
		appErr.Identifier = id.Raw()
		return nil, appErr
	}

	outcome := domain.CacheMiss
	if force {
		outcome = domain.CacheBypassed
	}
	c.decide(url, outcome)

	if httpResp.StatusCode == http.StatusOK {
		if freshness, ok := domain.ParseFreshness(httpResp.Header, now); ok {
			c.store(ctx, &domain.CacheEntry{
				Key:       url,
				Status:    httpResp.StatusCode,
				Header:    httpResp.Header.Clone(),
				Body:      body,
				StoredAt:  now,
				Freshness: freshness,
			})
		} else if cached != nil {
			c.evict(ctx, url)
		}
	}

	resp := c.newResponse(id, url, httpResp.StatusCode, httpResp.Header, body, outcome, now)
	if httpResp.StatusCode != http.StatusOK {
		return resp, c.statusError(id, url, httpResp.StatusCode)
	}
	return resp, nil
}

// head checks existence without touching the cache.
func (c *Client) head(ctx context.Context, id domain.EntityIdentifier, url string) (*domain.MetadataResponse, error) {
	req, err := c.newRequest(ctx, http.MethodHead, url)
	if err != nil {
		return nil, domain.TransportError(domain.ErrCodeUnreachable, url, err)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		appErr := classifyTransportError(url, err)
		appErr.Identifier = id.Raw()
		c.logger.Warn("MDQ existence check failed",
			zap.String("entity_id", id.String()),
			zap.String("url", url),
			zap.Error(err))
		return nil, appErr
	}
	defer httpResp.Body.Close()
	_, _ = io.Copy(io.Discard, httpResp.Body)

	c.decide(url, domain.CacheBypassed)
	resp := domain.NewMetadataResponse(domain.ResponseParams{
		Identifier:   id,
		SourceURL:    url,
		Status:       httpResp.StatusCode,
		Header:       httpResp.Header,
		CacheOutcome: domain.CacheBypassed,
		TLSVerified:  c.tlsVerify,
		FetchedAt:    c.clock.Now(),
	})
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return resp, c.statusError(id, url, httpResp.StatusCode)
	}
	return resp, nil
}

func (c *Client) newRequest(ctx context.Context, method, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", MediaType)
	req.Header.Set("Accept-Charset", "utf-8")
	req.Header.Set("User-Agent", c.userAgent)
	return req, nil
}

// lookup reads the cache. Backend failures count as a miss.
func (c *Client) lookup(ctx context.Context, key string) *domain.CacheEntry {
	entry, err := c.cache.Get(ctx, key)
	switch {
	case err == nil:
		return entry
	case errors.Is(err, domain.ErrCacheMiss):
		return nil
	default:
		c.logger.Warn("cache read failed, treating as miss",
			zap.String("cache", c.cache.Name()),
			zap.String("url", key),
			zap.Error(err))
		return nil
	}
}

func (c *Client) store(ctx context.Context, entry *domain.CacheEntry) {
	if err := c.cache.Put(ctx, entry); err != nil {
		c.logger.Warn("cache write failed",
			zap.String("cache", c.cache.Name()),
			zap.String("url", entry.Key),
			zap.Error(err))
	}
}

func (c *Client) evict(ctx context.Context, key string) {
	if err := c.cache.Delete(ctx, key); err != nil {
		c.logger.Debug("cache delete failed", zap.String("url", key), zap.Error(err))
	}
}

func (c *Client) decide(key string, outcome domain.CacheOutcome) {
	c.logger.Debug("cache decision",
		zap.String("url", key),
		zap.String("cache", string(outcome)))
	if c.onCacheDecision != nil {
		c.onCacheDecision(key, outcome)
	}
}

func (c *Client) statusError(id domain.EntityIdentifier, url string, status int) error {
	err := domain.HTTPStatusError(url, status)
	err.Identifier = id.Raw()
	c.logger.Debug("MDQ service returned non-success status",
		zap.String("entity_id", id.String()),
		zap.String("url", url),
		zap.Int("status", status))
	return err
}

func (c *Client) fromEntry(id domain.EntityIdentifier, entry *domain.CacheEntry, outcome domain.CacheOutcome) *domain.MetadataResponse {
	return c.newResponse(id, entry.Key, entry.Status, entry.Header, entry.Body, outcome, entry.StoredAt)
}

func (c *Client) newResponse(id domain.EntityIdentifier, url string, status int, header http.Header, body []byte, outcome domain.CacheOutcome, fetchedAt time.Time) *domain.MetadataResponse {
	var doc domain.DocumentInfo
	if status == http.StatusOK && len(body) > 0 {
		info, err := c.inspector.Inspect(body)
		if err != nil {
			c.logger.Debug("metadata document could not be inspected",
				zap.String("url", url), zap.Error(err))
		} else {
			doc = info
		}
	}
	return domain.NewMetadataResponse(domain.ResponseParams{
		Identifier:   id,
		SourceURL:    url,
		Status:       status,
		Header:       header,
		Body:         body,
		Document:     doc,
		CacheOutcome: outcome,
		TLSVerified:  c.tlsVerify,
		FetchedAt:    fetchedAt,
	})
}

// resultLabel is the metrics label for a retrieval error.
func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		return appErr.Code.String()
	}
	return "error"
}

// Ensure Client implements ports.MetadataFetcher
var _ ports.MetadataFetcher = (*Client)(nil)
