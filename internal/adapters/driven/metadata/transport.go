package metadata

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ausaccessfed/aaf-mdqt/internal/core/domain"
)

const (
	// DefaultConnectTimeout bounds connection establishment.
	DefaultConnectTimeout = 5 * time.Second

	// DefaultRequestTimeout bounds a whole request, redirects included.
	DefaultRequestTimeout = 100 * time.Second

	// DefaultMaxRedirects is how many redirects are followed.
	DefaultMaxRedirects = 3
)

// TransportConfig holds the network settings of the retrieval client.
type TransportConfig struct {
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	MaxRedirects   int

	// TLSVerify disables certificate checks when false.
	TLSVerify bool
}

// DefaultTransportConfig returns the default network settings.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		ConnectTimeout: DefaultConnectTimeout,
		RequestTimeout: DefaultRequestTimeout,
		MaxRedirects:   DefaultMaxRedirects,
		TLSVerify:      true,
	}
}

// normalized fills unset limits with defaults and keeps the connect timeout
// strictly below the request timeout.
func (cfg TransportConfig) normalized() TransportConfig {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.ConnectTimeout >= cfg.RequestTimeout {
		cfg.ConnectTimeout = cfg.RequestTimeout / 2
	}
	if cfg.MaxRedirects < 0 {
		cfg.MaxRedirects = DefaultMaxRedirects
	}
	return cfg
}

var errRedirectLimit = errors.New("redirect limit reached")

// NewHTTPClient builds an HTTP client that enforces cfg. Unset or
// inconsistent timeouts are normalized first.
func NewHTTPClient(cfg TransportConfig) *http.Client {
	cfg = cfg.normalized()
	dialer := &net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext
	transport.TLSHandshakeTimeout = cfg.ConnectTimeout
	if !cfg.TLSVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	return &http.Client{
		Timeout:       cfg.RequestTimeout,
		Transport:     transport,
		CheckRedirect: redirectPolicy(cfg.MaxRedirects),
	}
}

// redirectPolicy allows at most max redirects per request.
func redirectPolicy(max int) func(*http.Request, []*http.Request) error {
	return func(_ *http.Request, via []*http.Request) error {
		if len(via) > max {
			return fmt.Errorf("%w (%d)", errRedirectLimit, max)
		}
		return nil
	}
}

// classifyTransportError maps a failed request to the retrieval error taxonomy.
func classifyTransportError(url string, err error) *domain.AppError {
	var netErr net.Error
	switch {
	case errors.Is(err, errRedirectLimit):
		return domain.TransportError(domain.ErrCodeTooManyRedirects, url, err)
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return domain.TransportError(domain.ErrCodeTimeout, url, err)
	default:
		return domain.TransportError(domain.ErrCodeUnreachable, url, err)
	}
}
