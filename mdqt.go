// Package mdqt is a client for Metadata Query (MDQ) services publishing SAML
// federation metadata. It canonicalizes entity identifiers, caches responses
// by HTTP freshness rules, and verifies enveloped XML signatures against a
// set of trust anchor certificates.
//
// The same lookup service backs the mdqt command and the mdq_proxy Caddy
// handler registered by this package.
package mdqt

import (
	"github.com/ausaccessfed/aaf-mdqt/internal/buildinfo"
	"github.com/ausaccessfed/aaf-mdqt/internal/config"
	"github.com/ausaccessfed/aaf-mdqt/internal/core/domain"
	"github.com/ausaccessfed/aaf-mdqt/internal/core/service"
	"github.com/ausaccessfed/aaf-mdqt/internal/factory"
)

// Version is the release version reported by the mdqt command and sent in
// the User-Agent header.
var Version = buildinfo.Version

// Re-export domain types
type (
	EntityIdentifier   = domain.EntityIdentifier
	IdentifierPolicy   = domain.IdentifierPolicy
	MetadataResponse   = domain.MetadataResponse
	CacheOutcome       = domain.CacheOutcome
	VerificationResult = domain.VerificationResult
	VerificationState  = domain.VerificationState
	TrustAnchor        = domain.TrustAnchor
	AnchorAttempt      = domain.AnchorAttempt
	AttemptOutcome     = domain.AttemptOutcome
)

// Re-export lookup service types
type (
	Lookup         = service.Lookup
	RequestOptions = service.RequestOptions
	Result         = service.Result
	Option         = factory.Option
)

// Config is the shared client configuration. See LoadConfig.
type Config = config.Config

const (
	SendLiteral = domain.SendLiteral
	HashLiteral = domain.HashLiteral

	CacheHit         = domain.CacheHit
	CacheRevalidated = domain.CacheRevalidated
	CacheMiss        = domain.CacheMiss
	CacheBypassed    = domain.CacheBypassed

	NotAttempted = domain.NotAttempted
	Verified     = domain.Verified
	Failed       = domain.Failed
)

// Re-export domain functions
var (
	Canonicalize        = domain.Canonicalize
	HashIdentifier      = domain.HashIdentifier
	ValidSHA1Identifier = domain.ValidSHA1Identifier
	NewEntityIdentifier = domain.NewEntityIdentifier
)

// Re-export configuration helpers
var (
	LoadConfig    = config.Load
	ParseConfig   = config.Parse
	DefaultConfig = config.Default
)

// Re-export factory options
var (
	WithLogger          = factory.WithLogger
	WithMetricsRecorder = factory.WithMetricsRecorder
	WithUserAgent       = factory.WithUserAgent
)

// New builds a lookup service from cfg. The caller closes it.
func New(cfg *Config, opts ...Option) (*Lookup, error) {
	opts = append([]Option{factory.WithUserAgent(buildinfo.UserAgent())}, opts...)
	return factory.NewLookup(cfg, opts...)
}
