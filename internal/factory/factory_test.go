//go:build unit

package factory

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/ausaccessfed/aaf-mdqt/internal/config"
	"github.com/ausaccessfed/aaf-mdqt/internal/core/domain"
	"github.com/ausaccessfed/aaf-mdqt/internal/core/service"
	fixtures "github.com/ausaccessfed/aaf-mdqt/testfixtures/metadata"
)

const entityID = "https://idp.example.org/idp/shibboleth"

func TestNewLookup_RejectsBadConfig(t *testing.T) {
	if _, err := NewLookup(nil); err == nil {
		t.Error("nil config should be rejected")
	}

	if _, err := NewLookup(config.Default()); !errors.Is(err, domain.ErrConfigInvalid) {
		t.Errorf("missing service: error = %v, want ErrConfigInvalid", err)
	}

	cfg := config.Default()
	cfg.Service = "https://mdq.example.org"
	cfg.TrustAnchors = []string{filepath.Join(t.TempDir(), "absent.pem")}
	if _, err := NewLookup(cfg); !errors.Is(err, domain.ErrBadCertificate) {
		t.Errorf("missing anchor: error = %v, want ErrBadCertificate", err)
	}
}

func TestNewLookup_WiresCacheAndVerifier(t *testing.T) {
	signer := fixtures.New(t)
	srv := fixtures.NewServer(t)
	srv.Handle("/entities/"+url.QueryEscape(entityID), fixtures.Response{
		Header: map[string][]string{"Cache-Control": {"max-age=300"}},
		Body:   signer.MustSign(fixtures.EntityMetadata(entityID)),
	})

	cfg := config.Default()
	cfg.Service = srv.URL
	cfg.Cache.Backend = "file"
	cfg.Cache.Path = t.TempDir()
	cfg.TrustAnchors = []string{signer.WriteCertificate(t.TempDir())}
	cfg.UserAgent = "federation-sync/2.0"

	var (
		mu        sync.Mutex
		decisions []domain.CacheOutcome
	)
	lookup, err := NewLookup(cfg,
		WithLogger(zaptest.NewLogger(t)),
		WithUserAgent("ignored/1.0"),
		WithOnCacheDecision(func(key string, outcome domain.CacheOutcome) {
			mu.Lock()
			defer mu.Unlock()
			decisions = append(decisions, outcome)
		}),
	)
	if err != nil {
		t.Fatalf("NewLookup() error = %v", err)
	}
	defer lookup.Close()

	for i := 0; i < 2; i++ {
		resp, err := lookup.Get(context.Background(), entityID, service.RequestOptions{})
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if !resp.Verified() {
			t.Errorf("Get() #%d state = %s, want verified", i, resp.Verification().State)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(decisions) != 2 || decisions[0] != domain.CacheMiss || decisions[1] != domain.CacheHit {
		t.Errorf("cache decisions = %v, want [miss hit]", decisions)
	}
	if got := srv.LastRequest().Header.Get("User-Agent"); got != "federation-sync/2.0" {
		t.Errorf("User-Agent = %q, want the configured one", got)
	}
	if len(lookup.Anchors()) != 1 {
		t.Errorf("Anchors() = %d, want 1", len(lookup.Anchors()))
	}
}

func TestNewLocalLookup_NeedsNoService(t *testing.T) {
	signer := fixtures.New(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "idp.xml")
	if err := os.WriteFile(path, signer.MustSign(fixtures.EntityMetadata(entityID)), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Cache.Backend = "memory"
	cfg.TrustAnchors = []string{string(signer.CertificatePEM())}

	lookup, err := NewLocalLookup(cfg)
	if err != nil {
		t.Fatalf("NewLocalLookup() error = %v", err)
	}
	defer lookup.Close()

	resp, err := lookup.Open(path, service.RequestOptions{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if !resp.Verified() {
		t.Errorf("state = %s, want verified", resp.Verification().State)
	}
	if removed, err := lookup.Tidy(context.Background()); err != nil || removed != 0 {
		t.Errorf("Tidy() = %d, %v", removed, err)
	}

	cfg.Cache.Backend = "tape"
	if _, err := NewLocalLookup(cfg); !errors.Is(err, domain.ErrConfigInvalid) {
		t.Errorf("bad backend: error = %v, want ErrConfigInvalid", err)
	}
}
