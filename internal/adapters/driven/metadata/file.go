package metadata

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/ausaccessfed/aaf-mdqt/internal/core/domain"
	"github.com/ausaccessfed/aaf-mdqt/internal/core/ports"
)

// FileOpener builds metadata responses from local files, such as documents
// saved by an earlier lookup.
type FileOpener struct {
	inspector ports.DocumentInspector
	logger    *zap.Logger
	clock     Clock
}

// NewFileOpener creates a FileOpener. Only the inspector, logger and clock
// options apply.
func NewFileOpener(opts ...ClientOption) *FileOpener {
	options := &clientOptions{}
	for _, opt := range opts {
		opt(options)
	}
	o := &FileOpener{
		inspector: options.inspector,
		logger:    options.logger,
		clock:     options.clock,
	}
	if o.inspector == nil {
		o.inspector = NewInspector()
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.clock == nil {
		o.clock = RealClock{}
	}
	return o
}

// Open reads the document at path. The identifier of a single-entity
// document is its entityID; an aggregate gets the aggregate identifier.
// Documents that are not SAML metadata fail with ErrMalformedDocument.
func (o *FileOpener) Open(path string) (*domain.MetadataResponse, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read metadata file: %w", err)
	}

	info, err := o.inspector.Inspect(body)
	if err != nil {
		var appErr *domain.AppError
		if errors.As(err, &appErr) {
			appErr.Identifier = path
		}
		o.logger.Debug("local file is not SAML metadata", zap.String("path", path), zap.Error(err))
		return nil, err
	}

	id := domain.AggregateIdentifier()
	if !info.Aggregate && len(info.EntityIDs) == 1 {
		id, err = domain.NewEntityIdentifier(info.EntityIDs[0], domain.SendLiteral)
		if err != nil {
			return nil, err
		}
	}

	return domain.NewMetadataResponse(domain.ResponseParams{
		Identifier:   id,
		SourceURL:    fileURL(path),
		Status:       http.StatusOK,
		Header:       http.Header{"Content-Type": {MediaType}},
		Body:         body,
		Document:     info,
		CacheOutcome: domain.CacheBypassed,
		TLSVerified:  true,
		FetchedAt:    o.clock.Now(),
	}), nil
}

func fileURL(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}

// Ensure FileOpener implements ports.DocumentOpener
var _ ports.DocumentOpener = (*FileOpener)(nil)
