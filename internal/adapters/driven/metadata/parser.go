package metadata

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"github.com/crewjam/saml"

	"github.com/ausaccessfed/aaf-mdqt/internal/core/domain"
	"github.com/ausaccessfed/aaf-mdqt/internal/core/ports"
)

// Root element names of SAML metadata documents.
const (
	entitiesDescriptorTag = "EntitiesDescriptor"
	entityDescriptorTag   = "EntityDescriptor"
)

// Inspector extracts structural facts from SAML metadata using crewjam/saml.
// It does not validate the document against the metadata schema.
type Inspector struct{}

// NewInspector creates a document inspector.
func NewInspector() *Inspector {
	return &Inspector{}
}

// Inspect reports whether body is an aggregate, the entityIDs it holds, and
// the root validUntil.
func (i *Inspector) Inspect(body []byte) (domain.DocumentInfo, error) {
	root, err := rootElement(body)
	if err != nil {
		return domain.DocumentInfo{}, malformed(err)
	}

	switch root.Local {
	case entitiesDescriptorTag:
		var entities saml.EntitiesDescriptor
		if err := xml.Unmarshal(body, &entities); err != nil {
			return domain.DocumentInfo{}, malformed(err)
		}
		return domain.DocumentInfo{
			Aggregate:  true,
			EntityIDs:  collectEntityIDs(&entities, nil),
			ValidUntil: entities.ValidUntil,
		}, nil

	case entityDescriptorTag:
		var entity saml.EntityDescriptor
		if err := xml.Unmarshal(body, &entity); err != nil {
			return domain.DocumentInfo{}, malformed(err)
		}
		info := domain.DocumentInfo{EntityIDs: []string{entity.EntityID}}
		if !entity.ValidUntil.IsZero() {
			validUntil := entity.ValidUntil
			info.ValidUntil = &validUntil
		}
		return info, nil

	default:
		return domain.DocumentInfo{}, malformed(fmt.Errorf("unexpected root element <%s>", root.Local))
	}
}

// collectEntityIDs lists direct children before descending into nested
// EntitiesDescriptors.
func collectEntityIDs(entities *saml.EntitiesDescriptor, ids []string) []string {
	for _, e := range entities.EntityDescriptors {
		ids = append(ids, e.EntityID)
	}
	for i := range entities.EntitiesDescriptors {
		ids = collectEntityIDs(&entities.EntitiesDescriptors[i], ids)
	}
	return ids
}

// rootElement returns the name of the first element in data.
func rootElement(data []byte) (xml.Name, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return xml.Name{}, errors.New("no root element")
		}
		if err != nil {
			return xml.Name{}, err
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name, nil
		}
	}
}

func malformed(cause error) *domain.AppError {
	return &domain.AppError{
		Code:    domain.ErrCodeMalformedDocument,
		Message: "malformed metadata document",
		Cause:   cause,
	}
}

// Ensure Inspector implements ports.DocumentInspector
var _ ports.DocumentInspector = (*Inspector)(nil)
