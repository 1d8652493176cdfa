package domain

import (
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"regexp"
	"strings"
)

const (
	// HashPrefix is the canonical prefix of a hashed entity identifier.
	HashPrefix = "{sha1}"

	// altHashPrefix is accepted on input and rewritten to HashPrefix.
	altHashPrefix = "[sha1]"

	// ListingPath is the request path for the aggregate of all entities.
	ListingPath = "entities"
)

var sha1Hex = regexp.MustCompile(`^[0-9a-f]{40}$`)

// IdentifierPolicy controls how literal (unhashed) identifiers are sent.
// Whether an MDQ service expects clients to pre-hash literal URIs depends on
// the deployment, so the choice is explicit.
type IdentifierPolicy int

const (
	// SendLiteral percent-encodes literal URIs and sends them as-is.
	SendLiteral IdentifierPolicy = iota

	// HashLiteral transforms literal URIs into {sha1} form locally.
	HashLiteral
)

// EntityIdentifier is a user-supplied identifier together with its canonical
// lookup key. The zero value is the aggregate request.
type EntityIdentifier struct {
	raw       string
	canonical string
	hashed    bool
}

// NewEntityIdentifier canonicalizes raw under the given policy.
// It fails with ErrMalformedHash before any request can be built.
func NewEntityIdentifier(raw string, policy IdentifierPolicy) (EntityIdentifier, error) {
	trimmed := strings.TrimSpace(raw)
	if policy == HashLiteral && trimmed != "" && !hasHashPrefix(decodeCanonical(trimmed)) {
		trimmed = HashIdentifier(decodeCanonical(trimmed))
	}
	canonical, err := Canonicalize(trimmed)
	if err != nil {
		return EntityIdentifier{}, err
	}
	return EntityIdentifier{
		raw:       raw,
		canonical: canonical,
		hashed:    strings.HasPrefix(canonical, url.QueryEscape(HashPrefix)),
	}, nil
}

// AggregateIdentifier returns the identifier for the full aggregate.
func AggregateIdentifier() EntityIdentifier {
	return EntityIdentifier{}
}

// Raw returns the identifier as the caller supplied it.
func (id EntityIdentifier) Raw() string { return id.raw }

// Canonical returns the percent-encoded lookup key. Empty for the aggregate.
func (id EntityIdentifier) Canonical() string { return id.canonical }

// IsAggregate reports whether the identifier requests the full aggregate.
func (id EntityIdentifier) IsAggregate() bool { return id.canonical == "" }

// IsHashed reports whether the canonical key is in {sha1} form.
func (id EntityIdentifier) IsHashed() bool { return id.hashed }

// RequestPath returns the path relative to the service base URL.
func (id EntityIdentifier) RequestPath() string {
	if id.canonical == "" {
		return ListingPath
	}
	return ListingPath + "/" + id.canonical
}

// String returns the raw identifier, or "(all)" for the aggregate.
func (id EntityIdentifier) String() string {
	if id.canonical == "" {
		return "(all)"
	}
	if id.raw != "" {
		return id.raw
	}
	return id.canonical
}

// Canonicalize normalizes an identifier into a URL-safe lookup key.
//
// The empty string maps to "" (aggregate request). Identifiers starting with
// {sha1} or [sha1] (any case) must be followed by exactly 40 hex characters;
// they are lower-cased and rewritten to the {sha1} prefix. Anything else is
// trimmed and percent-encoded as a literal URI. Input that is already in
// canonical form is returned unchanged.
func Canonicalize(id string) (string, error) {
	id = decodeCanonical(strings.TrimSpace(id))
	if id == "" {
		return "", nil
	}
	if hasHashPrefix(id) {
		normalized := strings.ToLower(id)
		normalized = HashPrefix + normalized[len(HashPrefix):]
		if !sha1Hex.MatchString(normalized[len(HashPrefix):]) {
			return "", MalformedHashError(id)
		}
		return escapeSegment(normalized), nil
	}
	return escapeSegment(id), nil
}

// ValidSHA1Identifier reports whether id is a well-formed hashed identifier.
func ValidSHA1Identifier(id string) bool {
	id = strings.TrimSpace(id)
	return hasHashPrefix(id) && sha1Hex.MatchString(strings.ToLower(id[len(HashPrefix):]))
}

// HashIdentifier returns the {sha1} form of a literal entity identifier.
func HashIdentifier(entityID string) string {
	sum := sha1.Sum([]byte(entityID))
	return HashPrefix + hex.EncodeToString(sum[:])
}

func hasHashPrefix(id string) bool {
	if len(id) < len(HashPrefix) {
		return false
	}
	prefix := strings.ToLower(id[:len(HashPrefix)])
	return prefix == HashPrefix || prefix == altHashPrefix
}

// escapeSegment percent-encodes s for use as a single path segment.
func escapeSegment(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// decodeCanonical returns the decoded form of s when s is already a
// canonical key, and s unchanged otherwise.
func decodeCanonical(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	decoded, err := url.PathUnescape(s)
	if err != nil {
		return s
	}
	if escapeSegment(decoded) != s {
		return s
	}
	return decoded
}
