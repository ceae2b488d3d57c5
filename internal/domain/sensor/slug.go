package sensor

import (
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// UniqueIDPrefix is prepended to the slugified name to build a sensor id.
const UniqueIDPrefix = "sensor."

// SupportedDomains lists the entity domains a sensor may watch.
//
//nolint:gochecknoglobals // Read-only lookup table.
var SupportedDomains = []string{
	"binary_sensor",
	"climate",
	"cover",
	"fan",
	"light",
	"sensor",
	"switch",
}

// Domain returns the part of an entity id before the first dot.
func Domain(entityID string) string {
	domain, _, _ := strings.Cut(entityID, ".")

	return domain
}

// IsSupportedEntity reports whether the entity id is "<domain>.<object>" with a supported domain.
func IsSupportedEntity(entityID string) bool {
	domain, object, ok := strings.Cut(entityID, ".")
	if !ok || object == "" {
		return false
	}

	return slices.Contains(SupportedDomains, domain)
}

// DefaultName is the display name suggested for a sensor watching entityID.
func DefaultName(entityID string) string {
	return entityID + " Last Changed"
}

// UniqueID derives the sensor id from its display name.
func UniqueID(name string) string {
	return UniqueIDPrefix + Slugify(name)
}

// Slugify lowercases s, strips diacritics and collapses every run of
// characters outside [a-z0-9] into a single underscore.
func Slugify(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var (
		b          strings.Builder
		underscore bool
	)

	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)

			underscore = false

			continue
		}

		if !underscore && b.Len() > 0 {
			b.WriteByte('_')

			underscore = true
		}
	}

	slug := strings.TrimSuffix(b.String(), "_")
	if slug == "" {
		return StateUnknown
	}

	return slug
}
