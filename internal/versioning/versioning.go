// Package versioning encodes content versions into block labels.
//
// A versioned label has the form base + Separator + version. Labels without
// the separator are unversioned (legacy or first-ever creation).
package versioning

import (
	"fmt"
	"strings"
	"time"
)

const (
	// Separator splits a label into base name and version tag.
	Separator = "__v__"
	// Initial is the implicit version of a block that was never rotated.
	Initial = "initial"

	datestampLayout = "20060102"
	hashPrefixLen   = 8
)

// Label is a decoded block label.
type Label struct {
	Base    string
	Version string
	// Versioned is false when the label carried no separator.
	Versioned bool
}

// VersionOrInitial returns Version, or Initial for unversioned labels.
func (l Label) VersionOrInitial() string {
	if !l.Versioned {
		return Initial
	}
	return l.Version
}

// String re-encodes the label.
func (l Label) String() string {
	if !l.Versioned {
		return l.Base
	}
	return l.Base + Separator + l.Version
}

// Parse splits label on the last separator occurrence.
func Parse(label string) Label {
	idx := strings.LastIndex(label, Separator)
	if idx < 0 {
		return Label{Base: label}
	}
	return Label{
		Base:      label[:idx],
		Version:   label[idx+len(Separator):],
		Versioned: true,
	}
}

// BaseName is shorthand for Parse(label).Base.
func BaseName(label string) string {
	return Parse(label).Base
}

// BuildLabel encodes base and version. The first creation of a block at the
// initial version keeps the bare base name; every other combination carries
// the suffix, including an explicit pin back to Initial.
func BuildLabel(base, version string, isFirstVersion bool) string {
	if isFirstVersion && version == Initial {
		return base
	}
	return base + Separator + version
}

// NextVersion derives a sortable version tag from a content hash using the
// current UTC date.
func NextVersion(contentHash string) string {
	return NextVersionAt(contentHash, time.Now().UTC())
}

// NextVersionAt is NextVersion with an explicit clock.
func NextVersionAt(contentHash string, at time.Time) string {
	prefix := contentHash
	if len(prefix) > hashPrefixLen {
		prefix = prefix[:hashPrefixLen]
	}
	return fmt.Sprintf("%s-%s", at.Format(datestampLayout), prefix)
}

// SanitizeUserVersion makes a user supplied version tag label safe:
// lower-cased, trimmed, and every rune outside [a-z0-9.-] replaced by '-'.
func SanitizeUserVersion(input string) string {
	trimmed := strings.ToLower(strings.TrimSpace(input))
	var b strings.Builder
	b.Grow(len(trimmed))
	for _, r := range trimmed {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}
