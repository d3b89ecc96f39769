package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatVersion identifies the revision of the source descriptor format.
// Attribute names and defaults differ between revisions, so adapters are
// registered against a range of versions.
type FormatVersion int

// Known descriptor format revisions.
const (
	// FormatKeras1 covers Keras 1.x layer configurations.
	FormatKeras1 FormatVersion = 1
	// FormatKeras2 covers Keras 2.x layer configurations.
	FormatKeras2 FormatVersion = 2
)

// LatestFormat is the newest revision the engine understands.
const LatestFormat = FormatKeras2

// String returns the canonical tag, e.g. "keras2".
func (v FormatVersion) String() string { return "keras" + strconv.Itoa(int(v)) }

// ParseFormatVersion accepts "keras1", "keras2", a bare major number, or a
// full Keras version string such as "2.4.0".
func ParseFormatVersion(s string) (FormatVersion, error) {
	raw := strings.TrimSpace(strings.ToLower(s))
	raw = strings.TrimPrefix(raw, "keras")
	raw = strings.TrimPrefix(raw, "v")
	major, _, _ := strings.Cut(raw, ".")
	n, err := strconv.Atoi(major)
	if err != nil {
		return 0, fmt.Errorf("unrecognized format version %q", s)
	}
	v := FormatVersion(n)
	if v < FormatKeras1 || v > LatestFormat {
		return 0, fmt.Errorf("unsupported format version %q", s)
	}
	return v, nil
}

// VersionRange is an inclusive range of format versions.
type VersionRange struct {
	Min FormatVersion
	Max FormatVersion
}

// AllVersions spans every known format revision.
var AllVersions = VersionRange{Min: FormatKeras1, Max: LatestFormat}

// OnlyVersion returns a range holding exactly v.
func OnlyVersion(v FormatVersion) VersionRange { return VersionRange{Min: v, Max: v} }

// Contains reports whether v falls inside the range.
func (r VersionRange) Contains(v FormatVersion) bool { return v >= r.Min && v <= r.Max }

// Overlaps reports whether the two ranges share a version.
func (r VersionRange) Overlaps(o VersionRange) bool { return r.Min <= o.Max && o.Min <= r.Max }

// Valid reports whether Min does not exceed Max.
func (r VersionRange) Valid() bool { return r.Min > 0 && r.Min <= r.Max }

// String renders the range as "keras1..keras2".
func (r VersionRange) String() string {
	if r.Min == r.Max {
		return r.Min.String()
	}
	return r.Min.String() + ".." + r.Max.String()
}
