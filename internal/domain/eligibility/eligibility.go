// Package eligibility decides whether a submitter can be served at all:
// they must live inside the clinic's service area and be an adult.
package eligibility

import (
	"strings"
	"time"
)

// DefaultPrefixes covers Arizona (85xxx, 86xxx).
var DefaultPrefixes = []string{"85", "86"}

// AdultAge is the age at which a submitter stops being a minor.
const AdultAge = 18

// Policy holds the service-area prefix whitelist. It is read-only after
// construction.
type Policy struct {
	prefixes []string
}

// NewPolicy builds a policy from zip prefixes. Blank entries are ignored and
// an empty list falls back to DefaultPrefixes.
func NewPolicy(prefixes []string) *Policy {
	p := &Policy{}
	for _, prefix := range prefixes {
		if prefix = strings.TrimSpace(prefix); prefix != "" {
			p.prefixes = append(p.prefixes, prefix)
		}
	}
	if len(p.prefixes) == 0 {
		p.prefixes = append(p.prefixes, DefaultPrefixes...)
	}
	return p
}

// Prefixes returns a copy of the configured prefixes.
func (p *Policy) Prefixes() []string {
	return append([]string(nil), p.prefixes...)
}

// InServiceArea reports whether zip is a well-formed five digit code that
// starts with a configured prefix. Anything malformed is out of area.
func (p *Policy) InServiceArea(zip string) bool {
	if len(zip) != 5 {
		return false
	}
	for i := 0; i < len(zip); i++ {
		if zip[i] < '0' || zip[i] > '9' {
			return false
		}
	}
	for _, prefix := range p.prefixes {
		if strings.HasPrefix(zip, prefix) {
			return true
		}
	}
	return false
}

// IsMinor reports whether the submitter is younger than AdultAge at the
// instant at. A date of birth wins over a stated age; with neither the
// submitter is treated as an adult.
func IsMinor(dob *time.Time, age *int, at time.Time) bool {
	if dob != nil {
		return AgeAt(*dob, at) < AdultAge
	}
	if age != nil {
		return *age < AdultAge
	}
	return false
}

// AgeAt returns the number of full years between dob and at. Both are
// compared as calendar dates in UTC.
func AgeAt(dob, at time.Time) int {
	dob, at = dob.UTC(), at.UTC()
	years := at.Year() - dob.Year()
	if at.Month() < dob.Month() || (at.Month() == dob.Month() && at.Day() < dob.Day()) {
		years--
	}
	return years
}
