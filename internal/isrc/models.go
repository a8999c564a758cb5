// Package isrc issues and validates International Standard Recording Codes.
// A code is issued exactly once per recording before anything is submitted
// externally; (registrant, year, designation) is globally unique.
package isrc

import (
	"fmt"
	"regexp"
	"time"

	id "tunecast/pkg/domain"
)

// Status is the lifecycle of an issued code.
type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
)

// MaxDesignation is the largest designation number a registrant can issue in
// one calendar year; the counter resets to 1 every year.
const MaxDesignation = 99999

// Code is one issued ISRC. Immutable after creation except Status and
// ClearedForDistribution.
type Code struct {
	Code                    string
	CountryCode             string
	RegistrantCode          string
	Year                    int // two-digit
	DesignationNumber       int
	ReleaseID               id.ReleaseID
	Status                  Status
	ClearedForDistribution  bool
	TerritorialRestrictions []string
	CreatedAt               time.Time
}

// codePattern is COUNTRY(2 letters)-REGISTRANT(3 alnum)-YEAR(2 digits)-DESIGNATION(5 digits).
var codePattern = regexp.MustCompile(`^[A-Z]{2}-[A-Z0-9]{3}-[0-9]{2}-[0-9]{5}$`)

var registrantPattern = regexp.MustCompile(`^[A-Z0-9]{3}$`)

// FormatCode renders the canonical dashed form.
func FormatCode(country, registrant string, year, designation int) string {
	return fmt.Sprintf("%s-%s-%02d-%05d", country, registrant, year, designation)
}

// ValidFormat reports whether code matches the canonical ISRC pattern.
// Pure read; usable by other components without side effects.
func ValidFormat(code string) bool {
	return codePattern.MatchString(code)
}

// ValidRegistrant reports whether a registrant code is exactly 3 uppercase
// alphanumerics, matching what codePattern accepts in a rendered code.
func ValidRegistrant(registrant string) bool {
	return registrantPattern.MatchString(registrant)
}
