// Package agency loads the investigator's agency profile used to brand reports.
package agency

import "strings"

// Profile is the per-user agency branding and contact record.
type Profile struct {
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	AgencyName    string `json:"agency_name"`
	AgencyAddress string `json:"agency_address"`
	AgencyPhone   string `json:"agency_phone"`
	AgencyEmail   string `json:"agency_email"`
	AgencyWebsite string `json:"agency_website"`
	AgencyLogoURL string `json:"agency_logo_url"`
}

// RepresentativeName joins first and last name.
func (p Profile) RepresentativeName() string {
	return strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
}

// Optional holds a profile that is either fully present or absent.
type Optional struct {
	profile Profile
	present bool
}

// Some wraps a loaded profile.
func Some(p Profile) Optional {
	return Optional{profile: p, present: true}
}

// None is the "no profile yet" value.
func None() Optional {
	return Optional{}
}

// Get returns the profile and whether it is present.
func (o Optional) Get() (Profile, bool) {
	return o.profile, o.present
}

// Present reports whether a profile was loaded.
func (o Optional) Present() bool {
	return o.present
}

// cached is the cache representation of Optional.
type cached struct {
	Present bool    `json:"present"`
	Profile Profile `json:"profile"`
}
