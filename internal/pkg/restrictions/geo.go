package restrictions

import "strings"

// GeoRestrictions is the geo_restrictions block of an integration. Country
// codes are ISO 3166 alpha-2 and compared case-insensitively.
type GeoRestrictions struct {
	AllowedCountries []string `json:"allowed_countries"`
	BlockedCountries []string `json:"blocked_countries"`
}

// Allows reports whether a caller from country may pass. A blocked country
// is always denied, even when it is also on the allow list. An empty allow
// list lets every other country through.
func (g GeoRestrictions) Allows(country string) bool {
	country = strings.TrimSpace(country)
	if containsFold(g.BlockedCountries, country) {
		return false
	}
	if len(g.AllowedCountries) == 0 {
		return true
	}
	return containsFold(g.AllowedCountries, country)
}

func containsFold(values []string, v string) bool {
	for _, candidate := range values {
		if strings.EqualFold(strings.TrimSpace(candidate), v) {
			return true
		}
	}
	return false
}
