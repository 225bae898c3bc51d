package filter

import (
	"strings"
)

// CanonicalObjectType maps common synonyms (plural/singular, alternate
// spellings) of an object-type name to one canonical singular token.
// Unknown names pass through lowercased.
func CanonicalObjectType(objectType string) string {
	switch strings.ToLower(strings.TrimSpace(objectType)) {
	case "deal", "deals":
		return "deal"
	case "person", "persons", "people":
		return "person"
	case "organization", "organizations", "organisation", "organisations", "org", "orgs":
		return "organization"
	case "activity", "activities":
		return "activity"
	case "product", "products":
		return "product"
	default:
		return strings.ToLower(strings.TrimSpace(objectType))
	}
}

// filterTypeFor maps a canonical object type to the saved-filter type
// token the CRM expects on filter creation.
func filterTypeFor(objectType string) string {
	switch CanonicalObjectType(objectType) {
	case "deal":
		return "deals"
	case "person":
		return "people"
	case "organization":
		return "org"
	case "activity":
		return "activity"
	case "product":
		return "products"
	default:
		return CanonicalObjectType(objectType)
	}
}
