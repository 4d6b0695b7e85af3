// =============================================================================
// chms-migrate - Value Mapping
// =============================================================================
//
// Legacy exports store enumerations as free text ("M", "Male", "Cell",
// "Mobile Phone"...). Each ValueMap folds those spellings into the single
// value the interchange format expects.
//
// LOOKUP:
//   Keys are compared trimmed and case-insensitive. A miss returns the
//   map's Default and reports false so the caller can warn.
//
// CUSTOMIZATION:
//   The YAML config may add or replace entries per map (see
//   config.MappingConfig). Entries are merged over the defaults below.
//
// =============================================================================

package translate

import (
	"regexp"
	"strings"
)

// Map names.
const (
	MapGender          = "gender"
	MapMaritalStatus   = "marital_status"
	MapFamilyRole      = "family_role"
	MapInactiveStatus  = "inactive_status"
	MapAddressType     = "address_type"
	MapPhoneType       = "phone_type"
	MapCurrencyType    = "currency_type"
	MapBatchStatus     = "batch_status"
	MapPledgeFrequency = "pledge_frequency"
	MapGroupRole       = "group_role"
)

// ValueMap maps legacy spellings to one canonical value.
type ValueMap struct {
	Values  map[string]string
	Default string
}

// Lookup returns the canonical value for v. Blank input returns the default
// and true, since a missing value is not a misspelling.
func (m ValueMap) Lookup(v string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(v))
	if key == "" {
		return m.Default, true
	}
	if out, ok := m.Values[key]; ok {
		return out, true
	}
	return m.Default, false
}

// ValueMaps holds every map by name.
type ValueMaps map[string]ValueMap

// Get returns the named map, or an empty one.
func (vm ValueMaps) Get(name string) ValueMap {
	return vm[name]
}

// Merge overlays entries onto the named map. A non-empty def replaces the
// default value. Keys are folded the same way Lookup folds them.
func (vm ValueMaps) Merge(name string, entries map[string]string, def string) {
	m := vm[name]
	values := make(map[string]string, len(m.Values)+len(entries))
	for k, v := range m.Values {
		values[k] = v
	}
	for k, v := range entries {
		values[strings.ToLower(strings.TrimSpace(k))] = v
	}
	m.Values = values
	if def != "" {
		m.Default = def
	}
	vm[name] = m
}

// DefaultValueMaps returns the built-in maps.
func DefaultValueMaps() ValueMaps {
	return ValueMaps{
		MapGender: {
			Values:  map[string]string{"m": "Male", "male": "Male", "f": "Female", "female": "Female"},
			Default: "Unknown",
		},
		MapMaritalStatus: {
			Values: map[string]string{
				"m": "Married", "married": "Married",
				"s": "Single", "single": "Single",
				"d": "Divorced", "divorced": "Divorced",
				"w": "Widowed", "widowed": "Widowed", "widow": "Widowed", "widower": "Widowed",
			},
			Default: "Unknown",
		},
		MapFamilyRole: {
			Values: map[string]string{
				"head": "Adult", "spouse": "Adult", "visitor": "Adult",
				"child": "Child",
			},
			Default: "Child",
		},
		MapInactiveStatus: {
			Values: map[string]string{
				"inactive": "Inactive", "dropped": "Dropped", "moved": "Moved",
				"deceased": "Deceased", "removed": "Removed",
			},
		},
		MapAddressType: {
			Values: map[string]string{
				"home": "Home", "primary": "Home", "mailing": "Home",
				"work": "Work", "business": "Work",
				"previous": "Previous", "old": "Previous",
			},
			Default: "Home",
		},
		MapPhoneType: {
			Values: map[string]string{
				"home": "Home", "work": "Work", "business": "Work",
				"cell": "Mobile", "mobile": "Mobile", "mobile phone": "Mobile",
				"fax": "Fax",
			},
			Default: "Other",
		},
		MapCurrencyType: {
			Values: map[string]string{
				"cash": "Cash", "check": "Check", "cheque": "Check",
				"credit card": "Credit Card", "card": "Credit Card", "visa": "Credit Card", "mastercard": "Credit Card",
				"ach": "ACH", "eft": "ACH", "bank transfer": "ACH",
				"online": "Online", "non-cash": "Non-Cash", "noncash": "Non-Cash",
			},
			Default: "Unknown",
		},
		MapBatchStatus: {
			Values:  map[string]string{"open": "Open", "pending": "Pending", "closed": "Closed", "posted": "Closed"},
			Default: "Closed",
		},
		MapPledgeFrequency: {
			Values: map[string]string{
				"one time": "One Time", "onetime": "One Time", "once": "One Time",
				"weekly": "Weekly", "biweekly": "Bi-Weekly", "bi-weekly": "Bi-Weekly",
				"twice monthly": "Twice a Month", "monthly": "Monthly",
				"quarterly": "Quarterly", "twice yearly": "Twice a Year", "yearly": "Yearly", "annually": "Yearly",
			},
			Default: "One Time",
		},
		MapGroupRole: {
			Values: map[string]string{
				"leader": "Leader", "co-leader": "Leader", "coach": "Leader", "teacher": "Leader",
				"member": "Member", "participant": "Member", "student": "Member",
			},
			Default: "Member",
		},
	}
}

// =============================================================================
// STRING HELPERS
// =============================================================================

var (
	nonDigits       = regexp.MustCompile(`\D+`)
	runsOfSpace     = regexp.MustCompile(`\s+`)
	nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9]`)
)

// DigitsOnly keeps only the digits of v.
//
// EXAMPLE:
//
//	"(555) 123-4567 x9" → "55512345679"
func DigitsOnly(v string) string {
	return nonDigits.ReplaceAllString(v, "")
}

// Alphanumeric removes every character that is not an ASCII letter or digit.
// Attribute keys are built this way.
func Alphanumeric(v string) string {
	return nonAlphanumeric.ReplaceAllString(v, "")
}

// NormalizeWhitespace collapses runs of whitespace to one space.
func NormalizeWhitespace(v string) string {
	return strings.TrimSpace(runsOfSpace.ReplaceAllString(v, " "))
}

func firstNonBlank(vs ...string) string {
	for _, v := range vs {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
