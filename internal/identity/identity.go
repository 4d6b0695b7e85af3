// =============================================================================
// chms-migrate - Identity Engine
// =============================================================================
//
// Most legacy tables have no surrogate key the downstream system can use, so
// every canonical record Id that is not copied from the source is derived
// from natural-key strings.
//
// DERIVATION:
//   DeriveID concatenates its parts with no separator, hashes the UTF-8 bytes
//   with MD5, reads the first four bytes as a little-endian int32 and takes
//   the absolute value. The mapping is one-way and collision-possible.
//
//   Part ORDER is part of the contract. Every caller below documents the
//   order it uses; changing it changes every Id in the package.
//
// ID SPACE:
//   - Natural person ids (IndividualId) sit at the low end of the 31-bit space.
//   - Business-as-person ids are INT32_MAX - household_id.
//   - Synthetic batch and root-group ids live in the 900000000 block.
//
//   Nothing enforces that natural person ids stay below
//   INT32_MAX - max(household_id). That is an operating assumption of the
//   source data.
//
// COLLISIONS:
//   Only attendance ids are checked (see Allocator). Accounts, groups,
//   campuses, visitor families and notes silently merge on a hash collision.
//
// =============================================================================

package identity

import (
	"crypto/md5"
	"encoding/binary"
	"math"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// ID SPACE CONSTANTS
// =============================================================================

// SyntheticBase is the offset of the synthetic id block shared by
// received-date batches and per-group-type root groups.
const SyntheticBase = 9_0000_0000

// MaxID is the largest id the downstream system accepts.
const MaxID = math.MaxInt32

// =============================================================================
// DERIVATION
// =============================================================================

// DeriveID returns the deterministic 31-bit id for the given natural key parts.
func DeriveID(parts ...string) int {
	sum := md5.Sum([]byte(strings.Join(parts, "")))
	v := int32(binary.LittleEndian.Uint32(sum[:4]))
	if v == math.MinInt32 {
		// |MinInt32| does not fit; saturate instead of wrapping negative.
		return MaxID
	}
	if v < 0 {
		v = -v
	}
	return int(v)
}

// BusinessID returns the person-space id used for a company household.
func BusinessID(householdID int) int {
	return MaxID - householdID
}

// SyntheticBatchID returns the batch id for transactions received on date
// that carry no source batch. Batches and transactions must both use this.
func SyntheticBatchID(date time.Time) int {
	ymd := date.Year()*10000 + int(date.Month())*100 + date.Day()
	return SyntheticBase + ymd
}

// RootGroupID returns the synthetic parent group shared by every top-level
// group of the given group type.
func RootGroupID(groupTypeID int) int {
	return SyntheticBase + groupTypeID
}

// CampusID derives a campus id from its name.
func CampusID(name string) int {
	return DeriveID(name)
}

// =============================================================================
// FINANCIAL ACCOUNT HIERARCHY
// =============================================================================

// Flag renders a tax-deductible flag the way it is hashed.
func Flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// AccountIDs derives the account id for a fund or sub-fund, and the parent
// (fund-level) id when subFund is set.
//
// PART ORDER:
//   - fund only: [fund, flag]
//   - sub-fund:  [fund, subFund, flag]; parent [fund, flag]
//
// The accounts, transactions and pledges stages all call this so a detail's
// AccountId is always an Id the accounts stage emitted.
func AccountIDs(fund, subFund string, taxDeductible bool) (id int, parent *int) {
	fund = strings.TrimSpace(fund)
	subFund = strings.TrimSpace(subFund)
	flag := Flag(taxDeductible)

	if subFund == "" {
		return DeriveID(fund, flag), nil
	}

	p := DeriveID(fund, flag)
	return DeriveID(fund, subFund, flag), &p
}

// =============================================================================
// GROUP REFERENCES
// =============================================================================

// GroupID returns the id of a group that has no native identifier.
//
// PART ORDER: [name, parentGroupID]
//
// The parent is the effective parent, i.e. RootGroupID(type) when the source
// row names none, so same-named groups under different types stay apart.
func GroupID(name string, parentGroupID int) int {
	return DeriveID(strings.TrimSpace(name), strconv.Itoa(parentGroupID))
}
