package snapshot

import "strings"

// Predicate selects rows. Comparisons are on trimmed, case-folded values,
// matching how the legacy export was queried.
type Predicate func(Row) bool

// Eq matches rows whose column equals value.
func Eq(column, value string) Predicate {
	want := NormalizeKey(value)
	return func(r Row) bool {
		return NormalizeKey(r.Get(column)) == want
	}
}

// NotEq matches rows whose column differs from value.
func NotEq(column, value string) Predicate {
	return Not(Eq(column, value))
}

// In matches rows whose column is one of values.
func In(column string, values ...string) Predicate {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[NormalizeKey(v)] = struct{}{}
	}
	return func(r Row) bool {
		_, ok := set[NormalizeKey(r.Get(column))]
		return ok
	}
}

// Blank matches rows whose column is missing or empty.
func Blank(column string) Predicate {
	return func(r Row) bool {
		return r.Blank(column)
	}
}

// Present matches rows whose column has a value.
func Present(column string) Predicate {
	return Not(Blank(column))
}

// And matches when every predicate matches.
func And(preds ...Predicate) Predicate {
	return func(r Row) bool {
		for _, p := range preds {
			if !p(r) {
				return false
			}
		}
		return true
	}
}

// Or matches when any predicate matches.
func Or(preds ...Predicate) Predicate {
	return func(r Row) bool {
		for _, p := range preds {
			if p(r) {
				return true
			}
		}
		return false
	}
}

// Not inverts a predicate.
func Not(p Predicate) Predicate {
	return func(r Row) bool {
		return !p(r)
	}
}

// NormalizeKey folds a cell into its comparison form: trimmed, lower-cased,
// and with integral numbers in canonical form so "42" and "42.0" agree.
func NormalizeKey(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if whole, ok := strings.CutSuffix(v, ".0"); ok && isDigits(strings.TrimPrefix(whole, "-")) {
		return whole
	}
	return v
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Func adapts an arbitrary row test into a Predicate.
func Func(fn func(Row) bool) Predicate {
	return Predicate(fn)
}
