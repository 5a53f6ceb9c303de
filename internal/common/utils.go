package common

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// RoundKey rounds v to two decimals and formats it for use in cache keys.
func RoundKey(v float64) string {
	r := math.Round(v*100) / 100
	if r == 0 {
		// avoid "-0.00" and "0.00" producing different keys
		r = 0
	}
	return strconv.FormatFloat(r, 'f', 2, 64)
}

// SortedJoin returns the items sorted and joined with sep, leaving the input untouched.
func SortedJoin(items []string, sep string) string {
	cp := append([]string(nil), items...)
	sort.Strings(cp)
	return strings.Join(cp, sep)
}

// HasAny returns true if s contains any of the substrings.
func HasAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
