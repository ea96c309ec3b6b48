// Package similarity provides the in-process string comparison routines the
// scorer is built on. Trigram matches the semantics of Postgres pg_trgm so
// scores stay stable if comparison ever moves into the database.
package similarity

import "strings"

// Trigram returns the trigram similarity of two strings in [0,1]: the ratio
// of shared three-character substrings to the union, computed over the
// pg_trgm padding convention (two leading spaces, one trailing).
func Trigram(a, b string) float64 {
	if a == b {
		if a == "" {
			return 0
		}
		return 1.0
	}

	ta := trigramSet(a)
	tb := trigramSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	shared := 0
	for t := range ta {
		if tb[t] {
			shared++
		}
	}

	union := len(ta) + len(tb) - shared
	return float64(shared) / float64(union)
}

func trigramSet(s string) map[string]bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return nil
	}

	set := make(map[string]bool)
	for _, word := range strings.Fields(s) {
		padded := "  " + word + " "
		for i := 0; i+3 <= len(padded); i++ {
			set[padded[i:i+3]] = true
		}
	}
	return set
}

// JaroWinkler returns the Jaro-Winkler similarity of two strings, boosting
// pairs that share a common prefix.
func JaroWinkler(a, b string) float64 {
	if a == b {
		return 1.0
	}

	jaro := Jaro(a, b)

	prefixLen := 0
	maxPrefix := 4
	for i := 0; i < len(a) && i < len(b) && i < maxPrefix; i++ {
		if a[i] == b[i] {
			prefixLen++
		} else {
			break
		}
	}

	scalingFactor := 0.1
	return jaro + float64(prefixLen)*scalingFactor*(1.0-jaro)
}

// Jaro returns the Jaro similarity of two strings.
func Jaro(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	matchDist := max(len(a), len(b))/2 - 1
	if matchDist < 0 {
		matchDist = 0
	}

	aMatches := make([]bool, len(a))
	bMatches := make([]bool, len(b))

	matches := 0
	transpositions := 0

	for i := 0; i < len(a); i++ {
		start := max(0, i-matchDist)
		end := min(len(b), i+matchDist+1)

		for j := start; j < end; j++ {
			if bMatches[j] || a[i] != b[j] {
				continue
			}
			aMatches[i] = true
			bMatches[j] = true
			matches++
			break
		}
	}

	if matches == 0 {
		return 0.0
	}

	k := 0
	for i := 0; i < len(a); i++ {
		if !aMatches[i] {
			continue
		}
		for !bMatches[k] {
			k++
		}
		if a[i] != b[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	t := float64(transpositions) / 2

	return (m/float64(len(a)) + m/float64(len(b)) + (m-t)/m) / 3
}

// BestPairwise returns the highest similarity across the cross product of two
// string sets, using fn as the comparator. Empty sets score 0.
func BestPairwise(as, bs []string, fn func(string, string) float64) float64 {
	best := 0.0
	for _, a := range as {
		for _, b := range bs {
			if s := fn(a, b); s > best {
				best = s
			}
			if best >= 1.0 {
				return 1.0
			}
		}
	}
	return best
}

// Overlap reports whether two string sets share at least one element.
func Overlap(as, bs []string) bool {
	if len(as) == 0 || len(bs) == 0 {
		return false
	}
	set := make(map[string]bool, len(as))
	for _, a := range as {
		set[a] = true
	}
	for _, b := range bs {
		if set[b] {
			return true
		}
	}
	return false
}
