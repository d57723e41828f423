package protocol

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// maxSuggestDistance bounds how far a misspelled kind may be from a known one.
const maxSuggestDistance = 3

// ClosestKind returns the known kind nearest to s by edit distance, or
// false when nothing is within maxSuggestDistance.
func ClosestKind(s string) (Kind, bool) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	if upper == "" {
		return "", false
	}
	best := Kind("")
	bestDist := maxSuggestDistance + 1
	for _, k := range KnownKinds {
		d := levenshtein.ComputeDistance(upper, string(k))
		if d < bestDist {
			best, bestDist = k, d
		}
	}
	if bestDist > maxSuggestDistance {
		return "", false
	}
	return best, true
}
