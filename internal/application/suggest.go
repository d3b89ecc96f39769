package application

import (
	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"
)

// closestName returns the candidate nearest to target by case-insensitive
// edit distance, or "" when nothing is close enough to be a plausible typo.
// Ties go to the earlier candidate.
func closestName(target string, candidates []string) string {
	if target == "" {
		return ""
	}
	folded := cases.Fold().String(target)
	limit := max(2, len([]rune(folded))/3)

	best, bestDist := "", limit+1
	for _, c := range candidates {
		d := levenshtein.ComputeDistance(folded, cases.Fold().String(c))
		if d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}
