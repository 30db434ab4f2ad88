package review

import (
	"sort"

	"github.com/nextreview/next-review/internal/gerrit"
)

// Rank orders reviews by external score descending, then last-updated
// ascending so long-neglected reviews of equal score surface first. The sort
// is stable and does not mutate its input.
func Rank(reviews []gerrit.Review) []gerrit.Review {
	ranked := make([]gerrit.Review, len(reviews))
	copy(ranked, reviews)

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].LastUpdated < ranked[j].LastUpdated
	})

	return ranked
}
