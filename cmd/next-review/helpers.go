package main

import "fmt"

// pendingReviewsError carries the match count out through cobra's error
// path so the process can exit with it.
type pendingReviewsError struct {
	count int
}

func (e pendingReviewsError) Error() string {
	return fmt.Sprintf("%d reviews pending", e.count)
}

// pendingReviews wraps a match count as an error. Zero matches is a clean
// exit.
func pendingReviews(count int) error {
	if count == 0 {
		return nil
	}
	return pendingReviewsError{count: count}
}
