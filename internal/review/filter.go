// Package review implements the filter pipeline that turns a raw list of
// Gerrit reviews into the priority-ordered subset worth a human's attention.
package review

import (
	"slices"

	"github.com/nextreview/next-review/internal/gerrit"
)

// Caller identifies the user running the tool. Username and email are
// equally valid matches for "is this me".
type Caller struct {
	Username string
	Email    string
}

// Matches reports whether the given voter/owner identity is the caller.
func (c Caller) Matches(ident string) bool {
	if ident == "" {
		return false
	}
	return (c.Username != "" && ident == c.Username) ||
		(c.Email != "" && ident == c.Email)
}

// VerifyPolicy controls how the verification bot's votes are interpreted.
type VerifyPolicy int

const (
	// VerifyRequireUpvote keeps only reviews the bot has upvoted.
	VerifyRequireUpvote VerifyPolicy = iota
	// VerifyRejectDownvote drops reviews the bot has downvoted but does
	// not penalize reviews the bot never voted on. Suits selective bots.
	VerifyRejectDownvote
)

// IgnoreListed drops reviews whose URL appears in the ignore list.
func IgnoreListed(reviews []gerrit.Review, urls []string) []gerrit.Review {
	if len(urls) == 0 {
		return reviews
	}
	var kept []gerrit.Review
	for _, r := range reviews {
		if !slices.Contains(urls, r.URL) {
			kept = append(kept, r)
		}
	}
	return kept
}

// IgnoreWorkInProgress drops reviews that are flagged WIP or carry a
// negative Workflow vote.
func IgnoreWorkInProgress(reviews []gerrit.Review) []gerrit.Review {
	var kept []gerrit.Review
	for _, r := range reviews {
		if r.WIP || r.Status == "WORKINPROGRESS" {
			continue
		}
		if hasWorkflowVeto(&r) {
			continue
		}
		kept = append(kept, r)
	}
	return kept
}

func hasWorkflowVeto(r *gerrit.Review) bool {
	ps := r.LatestPatchSet()
	if ps == nil {
		return false
	}
	for _, a := range ps.Approvals {
		if a.Type == "Workflow" && a.Score() < 0 {
			return true
		}
	}
	return false
}

// IgnoreBlocked drops reviews with a -2 from anyone.
func IgnoreBlocked(reviews []gerrit.Review) []gerrit.Review {
	var kept []gerrit.Review
	for _, r := range reviews {
		if !hasVoteValue(&r, -2) {
			kept = append(kept, r)
		}
	}
	return kept
}

// RequireVerified applies the verification-bot policy against the named bot
// accounts. Under VerifyRequireUpvote at least one bot must have voted >= +1;
// under VerifyRejectDownvote no bot may have voted <= -1, and a review the
// bots never touched passes.
func RequireVerified(reviews []gerrit.Review, bots []string, policy VerifyPolicy) []gerrit.Review {
	if len(bots) == 0 {
		return reviews
	}
	var kept []gerrit.Review
	for _, r := range reviews {
		votes := r.Votes()
		switch policy {
		case VerifyRequireUpvote:
			for _, bot := range bots {
				if v, ok := votes[bot]; ok && v >= 1 {
					kept = append(kept, r)
					break
				}
			}
		case VerifyRejectDownvote:
			vetoed := false
			for _, bot := range bots {
				if v, ok := votes[bot]; ok && v <= -1 {
					vetoed = true
					break
				}
			}
			if !vetoed {
				kept = append(kept, r)
			}
		}
	}
	return kept
}

// IgnoreMine drops reviews owned by the caller, unless someone else has
// downvoted them; those need the owner's attention and stay.
func IgnoreMine(reviews []gerrit.Review, caller Caller) []gerrit.Review {
	var kept []gerrit.Review
	for _, r := range reviews {
		if !caller.Matches(r.Owner.Ident()) {
			kept = append(kept, r)
			continue
		}
		for _, v := range r.Votes() {
			if v == -1 || v == -2 {
				kept = append(kept, r)
				break
			}
		}
	}
	return kept
}

// IgnoreAlreadyVoted drops reviews the caller has already voted on.
func IgnoreAlreadyVoted(reviews []gerrit.Review, caller Caller) []gerrit.Review {
	var kept []gerrit.Review
	for _, r := range reviews {
		voted := false
		for ident := range r.Votes() {
			if caller.Matches(ident) {
				voted = true
				break
			}
		}
		if !voted {
			kept = append(kept, r)
		}
	}
	return kept
}

// IgnorePreviouslyCommented drops reviews whose most recent comment was
// written by the caller.
func IgnorePreviouslyCommented(reviews []gerrit.Review, caller Caller) []gerrit.Review {
	var kept []gerrit.Review
	for _, r := range reviews {
		if last, ok := r.LastComment(); ok && caller.Matches(last.Reviewer.Ident()) {
			continue
		}
		kept = append(kept, r)
	}
	return kept
}

// IgnoreDownvoted drops reviews with any negative vote from anyone.
func IgnoreDownvoted(reviews []gerrit.Review) []gerrit.Review {
	var kept []gerrit.Review
	for _, r := range reviews {
		downvoted := false
		for _, v := range r.Votes() {
			if v < 0 {
				downvoted = true
				break
			}
		}
		if !downvoted {
			kept = append(kept, r)
		}
	}
	return kept
}

// RequireUpvote keeps only reviews carrying a Code-Review vote >= min.
// For min >= 2 the vote must come from a human; the named bot accounts are
// excluded.
func RequireUpvote(reviews []gerrit.Review, min int, bots []string) []gerrit.Review {
	var kept []gerrit.Review
	for _, r := range reviews {
		ps := r.LatestPatchSet()
		if ps == nil {
			continue
		}
		for _, a := range ps.Approvals {
			if a.Type != gerrit.CategoryCodeReview || a.Score() < min {
				continue
			}
			if min >= 2 && slices.Contains(bots, a.By.Ident()) {
				continue
			}
			kept = append(kept, r)
			break
		}
	}
	return kept
}

// IgnoreApproved drops reviews that already carry a +2 from anyone.
func IgnoreApproved(reviews []gerrit.Review) []gerrit.Review {
	var kept []gerrit.Review
	for _, r := range reviews {
		if !hasVoteValue(&r, 2) {
			kept = append(kept, r)
		}
	}
	return kept
}

func hasVoteValue(r *gerrit.Review, value int) bool {
	for _, v := range r.Votes() {
		if v == value {
			return true
		}
	}
	return false
}

// Pipeline composes the filter stages in their fixed order.
type Pipeline struct {
	Caller     Caller
	Bots       []string
	Verify     VerifyPolicy
	IgnoreURLs []string

	// Optional vote-threshold stages, off by default.
	NoDownvotes bool
	MinUpvote   int // 0 disables; 1 or 2 per the CLI flags
	NoPlusTwo   bool
}

// Apply runs every stage. Records never cross a stage boundary out of
// order; only the ranker reorders.
func (p Pipeline) Apply(reviews []gerrit.Review) []gerrit.Review {
	reviews = IgnoreListed(reviews, p.IgnoreURLs)
	reviews = IgnoreWorkInProgress(reviews)
	reviews = IgnoreBlocked(reviews)
	reviews = RequireVerified(reviews, p.Bots, p.Verify)
	reviews = IgnoreMine(reviews, p.Caller)
	reviews = IgnoreAlreadyVoted(reviews, p.Caller)
	reviews = IgnorePreviouslyCommented(reviews, p.Caller)
	if p.NoDownvotes {
		reviews = IgnoreDownvoted(reviews)
	}
	if p.MinUpvote > 0 {
		reviews = RequireUpvote(reviews, p.MinUpvote, p.Bots)
	}
	if p.NoPlusTwo {
		reviews = IgnoreApproved(reviews)
	}
	return reviews
}
