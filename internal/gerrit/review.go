// Package gerrit provides a typed view of Gerrit's SSH query API: review
// records, the SSH transport, and the query/pagination loop.
package gerrit

import (
	"strconv"
	"time"
)

// Vote categories that count toward a review's effective vote set.
const (
	CategoryCodeReview = "Code-Review"
	CategoryVerified   = "Verified"
)

// Account identifies a Gerrit user.
type Account struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

// Ident returns the username, falling back to the email address. Gerrit does
// not guarantee both fields are populated on every reference.
func (a Account) Ident() string {
	if a.Username != "" {
		return a.Username
	}
	return a.Email
}

// Approval is a single vote on a patch set.
type Approval struct {
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Value       string  `json:"value"`
	GrantedOn   int64   `json:"grantedOn"`
	By          Account `json:"by"`
}

// Score returns the numeric vote value. Gerrit encodes values as strings
// like "-2" and "1"; anything unparsable counts as 0.
func (a Approval) Score() int {
	v, err := strconv.Atoi(a.Value)
	if err != nil {
		return 0
	}
	return v
}

// PatchSet is one revision of a review.
type PatchSet struct {
	Number    string     `json:"number"`
	Revision  string     `json:"revision"`
	Ref       string     `json:"ref"`
	Uploader  Account    `json:"uploader"`
	CreatedOn int64      `json:"createdOn"`
	Approvals []Approval `json:"approvals"`
}

// Comment is one inline or cover comment on a review.
type Comment struct {
	Timestamp int64   `json:"timestamp"`
	Reviewer  Account `json:"reviewer"`
	Message   string  `json:"message"`
}

// Review is one open change as reported by `gerrit query --format=JSON`.
// Absent fields decode to zero values.
type Review struct {
	ID              string     `json:"id"`
	Number          string     `json:"number"`
	Project         string     `json:"project"`
	Branch          string     `json:"branch"`
	Subject         string     `json:"subject"`
	Owner           Account    `json:"owner"`
	URL             string     `json:"url"`
	CreatedOn       int64      `json:"createdOn"`
	LastUpdated     int64      `json:"lastUpdated"`
	Open            bool       `json:"open"`
	Status          string     `json:"status"`
	WIP             bool       `json:"wip"`
	SortKey         string     `json:"sortKey"`
	CurrentPatchSet *PatchSet  `json:"currentPatchSet"`
	PatchSets       []PatchSet `json:"patchSets"`
	Comments        []Comment  `json:"comments"`

	// Score is the external priority score attached by the enrichment
	// stage. It is not part of the Gerrit payload.
	Score int `json:"-"`
}

// UpdatedAt returns the last-updated timestamp as a time.Time.
func (r *Review) UpdatedAt() time.Time {
	return time.Unix(r.LastUpdated, 0)
}

// LatestPatchSet returns the current patch set, falling back to the last
// entry of the patch set list when the query was issued without
// --current-patch-set.
func (r *Review) LatestPatchSet() *PatchSet {
	if r.CurrentPatchSet != nil {
		return r.CurrentPatchSet
	}
	if len(r.PatchSets) > 0 {
		return &r.PatchSets[len(r.PatchSets)-1]
	}
	return nil
}

// Votes returns the review's effective vote set: voter identity to numeric
// value, built from the latest patch set's approvals and restricted to the
// Code-Review and Verified categories. A review with no approvals yields an
// empty map.
func (r *Review) Votes() map[string]int {
	votes := make(map[string]int)
	ps := r.LatestPatchSet()
	if ps == nil {
		return votes
	}
	for _, a := range ps.Approvals {
		if a.Type != CategoryCodeReview && a.Type != CategoryVerified {
			continue
		}
		votes[a.By.Ident()] = a.Score()
	}
	return votes
}

// AllVotes is like Votes but walks every patch set, not just the latest.
func (r *Review) AllVotes() map[string]int {
	votes := make(map[string]int)
	for i := range r.PatchSets {
		for _, a := range r.PatchSets[i].Approvals {
			if a.Type != CategoryCodeReview && a.Type != CategoryVerified {
				continue
			}
			votes[a.By.Ident()] = a.Score()
		}
	}
	if len(votes) == 0 {
		return r.Votes()
	}
	return votes
}

// LastComment returns the most recent comment, if any.
func (r *Review) LastComment() (Comment, bool) {
	if len(r.Comments) == 0 {
		return Comment{}, false
	}
	return r.Comments[len(r.Comments)-1], true
}
