package review

import (
	"testing"

	"github.com/nextreview/next-review/internal/gerrit"
)

// vote is a shorthand for building approvals in fixtures.
type vote struct {
	who   string
	typ   string
	value string
}

func makeReview(url, owner string, votes []vote, commenters ...string) gerrit.Review {
	ps := &gerrit.PatchSet{}
	for _, v := range votes {
		typ := v.typ
		if typ == "" {
			typ = gerrit.CategoryCodeReview
		}
		ps.Approvals = append(ps.Approvals, gerrit.Approval{
			Type:  typ,
			Value: v.value,
			By:    gerrit.Account{Username: v.who},
		})
	}

	r := gerrit.Review{
		ID:              "I" + url,
		URL:             url,
		Owner:           gerrit.Account{Username: owner},
		Status:          "NEW",
		CurrentPatchSet: ps,
	}
	for _, c := range commenters {
		r.Comments = append(r.Comments, gerrit.Comment{
			Reviewer: gerrit.Account{Username: c},
		})
	}
	return r
}

func urls(reviews []gerrit.Review) []string {
	out := make([]string, len(reviews))
	for i, r := range reviews {
		out[i] = r.URL
	}
	return out
}

func assertURLs(t *testing.T, got []gerrit.Review, want ...string) {
	t.Helper()
	gotURLs := urls(got)
	if len(gotURLs) != len(want) {
		t.Fatalf("got %v, want %v", gotURLs, want)
	}
	for i := range want {
		if gotURLs[i] != want[i] {
			t.Fatalf("got %v, want %v", gotURLs, want)
		}
	}
}

func TestCallerMatches(t *testing.T) {
	caller := Caller{Username: "alice", Email: "alice@example.com"}

	tests := []struct {
		ident string
		want  bool
	}{
		{"alice", true},
		{"alice@example.com", true},
		{"bob", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := caller.Matches(tt.ident); got != tt.want {
			t.Errorf("Matches(%q) = %v, want %v", tt.ident, got, tt.want)
		}
	}

	// An empty caller must never match an empty identity.
	if (Caller{}).Matches("") {
		t.Error("empty caller matched empty identity")
	}
}

func TestIgnoreListed(t *testing.T) {
	reviews := []gerrit.Review{
		makeReview("https://r/1", "alice", nil),
		makeReview("https://r/2", "bob", nil),
	}

	kept := IgnoreListed(reviews, []string{"https://r/1"})
	assertURLs(t, kept, "https://r/2")

	// No ignore list keeps everything.
	assertURLs(t, IgnoreListed(reviews, nil), "https://r/1", "https://r/2")
}

func TestIgnoreWorkInProgress(t *testing.T) {
	wip := makeReview("https://r/1", "alice", nil)
	wip.WIP = true
	legacy := makeReview("https://r/2", "alice", nil)
	legacy.Status = "WORKINPROGRESS"
	vetoed := makeReview("https://r/3", "alice", []vote{{who: "alice", typ: "Workflow", value: "-1"}})
	ready := makeReview("https://r/4", "alice", nil)

	kept := IgnoreWorkInProgress([]gerrit.Review{wip, legacy, vetoed, ready})
	assertURLs(t, kept, "https://r/4")
}

func TestIgnoreBlocked(t *testing.T) {
	tests := []struct {
		name  string
		votes []vote
		kept  bool
	}{
		{"no votes", nil, true},
		{"upvotes only", []vote{{who: "bob", value: "1"}, {who: "carol", value: "2"}}, true},
		{"minus one survives", []vote{{who: "bob", value: "-1"}}, true},
		{"block vote", []vote{{who: "bob", value: "-2"}}, false},
		{"block among upvotes", []vote{{who: "bob", value: "2"}, {who: "carol", value: "-2"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kept := IgnoreBlocked([]gerrit.Review{makeReview("https://r/1", "alice", tt.votes)})
			if got := len(kept) == 1; got != tt.kept {
				t.Errorf("kept = %v, want %v", got, tt.kept)
			}
		})
	}
}

func TestRequireVerified_RequireUpvote(t *testing.T) {
	bots := []string{"zuul", "jenkins"}

	tests := []struct {
		name  string
		votes []vote
		kept  bool
	}{
		{"bot upvote", []vote{{who: "zuul", typ: gerrit.CategoryVerified, value: "1"}}, true},
		{"secondary bot upvote", []vote{{who: "jenkins", typ: gerrit.CategoryVerified, value: "1"}}, true},
		{"bot downvote", []vote{{who: "zuul", typ: gerrit.CategoryVerified, value: "-1"}}, false},
		{"no bot vote", []vote{{who: "bob", value: "1"}}, false},
		{"no approvals at all", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kept := RequireVerified([]gerrit.Review{makeReview("https://r/1", "alice", tt.votes)}, bots, VerifyRequireUpvote)
			if got := len(kept) == 1; got != tt.kept {
				t.Errorf("kept = %v, want %v", got, tt.kept)
			}
		})
	}
}

func TestRequireVerified_RejectDownvote(t *testing.T) {
	bots := []string{"smokestack"}

	tests := []struct {
		name  string
		votes []vote
		kept  bool
	}{
		// A selective bot that never voted must not penalize the review.
		{"absent bot vote", nil, true},
		{"bot upvote", []vote{{who: "smokestack", typ: gerrit.CategoryVerified, value: "1"}}, true},
		{"bot downvote", []vote{{who: "smokestack", typ: gerrit.CategoryVerified, value: "-1"}}, false},
		{"human downvote irrelevant", []vote{{who: "bob", value: "-1"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kept := RequireVerified([]gerrit.Review{makeReview("https://r/1", "alice", tt.votes)}, bots, VerifyRejectDownvote)
			if got := len(kept) == 1; got != tt.kept {
				t.Errorf("kept = %v, want %v", got, tt.kept)
			}
		})
	}
}

func TestRequireVerified_NoBotsConfigured(t *testing.T) {
	reviews := []gerrit.Review{makeReview("https://r/1", "alice", nil)}
	assertURLs(t, RequireVerified(reviews, nil, VerifyRequireUpvote), "https://r/1")
}

func TestIgnoreMine(t *testing.T) {
	caller := Caller{Username: "alice", Email: "alice@example.com"}

	tests := []struct {
		name   string
		owner  string
		votes  []vote
		kept   bool
		reason string
	}{
		{"someone else's review", "bob", nil, true, ""},
		{"my clean review", "alice", nil, false, "own review with no downvote"},
		{"my upvoted review", "alice", []vote{{who: "bob", value: "1"}}, false, ""},
		{"my downvoted review", "alice", []vote{{who: "bob", value: "-1"}}, true, "needs my attention"},
		{"my blocked review", "alice", []vote{{who: "bob", value: "-2"}}, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kept := IgnoreMine([]gerrit.Review{makeReview("https://r/1", tt.owner, tt.votes)}, caller)
			if got := len(kept) == 1; got != tt.kept {
				t.Errorf("kept = %v, want %v (%s)", got, tt.kept, tt.reason)
			}
		})
	}
}

func TestIgnoreMine_MatchesByEmail(t *testing.T) {
	caller := Caller{Username: "alice", Email: "alice@example.com"}
	r := gerrit.Review{
		URL:             "https://r/1",
		Owner:           gerrit.Account{Email: "alice@example.com"},
		CurrentPatchSet: &gerrit.PatchSet{},
	}
	if kept := IgnoreMine([]gerrit.Review{r}, caller); len(kept) != 0 {
		t.Error("owner matched by email must be filtered")
	}
}

func TestIgnoreAlreadyVoted(t *testing.T) {
	caller := Caller{Username: "alice"}

	voted := makeReview("https://r/1", "bob", []vote{{who: "alice", value: "1"}})
	fresh := makeReview("https://r/2", "bob", []vote{{who: "carol", value: "1"}})

	kept := IgnoreAlreadyVoted([]gerrit.Review{voted, fresh}, caller)
	assertURLs(t, kept, "https://r/2")
}

func TestIgnorePreviouslyCommented(t *testing.T) {
	caller := Caller{Username: "alice"}

	tests := []struct {
		name       string
		commenters []string
		kept       bool
	}{
		{"no comments", nil, true},
		{"last comment by me", []string{"bob", "alice"}, false},
		{"last comment by someone else", []string{"alice", "bob"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := makeReview("https://r/1", "bob", nil, tt.commenters...)
			kept := IgnorePreviouslyCommented([]gerrit.Review{r}, caller)
			if got := len(kept) == 1; got != tt.kept {
				t.Errorf("kept = %v, want %v", got, tt.kept)
			}
		})
	}
}

func TestIgnoreDownvoted(t *testing.T) {
	clean := makeReview("https://r/1", "alice", []vote{{who: "bob", value: "2"}})
	downvoted := makeReview("https://r/2", "alice", []vote{{who: "bob", value: "-1"}})

	kept := IgnoreDownvoted([]gerrit.Review{clean, downvoted})
	assertURLs(t, kept, "https://r/1")
}

func TestRequireUpvote(t *testing.T) {
	bots := []string{"zuul"}

	tests := []struct {
		name  string
		min   int
		votes []vote
		kept  bool
	}{
		{"plus one present", 1, []vote{{who: "bob", value: "1"}}, true},
		{"plus one absent", 1, []vote{{who: "bob", value: "-1"}}, false},
		{"no approvals never admitted", 1, nil, false},
		{"plus two from human", 2, []vote{{who: "bob", value: "2"}}, true},
		{"plus two from bot rejected", 2, []vote{{who: "zuul", value: "2"}}, false},
		{"plus one insufficient for min two", 2, []vote{{who: "bob", value: "1"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kept := RequireUpvote([]gerrit.Review{makeReview("https://r/1", "alice", tt.votes)}, tt.min, bots)
			if got := len(kept) == 1; got != tt.kept {
				t.Errorf("kept = %v, want %v", got, tt.kept)
			}
		})
	}
}

func TestIgnoreApproved(t *testing.T) {
	approved := makeReview("https://r/1", "alice", []vote{{who: "bob", value: "2"}})
	pending := makeReview("https://r/2", "alice", []vote{{who: "bob", value: "1"}})

	kept := IgnoreApproved([]gerrit.Review{approved, pending})
	assertURLs(t, kept, "https://r/2")
}

func TestPipelineApply(t *testing.T) {
	caller := Caller{Username: "alice"}
	bots := []string{"zuul"}

	verified := func(url, owner string, extra ...vote) gerrit.Review {
		votes := append([]vote{{who: "zuul", typ: gerrit.CategoryVerified, value: "1"}}, extra...)
		return makeReview(url, owner, votes)
	}

	blocked := verified("https://r/blocked", "bob", vote{who: "carol", value: "-2"})
	mine := verified("https://r/mine", "alice")
	alreadyVoted := verified("https://r/voted", "bob", vote{who: "alice", value: "1"})
	commented := verified("https://r/commented", "bob")
	commented.Comments = []gerrit.Comment{{Reviewer: gerrit.Account{Username: "alice"}}}
	unverified := makeReview("https://r/unverified", "bob", nil)
	good := verified("https://r/good", "bob")

	pipeline := Pipeline{
		Caller:     caller,
		Bots:       bots,
		Verify:     VerifyRequireUpvote,
		IgnoreURLs: []string{"https://r/ignored"},
	}
	ignored := verified("https://r/ignored", "bob")

	out := pipeline.Apply([]gerrit.Review{blocked, mine, alreadyVoted, commented, unverified, ignored, good})
	assertURLs(t, out, "https://r/good")
}

func TestPipelineApply_PreservesOrder(t *testing.T) {
	reviews := []gerrit.Review{
		makeReview("https://r/1", "bob", nil),
		makeReview("https://r/2", "carol", nil),
		makeReview("https://r/3", "dave", nil),
	}

	out := Pipeline{Caller: Caller{Username: "alice"}}.Apply(reviews)
	assertURLs(t, out, "https://r/1", "https://r/2", "https://r/3")
}
