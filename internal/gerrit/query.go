package gerrit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultLimit is the page size requested from the server. Gerrit caps
// result sets anyway; the pagination loop picks up the remainder.
const DefaultLimit = 1000

// Query describes the server-side predicates for a review search.
type Query struct {
	// Projects to search. Empty means the caller's watched and starred
	// changes.
	Projects []string

	// VerifiedBot names the CI account for the label:Verified predicate.
	// Only applied when RequireVerified is set; selective bots that skip
	// reviews must not be required server-side.
	VerifiedBot     string
	RequireVerified bool

	// ExcludeSelfVoted drops changes the caller has already voted on.
	ExcludeSelfVoted bool

	// Optional vote-threshold predicates, mirroring the CLI flags.
	NoDownvotes bool
	OnlyPlusOne bool
	OnlyPlusTwo bool
	NoPlusTwo   bool

	Limit int
}

// Terms returns the Gerrit search operators for the query.
func (q Query) Terms() []string {
	var terms []string

	if len(q.Projects) > 0 {
		parts := make([]string, len(q.Projects))
		for i, p := range q.Projects {
			parts[i] = "project:" + p
		}
		terms = append(terms, "("+strings.Join(parts, " OR ")+")")
	} else {
		terms = append(terms, "(is:watched OR is:starred)")
	}

	terms = append(terms, "is:open", "label:Workflow+0")

	if q.RequireVerified && q.VerifiedBot != "" {
		terms = append(terms, "label:Verified+1,"+q.VerifiedBot)
	}
	if q.ExcludeSelfVoted {
		terms = append(terms, "NOT label:Code-Review<=+2,self")
	}
	if q.NoDownvotes {
		terms = append(terms, "NOT label:Code-Review<=-1")
	}
	if q.OnlyPlusOne {
		terms = append(terms, "label:Code-Review>=+1")
	}
	if q.OnlyPlusTwo {
		terms = append(terms, "label:Code-Review>=+2")
	}
	if q.NoPlusTwo {
		terms = append(terms, "NOT label:Code-Review=+2")
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	terms = append(terms, fmt.Sprintf("limit:%d", limit))

	return terms
}

// Command builds the full gerrit query command line. A non-empty resume
// cursor continues a paginated search.
func (q Query) Command(resume string) string {
	parts := []string{"gerrit", "query"}
	parts = append(parts, q.Terms()...)
	if resume != "" {
		parts = append(parts, "resume_sortkey:"+resume)
	}
	parts = append(parts,
		"--current-patch-set", "--patch-sets", "--all-approvals",
		"--comments", "--format=JSON")
	return strings.Join(parts, " ")
}

// row is one line of query output. The final line of every page is a stats
// object rather than a review.
type row struct {
	Review
	Type     string `json:"type"`
	RowCount int    `json:"rowCount"`
}

// Reviews runs the query, following the resume cursor until the server
// returns an empty page.
func (c *Client) Reviews(ctx context.Context, q Query) ([]Review, error) {
	var all []Review
	resume := ""

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		out, err := c.run(q.Command(resume))
		if err != nil {
			return nil, err
		}

		page, err := decodePage(out)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)

		if len(page) == 0 {
			break
		}
		last := page[len(page)-1].SortKey
		if last == "" || last == resume {
			// Servers without sort keys return everything in one page.
			break
		}
		resume = last
	}

	return all, nil
}

// decodePage parses one-JSON-object-per-line query output, dropping the
// trailing stats row.
func decodePage(out []byte) ([]Review, error) {
	var reviews []Review

	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var r row
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, fmt.Errorf("decoding query response line: %w", err)
		}
		if r.Type == "stats" || r.ID == "" {
			continue
		}
		reviews = append(reviews, r.Review)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading query response: %w", err)
	}

	return reviews, nil
}
