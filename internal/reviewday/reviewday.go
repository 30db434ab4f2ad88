// Package reviewday loads the external review priority scores published by
// the reviewday dashboard, through a 24-hour local file cache.
package reviewday

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/natefinch/atomic"

	"github.com/nextreview/next-review/internal/gerrit"
)

// DefaultURL is the published reviewday score document.
const DefaultURL = "https://status.openstack.org/reviews/reviewday.json"

// DefaultTTL is how long the local cache stays fresh.
const DefaultTTL = 24 * time.Hour

const (
	maxFetchAttempts  = 3
	initialFetchDelay = time.Second
	maxFetchDelay     = 10 * time.Second
)

// UnknownScore marks reviews the score document does not cover. It sorts
// below every real score.
const UnknownScore = -1

type scoreEntry struct {
	Score int `json:"score"`
}

type document struct {
	Projects map[string]map[string]scoreEntry `json:"projects"`
}

// Source is a score lookup backed by the cached reviewday document.
type Source struct {
	URL       string
	CachePath string
	TTL       time.Duration
	Client    *http.Client

	doc document
}

// New returns a Source with the default endpoint, cache path, and TTL.
func New() *Source {
	return &Source{
		URL:       DefaultURL,
		CachePath: defaultCachePath(),
		TTL:       DefaultTTL,
		Client:    &http.Client{Timeout: 30 * time.Second},
	}
}

func defaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".reviewday.json"
	}
	return filepath.Join(home, ".reviewday.json")
}

// Load refreshes the cache if stale and parses it.
func (s *Source) Load(ctx context.Context) error {
	if s.stale() {
		if err := s.refresh(ctx); err != nil {
			return err
		}
	}

	data, err := os.ReadFile(s.CachePath)
	if err != nil {
		return fmt.Errorf("reading score cache %s: %w", s.CachePath, err)
	}
	if err := json.Unmarshal(data, &s.doc); err != nil {
		return fmt.Errorf("parsing score cache %s: %w", s.CachePath, err)
	}
	return nil
}

// stale reports whether the cache file is missing or past its TTL.
func (s *Source) stale() bool {
	info, err := os.Stat(s.CachePath)
	if err != nil {
		return true
	}
	return time.Since(info.ModTime()) > s.TTL
}

// refresh fetches the score document and rewrites the cache atomically.
func (s *Source) refresh(ctx context.Context) error {
	var body []byte

	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
			if err != nil {
				return err
			}
			resp, err := s.Client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("unexpected status %s", resp.Status)
			}
			body, err = io.ReadAll(resp.Body)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(maxFetchAttempts),
		retry.DelayType(retry.BackOffDelay),
		retry.Delay(initialFetchDelay),
		retry.MaxDelay(maxFetchDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", s.URL, err)
	}

	if err := atomic.WriteFile(s.CachePath, bytes.NewReader(body)); err != nil {
		return fmt.Errorf("writing score cache %s: %w", s.CachePath, err)
	}
	return nil
}

// Score looks up a review's priority score. Reviews outside the score
// document get UnknownScore.
func (s *Source) Score(r *gerrit.Review) int {
	// The document keys projects by their short name, without the
	// namespace prefix.
	name := r.Project
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}

	project, ok := s.doc.Projects[name]
	if !ok {
		return UnknownScore
	}

	// Review URLs end in the change number; the document keys use the
	// legacy #change fragment form.
	i := strings.LastIndex(r.URL, "/")
	if i < 0 {
		return UnknownScore
	}
	key := r.URL[:i] + "/#change," + r.URL[i+1:]

	entry, ok := project[key]
	if !ok {
		return UnknownScore
	}
	return entry.Score
}

// AttachScores copies the reviews with each one's score filled in.
func AttachScores(reviews []gerrit.Review, s *Source) []gerrit.Review {
	scored := make([]gerrit.Review, len(reviews))
	copy(scored, reviews)
	for i := range scored {
		scored[i].Score = s.Score(&scored[i])
	}
	return scored
}
