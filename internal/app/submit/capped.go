package submit

import (
	"context"
	"fmt"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/spinlog/spinlog/internal/domain/scrobble"
)

// DailyCap is the service-enforced maximum number of scrobbles per rolling
// 24-hour window.
const DailyCap = 3000

// activityWindow is the trailing window the cap applies to.
const activityWindow = 24 * time.Hour

// activityReuse is how long a fetched recent-activity count is reused
// before it is refreshed from the service.
const activityReuse = 30 * time.Second

// CapExceededError is returned when a submission would push the user past
// the rolling daily cap. Nothing is delivered.
type CapExceededError struct {
	Limit     int
	Current   int
	Requested int
}

func (e *CapExceededError) Error() string {
	return fmt.Sprintf("daily scrobble cap exceeded: limit=%d current=%d requested=%d",
		e.Limit, e.Current, e.Requested)
}

// CappedSubmitter enforces the rolling daily cap before delegating to a
// delivery path. The recent-activity count is advisory: it is refreshed
// immediately before a submission, bumped optimistically on confirmed
// success, and skipped entirely when the fetch fails. Concurrent sources
// can therefore overshoot the cap by a small margin; that is tolerated.
type CappedSubmitter struct {
	mu sync.Mutex

	router   Submitter
	activity ActivitySource
	limit    int

	recentCount int
	fetchedAt   time.Time
}

// NewCappedSubmitter creates a capped submitter routing through the given
// delivery path.
func NewCappedSubmitter(router Submitter, activity ActivitySource) *CappedSubmitter {
	return &CappedSubmitter{
		router:   router,
		activity: activity,
		limit:    DailyCap,
	}
}

// Submit checks the cap and delegates to the delivery path. On cap
// overflow it fails with CapExceededError and nothing is delivered.
func (s *CappedSubmitter) Submit(ctx context.Context, records []scrobble.Record) (Result, error) {
	if len(records) == 0 {
		return Result{Status: "nothing to submit"}, nil
	}

	count, known := s.window(ctx)
	if known && count+len(records) > s.limit {
		return Result{Status: "daily cap reached"}, &CapExceededError{
			Limit:     s.limit,
			Current:   count,
			Requested: len(records),
		}
	}

	res, err := s.router.Submit(ctx, records)
	if err != nil {
		return res, err
	}

	// Optimistic local accounting: avoids a second round trip to learn
	// what we just submitted.
	s.mu.Lock()
	s.recentCount += len(records)
	s.mu.Unlock()

	return res, nil
}

// RecentCount returns the locally tracked recent-activity count.
func (s *CappedSubmitter) RecentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recentCount
}

// window returns the recent-activity count for the trailing 24 hours and
// whether it is known. A fetch failure skips the cap check rather than
// blocking the user.
func (s *CappedSubmitter) window(ctx context.Context) (int, bool) {
	s.mu.Lock()
	if !s.fetchedAt.IsZero() && time.Since(s.fetchedAt) < activityReuse {
		count := s.recentCount
		s.mu.Unlock()
		return count, true
	}
	s.mu.Unlock()

	count, err := s.activity.RecentActivityCount(ctx, time.Now().Add(-activityWindow))
	if err != nil {
		zlog.Warn().Msgf("recent-activity fetch failed, skipping cap check: error=%v", err)
		return 0, false
	}

	s.mu.Lock()
	s.recentCount = count
	s.fetchedAt = time.Now()
	s.mu.Unlock()
	return count, true
}
