// Package submit provides the scrobble submission pipeline: a capped
// submitter enforcing the service's rolling daily limit, and the delivery
// paths (direct, cache-backed) it routes batches through.
package submit

import (
	"context"
	"fmt"
	"time"

	"github.com/spinlog/spinlog/internal/domain/scrobble"
)

// Result summarizes the outcome of a submission.
type Result struct {
	Accepted int    // Records the service confirmed
	Ignored  int    // Records the service acknowledged but discarded
	Status   string // Human-readable terminal status
}

// Submitter is the common submission contract. Both delivery paths and the
// capped submitter implement it, so callers are unaware which is active.
type Submitter interface {
	Submit(ctx context.Context, records []scrobble.Record) (Result, error)
}

// DeliveryClient is the tracking-service boundary used by the delivery
// paths. A non-success service status is reported as an error, identically
// to a transport failure.
type DeliveryClient interface {
	SubmitScrobbles(ctx context.Context, records []scrobble.Record) (accepted, ignored int, err error)
}

// Queue is the durable store for records that failed direct delivery.
// Implementations must preserve insertion order across restarts and be
// safe for concurrent use.
type Queue interface {
	Enqueue(qr scrobble.QueuedRecord) error
	Drain() ([]scrobble.QueuedRecord, error)
	Remove(ids []string) error
}

// ActivitySource reports the number of scrobbles the authenticated user
// has successfully submitted since a given time.
type ActivitySource interface {
	RecentActivityCount(ctx context.Context, since time.Time) (int, error)
}

func statusSubmitted(accepted, ignored int) string {
	if ignored > 0 {
		return fmt.Sprintf("submitted %d scrobbles (%d ignored by service)", accepted, ignored)
	}
	return fmt.Sprintf("submitted %d scrobbles", accepted)
}
