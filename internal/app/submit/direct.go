package submit

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/spinlog/spinlog/internal/domain/scrobble"
)

// DirectSubmitter delivers a batch with a single call to the tracking
// service. Failures are surfaced to the caller with no local durability.
type DirectSubmitter struct {
	client DeliveryClient
}

// NewDirectSubmitter creates a direct delivery path.
func NewDirectSubmitter(client DeliveryClient) *DirectSubmitter {
	return &DirectSubmitter{client: client}
}

// Submit delivers the batch. Validation failures are reported before
// anything reaches the network.
func (s *DirectSubmitter) Submit(ctx context.Context, records []scrobble.Record) (Result, error) {
	if len(records) == 0 {
		return Result{Status: "nothing to submit"}, nil
	}
	for i, r := range records {
		if err := r.Validate(); err != nil {
			return Result{Status: "invalid record"}, errors.Wrapf(err, "record %d", i)
		}
	}

	accepted, ignored, err := s.client.SubmitScrobbles(ctx, records)
	if err != nil {
		return Result{Status: "submission failed"}, errors.Wrap(err, "failed to submit scrobbles")
	}
	return Result{
		Accepted: accepted,
		Ignored:  ignored,
		Status:   statusSubmitted(accepted, ignored),
	}, nil
}
