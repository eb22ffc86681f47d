package submit

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/spinlog/spinlog/internal/domain/scrobble"
)

// flushChunkSize matches the service's per-request scrobble limit.
const flushChunkSize = 50

// CachedSubmitter delivers a batch like DirectSubmitter, but on failure
// writes every record of the batch to the offline queue before surfacing
// the error. Flush retries queued records oldest first.
type CachedSubmitter struct {
	client DeliveryClient
	queue  Queue
}

// NewCachedSubmitter creates a cache-backed delivery path.
func NewCachedSubmitter(client DeliveryClient, queue Queue) *CachedSubmitter {
	return &CachedSubmitter{client: client, queue: queue}
}

// Submit delivers the batch. On delivery failure the whole batch is queued
// in original order; enqueue problems are logged, never escalated.
func (s *CachedSubmitter) Submit(ctx context.Context, records []scrobble.Record) (Result, error) {
	if len(records) == 0 {
		return Result{Status: "nothing to submit"}, nil
	}
	for i, r := range records {
		if err := r.Validate(); err != nil {
			return Result{Status: "invalid record"}, errors.Wrapf(err, "record %d", i)
		}
	}

	accepted, ignored, err := s.client.SubmitScrobbles(ctx, records)
	if err == nil {
		return Result{
			Accepted: accepted,
			Ignored:  ignored,
			Status:   statusSubmitted(accepted, ignored),
		}, nil
	}

	queued := 0
	now := time.Now().UTC()
	for _, r := range records {
		qr := scrobble.QueuedRecord{
			ID:         uuid.NewString(),
			Record:     r,
			EnqueuedAt: now,
		}
		if qerr := s.queue.Enqueue(qr); qerr != nil {
			zlog.Error().Msgf("failed to queue scrobble for retry: track=%s error=%v", r.Track, qerr)
			continue
		}
		queued++
	}
	return Result{
		Status: fmt.Sprintf("submission failed, %d of %d scrobbles queued for retry", queued, len(records)),
	}, errors.Wrap(err, "failed to submit scrobbles")
}

// Flush attempts delivery of everything in the offline queue, oldest
// first. Only records whose delivery is confirmed are removed; the rest
// stay queued in their original order.
func (s *CachedSubmitter) Flush(ctx context.Context) (Result, error) {
	queued, err := s.queue.Drain()
	if err != nil {
		return Result{Status: "flush failed"}, errors.Wrap(err, "failed to read offline queue")
	}
	if len(queued) == 0 {
		return Result{Status: "offline queue is empty"}, nil
	}

	var accepted, ignored, delivered int
	for start := 0; start < len(queued); start += flushChunkSize {
		end := start + flushChunkSize
		if end > len(queued) {
			end = len(queued)
		}
		chunk := queued[start:end]

		records := make([]scrobble.Record, len(chunk))
		ids := make([]string, len(chunk))
		for i, qr := range chunk {
			records[i] = qr.Record
			ids[i] = qr.ID
		}

		a, ig, err := s.client.SubmitScrobbles(ctx, records)
		if err != nil {
			return Result{
				Accepted: accepted,
				Ignored:  ignored,
				Status:   fmt.Sprintf("flushed %d of %d queued scrobbles before failing", delivered, len(queued)),
			}, errors.Wrap(err, "failed to flush offline queue")
		}

		if rerr := s.queue.Remove(ids); rerr != nil {
			zlog.Error().Msgf("failed to remove delivered scrobbles from queue: error=%v", rerr)
		}
		accepted += a
		ignored += ig
		delivered += len(chunk)
	}

	return Result{
		Accepted: accepted,
		Ignored:  ignored,
		Status:   fmt.Sprintf("flushed %d queued scrobbles", delivered),
	}, nil
}
