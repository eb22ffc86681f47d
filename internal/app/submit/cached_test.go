package submit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spinlog/spinlog/internal/domain/scrobble"
)

type memQueue struct {
	mu    sync.Mutex
	items []scrobble.QueuedRecord
}

func (q *memQueue) Enqueue(qr scrobble.QueuedRecord) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, qr)
	return nil
}

func (q *memQueue) Drain() ([]scrobble.QueuedRecord, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]scrobble.QueuedRecord, len(q.items))
	copy(out, q.items)
	return out, nil
}

func (q *memQueue) Remove(ids []string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	keep := q.items[:0]
	for _, item := range q.items {
		removed := false
		for _, id := range ids {
			if item.ID == id {
				removed = true
				break
			}
		}
		if !removed {
			keep = append(keep, item)
		}
	}
	q.items = keep
	return nil
}

func (q *memQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func TestCachedSubmitter_FailureQueuesBatchInOrder(t *testing.T) {
	client := &fakeClient{fail: true}
	queue := &memQueue{}
	s := NewCachedSubmitter(client, queue)

	records := []scrobble.Record{
		{Artist: "a", Track: "first", PlayedAt: time.Now().Add(-3 * time.Minute)},
		{Artist: "a", Track: "second", PlayedAt: time.Now().Add(-2 * time.Minute)},
		{Artist: "a", Track: "third", PlayedAt: time.Now().Add(-time.Minute)},
	}

	res, err := s.Submit(context.Background(), records)
	require.Error(t, err)
	assert.Contains(t, res.Status, "3 of 3")

	queued, qerr := queue.Drain()
	require.NoError(t, qerr)
	require.Len(t, queued, 3)
	assert.Equal(t, "first", queued[0].Record.Track)
	assert.Equal(t, "second", queued[1].Record.Track)
	assert.Equal(t, "third", queued[2].Record.Track)
}

func TestCachedSubmitter_SuccessDoesNotTouchQueue(t *testing.T) {
	client := &fakeClient{}
	queue := &memQueue{}
	s := NewCachedSubmitter(client, queue)

	res, err := s.Submit(context.Background(), makeRecords(t, 2))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Accepted)
	assert.Zero(t, queue.len())
}

func TestCachedSubmitter_FlushEmptiesQueue(t *testing.T) {
	client := &fakeClient{fail: true}
	queue := &memQueue{}
	s := NewCachedSubmitter(client, queue)

	_, err := s.Submit(context.Background(), makeRecords(t, 3))
	require.Error(t, err)
	require.Equal(t, 3, queue.len())

	// Service recovers; a flush delivers everything and the queue drains.
	client.mu.Lock()
	client.fail = false
	client.mu.Unlock()

	res, err := s.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Accepted)
	assert.Zero(t, queue.len())
}

func TestCachedSubmitter_FlushFailureKeepsRecordsQueued(t *testing.T) {
	client := &fakeClient{fail: true}
	queue := &memQueue{}
	s := NewCachedSubmitter(client, queue)

	_, err := s.Submit(context.Background(), makeRecords(t, 2))
	require.Error(t, err)

	_, err = s.Flush(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, queue.len(), "failed flush must leave records queued")
}

func TestCachedSubmitter_FlushEmptyQueue(t *testing.T) {
	s := NewCachedSubmitter(&fakeClient{}, &memQueue{})

	res, err := s.Flush(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Accepted)
	assert.Contains(t, res.Status, "empty")
}

func TestDirectSubmitter_ValidationFailsFast(t *testing.T) {
	client := &fakeClient{}
	s := NewDirectSubmitter(client)

	_, err := s.Submit(context.Background(), []scrobble.Record{{Artist: "", Track: "x"}})
	require.Error(t, err)
	assert.Zero(t, client.calls(), "invalid records must never reach the network")
}
