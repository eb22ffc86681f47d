package scrobble

import "time"

// QueuedRecord is a record held in the offline queue after a failed
// delivery. It is removed only once delivery has been confirmed.
type QueuedRecord struct {
	ID         string    // UUID assigned at enqueue time
	Record     Record    // The undelivered scrobble
	EnqueuedAt time.Time // When the record entered the queue
}
