// Package notifytest provides a recording notify.Sink for tests
package notifytest

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/quocanhngo/talkcore/internal/model"
)

// Delivery is one recorded Notify call
type Delivery struct {
	UserID       uuid.UUID
	Notification model.Notification
}

// Recorder keeps every notification it receives. Err, when set, is returned
// from Notify after recording.
type Recorder struct {
	mu         sync.Mutex
	deliveries []Delivery
	Err        error
}

func (r *Recorder) Name() string { return "recorder" }

func (r *Recorder) Notify(_ context.Context, userID uuid.UUID, n model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = append(r.deliveries, Delivery{UserID: userID, Notification: n})
	return r.Err
}

// Deliveries returns a snapshot of what was recorded
func (r *Recorder) Deliveries() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Delivery(nil), r.deliveries...)
}

// For returns the notifications recorded for userID
func (r *Recorder) For(userID uuid.UUID) []model.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Notification
	for _, d := range r.deliveries {
		if d.UserID == userID {
			out = append(out, d.Notification)
		}
	}
	return out
}

// Reset forgets everything recorded so far
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = nil
}
