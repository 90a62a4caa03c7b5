// Package pending holds signups that are waiting for their email to be confirmed.
//
// An entry lives under the email it was submitted for. All reads and writes go
// through Registry.Update, which runs the caller's read-check-write step while
// no other Update for the same email can interleave. Updates for different
// emails do not wait on each other.
package pending

import (
	"context"
	"errors"
	"time"
)

// TTL is how long a verification code stays valid after it was last issued.
const TTL = 15 * time.Minute

// DefaultRetention is how long an expired entry is kept around so that a late
// verification still reports an expired code instead of a missing signup.
const DefaultRetention = time.Hour

// ErrUnavailable wraps failures of the registry backend itself.
var ErrUnavailable = errors.New("pending: registry unavailable")

// Entry is an in-flight signup. Password is the plaintext submitted on the
// signup form and is held only until the account is created.
type Entry struct {
	Code      string    `json:"code"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Password  string    `json:"password"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the code can no longer be accepted at now.
func (e *Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// UpdateFunc receives a copy of the current entry, or nil when there is none,
// and returns the entry to store. Returning nil deletes the entry. The error is
// handed back by Update once the write has been applied.
type UpdateFunc func(cur *Entry) (*Entry, error)

// Registry is the keyed store of pending signups.
type Registry interface {
	Update(ctx context.Context, email string, fn UpdateFunc) error
}

func clone(e *Entry) *Entry {
	if e == nil {
		return nil
	}
	out := *e
	return &out
}
