package page

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTimeout is returned when a navigation or content wait exceeds its deadline.
	ErrTimeout = errors.New("page operation timed out")
	// ErrUnavailable is returned when the browser cannot be reached.
	ErrUnavailable = errors.New("browser unavailable")
)

// Driver is the browser automation surface the monitor depends on.
// Implementations need not be safe for concurrent use; callers serialize access.
type Driver interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	WaitForContent(ctx context.Context, selector string, timeout time.Duration) error
	ProbeLoggedIn(ctx context.Context) (bool, error)
	ExtractRaw(ctx context.Context) (*Snapshot, error)
	Close() error
}

// Pinger is implemented by drivers that can report connectivity without
// touching the page.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RawItem is one message-like element as reported by the extraction probe.
// Fields are whatever the page rendered; none are guaranteed to be present.
type RawItem struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
	Time   string `json:"time"`
	Unread bool   `json:"unread"`
}

// Snapshot is the result of one extraction probe, in page order.
type Snapshot struct {
	URL     string    `json:"url"`
	Items   []RawItem `json:"items"`
	TakenAt time.Time `json:"takenAt"`
}

// Len is safe on a nil snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Items)
}
