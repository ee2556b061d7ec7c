// Package pagetest provides a scriptable in-memory page.Driver for tests.
package pagetest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fbik/avito-monitor-app/internal/page"
)

// ErrProbe is returned by ProbeLoggedIn for scripted probe failures.
var ErrProbe = errors.New("login probe failed: execution context was destroyed")

// Driver is a page.Driver whose results are scripted by the test.
// Snapshots are consumed in order; once exhausted the last one repeats.
type Driver struct {
	mu sync.Mutex

	NavigateErr   error
	ContentErr    error
	ProbeErr      error
	ExtractErr    error
	LoggedIn      bool
	LoggedInAfter int // ProbeLoggedIn reports true from this call onwards when > 0
	ProbeFailures int // the first ProbeFailures calls to ProbeLoggedIn return ErrProbe

	snapshots []*page.Snapshot
	// OnExtract runs before ExtractRaw returns; it may block.
	OnExtract func(ctx context.Context)

	navigations []string
	probes      int
	extracts    int
	inFlight    int
	maxInFlight int
	closed      bool
}

func New() *Driver {
	return &Driver{}
}

// Items builds a snapshot from sender/text pairs.
func Items(pairs ...string) *page.Snapshot {
	s := &page.Snapshot{TakenAt: time.Now()}
	for i := 0; i+1 < len(pairs); i += 2 {
		s.Items = append(s.Items, page.RawItem{Sender: pairs[i], Text: pairs[i+1]})
	}
	return s
}

func (d *Driver) QueueSnapshots(snapshots ...*page.Snapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.snapshots = append(d.snapshots, snapshots...)
}

func (d *Driver) SetNavigateErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.NavigateErr = err
}

func (d *Driver) SetLoggedIn(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.LoggedIn = v
}

func (d *Driver) enter() {
	d.mu.Lock()
	d.inFlight++
	if d.inFlight > d.maxInFlight {
		d.maxInFlight = d.inFlight
	}
	d.mu.Unlock()
}

func (d *Driver) leave() {
	d.mu.Lock()
	d.inFlight--
	d.mu.Unlock()
}

func (d *Driver) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	d.enter()
	defer d.leave()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.navigations = append(d.navigations, url)
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.NavigateErr
}

func (d *Driver) WaitForContent(ctx context.Context, selector string, timeout time.Duration) error {
	d.enter()
	defer d.leave()

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ContentErr
}

func (d *Driver) ProbeLoggedIn(ctx context.Context) (bool, error) {
	d.enter()
	defer d.leave()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.probes++
	if d.probes <= d.ProbeFailures {
		return false, ErrProbe
	}
	if d.ProbeErr != nil {
		return false, d.ProbeErr
	}
	if d.LoggedInAfter > 0 && d.probes >= d.LoggedInAfter {
		return true, nil
	}
	return d.LoggedIn, nil
}

func (d *Driver) ExtractRaw(ctx context.Context) (*page.Snapshot, error) {
	d.enter()
	defer d.leave()

	d.mu.Lock()
	d.extracts++
	hook := d.OnExtract
	err := d.ExtractErr
	var snapshot *page.Snapshot
	if len(d.snapshots) > 0 {
		snapshot = d.snapshots[0]
		if len(d.snapshots) > 1 {
			d.snapshots = d.snapshots[1:]
		}
	}
	d.mu.Unlock()

	if hook != nil {
		hook(ctx)
	}
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *Driver) Navigations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.navigations))
	copy(out, d.navigations)
	return out
}

func (d *Driver) Extracts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.extracts
}

func (d *Driver) Probes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.probes
}

// MaxConcurrent is the highest number of driver calls observed in flight at once.
func (d *Driver) MaxConcurrent() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxInFlight
}

func (d *Driver) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
