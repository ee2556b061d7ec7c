package page_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fbik/avito-monitor-app/internal/config"
	"github.com/fbik/avito-monitor-app/internal/page"
	"github.com/fbik/avito-monitor-app/internal/page/pagetest"
)

func TestDecodeItems(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []page.RawItem
	}{
		{
			name: "well formed",
			raw:  `[{"sender":"John Smith","text":"hi","time":"12:00","unread":true}]`,
			want: []page.RawItem{{Sender: "John Smith", Text: "hi", Time: "12:00", Unread: true}},
		},
		{
			name: "skips non-objects and ignores wrong field types",
			raw:  `[1, "x", null, {"sender": 5, "text": "body"}]`,
			want: []page.RawItem{{Text: "body"}},
		},
		{
			name: "not an array",
			raw:  `{"sender":"a"}`,
			want: nil,
		},
		{
			name: "garbage",
			raw:  `not json`,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, page.DecodeItems([]byte(tt.raw)))
		})
	}
}

func TestSnapshotLen(t *testing.T) {
	var s *page.Snapshot
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 2, pagetest.Items("a", "1", "b", "2").Len())
}

func TestCircuitBreakerDriver_OpensAfterFailures(t *testing.T) {
	fake := pagetest.New()
	fake.SetNavigateErr(errors.New("connection reset"))

	d := page.NewCircuitBreakerDriver(fake, config.CircuitBreakerConfig{
		Enabled:      true,
		MaxRequests:  1,
		Timeout:      time.Minute,
		FailureRatio: 0.5,
		MinRequests:  2,
	})

	ctx := context.Background()
	require.Error(t, d.Navigate(ctx, "https://example.test/inbox", time.Second))
	require.Error(t, d.Navigate(ctx, "https://example.test/inbox", time.Second))
	assert.True(t, d.IsOpen())

	err := d.Navigate(ctx, "https://example.test/inbox", time.Second)
	assert.ErrorIs(t, err, page.ErrUnavailable)
	assert.Len(t, fake.Navigations(), 2)
	assert.Error(t, d.Ping(ctx))
}

func TestCircuitBreakerDriver_ContentTimeoutIsNotAFailure(t *testing.T) {
	fake := pagetest.New()
	fake.ContentErr = page.ErrTimeout

	d := page.NewCircuitBreakerDriver(fake, config.CircuitBreakerConfig{
		Enabled:      true,
		FailureRatio: 0.5,
		MinRequests:  1,
	})

	for i := 0; i < 3; i++ {
		err := d.WaitForContent(context.Background(), "#inbox", time.Second)
		assert.ErrorIs(t, err, page.ErrTimeout)
	}
	assert.False(t, d.IsOpen())
	assert.Equal(t, "closed", d.State())
}

func TestCircuitBreakerDriver_ProbeErrorsDoNotTrip(t *testing.T) {
	fake := pagetest.New()
	fake.ProbeFailures = 4
	fake.LoggedInAfter = 5

	d := page.NewCircuitBreakerDriver(fake, config.CircuitBreakerConfig{
		Enabled:      true,
		MaxRequests:  1,
		Timeout:      time.Minute,
		FailureRatio: 0.5,
		MinRequests:  2,
	})

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_, err := d.ProbeLoggedIn(ctx)
		assert.ErrorIs(t, err, pagetest.ErrProbe)
	}
	assert.False(t, d.IsOpen())

	loggedIn, err := d.ProbeLoggedIn(ctx)
	require.NoError(t, err)
	assert.True(t, loggedIn)
	assert.Equal(t, 5, fake.Probes())
	require.NoError(t, d.Navigate(ctx, "https://example.test/inbox", time.Second))
}

func TestCircuitBreakerDriver_Disabled(t *testing.T) {
	fake := pagetest.New()
	fake.QueueSnapshots(pagetest.Items("a", "b"))
	d := page.NewCircuitBreakerDriver(fake, config.CircuitBreakerConfig{})

	s, err := d.ExtractRaw(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, "disabled", d.State())
	require.NoError(t, d.Close())
	assert.True(t, fake.Closed())
}
