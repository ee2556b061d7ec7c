package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fbik/avito-monitor-app/internal/config"
	"github.com/fbik/avito-monitor-app/internal/extraction"
	"github.com/fbik/avito-monitor-app/internal/history"
	"github.com/fbik/avito-monitor-app/internal/logger"
	"github.com/fbik/avito-monitor-app/internal/page"
	"github.com/fbik/avito-monitor-app/internal/page/pagetest"
	pkgerrors "github.com/fbik/avito-monitor-app/pkg/errors"
	"github.com/fbik/avito-monitor-app/pkg/models"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.Event
}

func (p *recordingPublisher) Publish(e models.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) Count() int { return 0 }

func (p *recordingPublisher) ofKind(kind models.EventKind) []models.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.Event
	for _, e := range p.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func (p *recordingPublisher) monitoringStatuses() []models.MonitoringStatus {
	var out []models.MonitoringStatus
	for _, e := range p.ofKind(models.EventMonitoringStatusChanged) {
		out = append(out, e.Data.(models.MonitoringStatusPayload).Status)
	}
	return out
}

func testConfig() (config.MonitorConfig, config.BrowserConfig) {
	return config.MonitorConfig{
			PollInterval:       5 * time.Millisecond,
			NavigationTimeout:  time.Second,
			ContentTimeout:     time.Second,
			LoginTimeout:       100 * time.Millisecond,
			LoginProbeInterval: 5 * time.Millisecond,
			ErrorThreshold:     5,
			ErrorBackoff: config.RetryConfig{
				InitialInterval: 2 * time.Millisecond,
				MaxInterval:     2 * time.Millisecond,
				Multiplier:      1,
			},
		}, config.BrowserConfig{
			EntryURL:        "https://example.test/login",
			InboxURL:        "https://example.test/inbox",
			ContentSelector: ".message",
		}
}

type fixture struct {
	monitor *Monitor
	driver  *pagetest.Driver
	events  *recordingPublisher
	store   *history.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newWrappedFixture(t, nil)
}

// newWrappedFixture builds a fixture whose monitor talks to the fake through
// wrap, when given.
func newWrappedFixture(t *testing.T, wrap func(page.Driver) page.Driver) *fixture {
	t.Helper()

	log := logger.NopLogger()
	engine, err := extraction.NewEngine(config.ExtractionConfig{TargetSenders: []string{"smith"}}, log)
	require.NoError(t, err)

	f := &fixture{
		driver: pagetest.New(),
		events: &recordingPublisher{},
		store:  history.NewStore(100),
	}
	var driver page.Driver = f.driver
	if wrap != nil {
		driver = wrap(f.driver)
	}
	mcfg, bcfg := testConfig()
	f.monitor = New(mcfg, bcfg, Deps{
		Driver: driver,
		Engine: engine,
		Store:  f.store,
		Events: f.events,
		Logger: log,
	})
	t.Cleanup(func() {
		_ = f.monitor.Shutdown(context.Background())
	})
	return f
}

func (f *fixture) login(t *testing.T) {
	t.Helper()
	f.driver.SetLoggedIn(true)
	ok, err := f.monitor.Login(context.Background(), "user@example.test")
	require.NoError(t, err)
	require.True(t, ok)
}

func waitStopped(t *testing.T, m *Monitor) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Wait(ctx))
}

func TestEndToEnd_DedupAcrossCycles(t *testing.T) {
	f := newFixture(t)
	f.driver.QueueSnapshots(
		pagetest.Items("John Smith", "msg1"),
		pagetest.Items("John Smith", "msg1"),
		pagetest.Items("John Smith", "msg2", "Jane Doe", "ignored"),
	)
	f.login(t)

	ok, err := f.monitor.Start()
	require.NoError(t, err)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		return f.driver.Extracts() >= 4
	}, 2*time.Second, 5*time.Millisecond)

	f.monitor.Stop()
	waitStopped(t, f.monitor)

	msgs := f.monitor.ListMessages(0)
	require.Len(t, msgs, 2)
	assert.Equal(t, "msg2", msgs[0].Text)
	assert.Equal(t, "msg1", msgs[1].Text)

	st := f.monitor.Status()
	assert.Equal(t, 2, st.MessagesCount)
	assert.Equal(t, models.AuthAuthenticated, st.Auth.Status)
	assert.Equal(t, "user@example.test", st.Auth.Username)
	assert.Equal(t, models.MonitoringStopped, st.Monitoring.Status)
	assert.NotNil(t, st.Monitoring.LastCheckedAt)
	assert.GreaterOrEqual(t, st.Monitoring.ChecksCount, 4)

	ingested := f.events.ofKind(models.EventMessageIngested)
	require.Len(t, ingested, 2)
	assert.Equal(t, "msg1", ingested[0].Data.(models.MessageIngestedPayload).Message.Text)
	assert.Equal(t, "msg2", ingested[1].Data.(models.MessageIngestedPayload).Message.Text)

	for _, nav := range f.driver.Navigations()[1:] {
		assert.Equal(t, "https://example.test/inbox", nav)
	}
}

func TestStart_RequiresAuthentication(t *testing.T) {
	f := newFixture(t)

	ok, err := f.monitor.Start()
	assert.False(t, ok)
	assert.True(t, pkgerrors.IsNotAuthenticated(err))
	assert.Empty(t, f.events.ofKind(models.EventMonitoringStatusChanged))
}

func TestStart_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	for i := 0; i < 3; i++ {
		ok, err := f.monitor.Start()
		require.NoError(t, err)
		require.True(t, ok)
	}

	assert.Equal(t, []models.MonitoringStatus{models.MonitoringRunning}, f.events.monitoringStatuses())

	f.monitor.Stop()
	waitStopped(t, f.monitor)
}

func TestStop_EmitsStoppingThenStopped(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	f.monitor.Stop()
	assert.Empty(t, f.events.monitoringStatuses())

	_, err := f.monitor.Start()
	require.NoError(t, err)

	f.monitor.Stop()
	f.monitor.Stop()
	waitStopped(t, f.monitor)

	assert.Equal(t, []models.MonitoringStatus{
		models.MonitoringRunning,
		models.MonitoringStopping,
		models.MonitoringStopped,
	}, f.events.monitoringStatuses())
	assert.Equal(t, models.MonitoringStopped, f.monitor.Status().Monitoring.Status)
}

func TestEscalation_ThresholdStopsMonitoring(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.driver.SetNavigateErr(errors.New("net::ERR_CONNECTION_RESET"))

	_, err := f.monitor.Start()
	require.NoError(t, err)
	waitStopped(t, f.monitor)

	st := f.monitor.Status()
	assert.Equal(t, models.MonitoringErrorStopped, st.Monitoring.Status)
	assert.Equal(t, 5, st.Monitoring.ConsecutiveErrorCount)
	assert.Contains(t, st.Monitoring.LastError, "ERR_CONNECTION_RESET")
	assert.Zero(t, f.driver.Extracts())

	errs := f.events.ofKind(models.EventMonitoringError)
	require.Len(t, errs, 1)
	payload := errs[0].Data.(models.MonitoringErrorPayload)
	assert.Equal(t, "ERROR_THRESHOLD_EXCEEDED", payload.Code)
	assert.Equal(t, 5, payload.ConsecutiveErrorCount)
	assert.Empty(t, f.events.ofKind(models.EventMessageIngested))

	statuses := f.events.monitoringStatuses()
	assert.Equal(t, models.MonitoringErrorStopped, statuses[len(statuses)-1])

	// explicit start resumes
	f.driver.SetNavigateErr(nil)
	ok, err := f.monitor.Start()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, f.monitor.Status().Monitoring.ConsecutiveErrorCount)

	f.monitor.Stop()
	waitStopped(t, f.monitor)
}

func TestCycle_ContentTimeoutIsNotAFailure(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.driver.ContentErr = page.ErrTimeout

	_, err := f.monitor.Start()
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return f.monitor.Status().Monitoring.ChecksCount >= 6
	}, 2*time.Second, 5*time.Millisecond)

	f.monitor.Stop()
	waitStopped(t, f.monitor)

	st := f.monitor.Status()
	assert.Equal(t, models.MonitoringStopped, st.Monitoring.Status)
	assert.Zero(t, st.Monitoring.ConsecutiveErrorCount)
	assert.Zero(t, f.driver.Extracts())
	assert.Empty(t, f.events.ofKind(models.EventMonitoringError))
}

func TestLogin_Timeout(t *testing.T) {
	f := newFixture(t)

	ok, err := f.monitor.Login(context.Background(), "")
	assert.False(t, ok)
	assert.True(t, pkgerrors.IsAuthTimeout(err))
	assert.Greater(t, f.driver.Probes(), 1)
	assert.Equal(t, models.AuthFailed, f.monitor.Status().Auth.Status)

	auth := f.events.ofKind(models.EventAuthStatusChanged)
	require.Len(t, auth, 2)
	assert.Equal(t, models.AuthAwaitingManualLogin, auth[0].Data.(models.AuthStatusPayload).Status)
	assert.Equal(t, "timeout", auth[1].Data.(models.AuthStatusPayload).Reason)

	_, err = f.monitor.Start()
	assert.True(t, pkgerrors.IsNotAuthenticated(err))
}

func TestLogin_ManualLoginDetectedLater(t *testing.T) {
	f := newFixture(t)
	f.driver.LoggedInAfter = 3

	ok, err := f.monitor.Login(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, f.driver.Probes())
	assert.Equal(t, []string{"https://example.test/login"}, f.driver.Navigations())
}

func TestLogin_ProbeErrorsBehindCircuitBreaker(t *testing.T) {
	var breaker *page.CircuitBreakerDriver
	f := newWrappedFixture(t, func(d page.Driver) page.Driver {
		breaker = page.NewCircuitBreakerDriver(d, config.CircuitBreakerConfig{
			Enabled:      true,
			MaxRequests:  1,
			Interval:     time.Minute,
			Timeout:      30 * time.Second,
			FailureRatio: 0.6,
			MinRequests:  5,
		})
		return breaker
	})
	f.driver.ProbeFailures = 4
	f.driver.LoggedInAfter = 5

	ok, err := f.monitor.Login(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 5, f.driver.Probes())
	assert.False(t, breaker.IsOpen())
	assert.Equal(t, models.AuthAuthenticated, f.monitor.Status().Auth.Status)

	f.driver.QueueSnapshots(pagetest.Items("John Smith", "hello"))
	_, err = f.monitor.Start()
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return len(f.monitor.ListMessages(0)) == 1
	}, 2*time.Second, 5*time.Millisecond)

	f.monitor.Stop()
	waitStopped(t, f.monitor)
}

func TestLogin_NavigationFailure(t *testing.T) {
	f := newFixture(t)
	f.driver.SetNavigateErr(page.ErrUnavailable)

	ok, err := f.monitor.Login(context.Background(), "")
	assert.False(t, ok)
	assert.True(t, pkgerrors.IsInitialization(err))
	assert.ErrorIs(t, err, page.ErrUnavailable)

	auth := f.events.ofKind(models.EventAuthStatusChanged)
	require.Len(t, auth, 2)
	payload := auth[1].Data.(models.AuthStatusPayload)
	assert.Equal(t, models.AuthFailed, payload.Status)
	assert.Equal(t, "error", payload.Reason)
}

func TestLogin_ConflictWhileMonitoring(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	_, err := f.monitor.Start()
	require.NoError(t, err)

	ok, err := f.monitor.Login(context.Background(), "")
	assert.False(t, ok)
	assert.True(t, pkgerrors.IsConflict(err))

	f.monitor.Stop()
	waitStopped(t, f.monitor)
}

func TestLogin_ConflictWhileAuthenticating(t *testing.T) {
	f := newFixture(t)

	done := make(chan error, 1)
	go func() {
		_, err := f.monitor.Login(context.Background(), "")
		done <- err
	}()

	require.Eventually(t, func() bool {
		return f.monitor.Status().Auth.Status == models.AuthAwaitingManualLogin
	}, time.Second, time.Millisecond)

	_, err := f.monitor.Login(context.Background(), "")
	assert.True(t, pkgerrors.IsConflict(err))

	assert.True(t, pkgerrors.IsAuthTimeout(<-done))
}

func TestDriverAccessIsSerialized(t *testing.T) {
	f := newFixture(t)
	f.driver.OnExtract = func(ctx context.Context) { time.Sleep(2 * time.Millisecond) }
	f.driver.QueueSnapshots(pagetest.Items("John Smith", "hello"))
	f.login(t)

	_, err := f.monitor.Start()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.monitor.Login(context.Background(), "")
			_ = f.monitor.Status()
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return f.driver.Extracts() >= 3
	}, 2*time.Second, 5*time.Millisecond)

	f.monitor.Stop()
	waitStopped(t, f.monitor)
	assert.Equal(t, 1, f.driver.MaxConcurrent())
}

func TestClear_EmitsHistoryCleared(t *testing.T) {
	f := newFixture(t)
	f.store.Ingest([]models.Candidate{{ID: "1", Sender: "A", Text: "hi"}, {ID: "2", Sender: "B", Text: "yo"}})

	assert.Equal(t, 2, f.monitor.Clear())
	assert.Empty(t, f.monitor.ListMessages(0))

	cleared := f.events.ofKind(models.EventHistoryCleared)
	require.Len(t, cleared, 1)
	assert.Equal(t, 2, cleared[0].Data.(models.HistoryClearedPayload).Removed)
}

func TestClear_DuringInFlightCycle(t *testing.T) {
	f := newFixture(t)
	f.driver.QueueSnapshots(
		pagetest.Items("John Smith", "msg1"),
		pagetest.Items("John Smith", "msg2"),
	)

	blocked := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.driver.OnExtract = func(ctx context.Context) {
		if f.driver.Extracts() != 2 {
			return
		}
		once.Do(func() { close(blocked) })
		select {
		case <-release:
		case <-ctx.Done():
		}
	}
	f.login(t)

	_, err := f.monitor.Start()
	require.NoError(t, err)

	select {
	case <-blocked:
	case <-time.After(2 * time.Second):
		t.Fatal("second cycle never reached extraction")
	}

	assert.Equal(t, 1, f.monitor.Clear())
	assert.Empty(t, f.monitor.ListMessages(0))
	close(release)

	require.Eventually(t, func() bool {
		return f.driver.Extracts() >= 3
	}, 2*time.Second, 5*time.Millisecond)
	f.monitor.Stop()
	waitStopped(t, f.monitor)

	msgs := f.monitor.ListMessages(0)
	require.Len(t, msgs, 1)
	assert.Equal(t, "msg2", msgs[0].Text)

	var order []string
	f.events.mu.Lock()
	for _, e := range f.events.events {
		switch p := e.Data.(type) {
		case models.MessageIngestedPayload:
			order = append(order, p.Message.Text)
		case models.HistoryClearedPayload:
			order = append(order, "cleared")
		}
	}
	f.events.mu.Unlock()
	assert.Equal(t, []string{"msg1", "cleared", "msg2"}, order)
}

func TestShutdown_StopsLoopAndClosesDriver(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	_, err := f.monitor.Start()
	require.NoError(t, err)

	require.NoError(t, f.monitor.Shutdown(context.Background()))
	assert.True(t, f.driver.Closed())
	assert.Equal(t, models.MonitoringStopped, f.monitor.Status().Monitoring.Status)

	_, err = f.monitor.Start()
	assert.Error(t, err)
}
