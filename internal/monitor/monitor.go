package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fbik/avito-monitor-app/internal/config"
	"github.com/fbik/avito-monitor-app/internal/constants"
	"github.com/fbik/avito-monitor-app/internal/extraction"
	"github.com/fbik/avito-monitor-app/internal/history"
	"github.com/fbik/avito-monitor-app/internal/logger"
	"github.com/fbik/avito-monitor-app/internal/page"
	pkgerrors "github.com/fbik/avito-monitor-app/pkg/errors"
	"github.com/fbik/avito-monitor-app/pkg/logging"
	"github.com/fbik/avito-monitor-app/pkg/metrics"
	"github.com/fbik/avito-monitor-app/pkg/models"
	"github.com/fbik/avito-monitor-app/pkg/retry"
	"github.com/fbik/avito-monitor-app/pkg/tracing"
)

// Publisher receives every state change the monitor emits. Status transitions
// are published under the state lock, so Publish must not block.
type Publisher interface {
	Publish(event models.Event)
	Count() int
}

// Deps are the collaborators a Monitor drives. All fields are required.
type Deps struct {
	Driver page.Driver
	Engine *extraction.Engine
	Store  *history.Store
	Events Publisher
	Logger logger.Logger
}

// Monitor owns the page driver, the authentication state and the poll loop.
type Monitor struct {
	cfg     config.MonitorConfig
	browser config.BrowserConfig

	driver page.Driver
	engine *extraction.Engine
	store  *history.Store
	events Publisher
	logger logger.Logger

	// driverMu serializes cycles and logins on the single browser page.
	driverMu sync.Mutex

	mu          sync.Mutex
	auth        models.AuthStatus
	username    string
	status      models.MonitoringStatus
	errorCount  int
	checks      int
	lastChecked *time.Time
	lastError   string
	stopCh      chan struct{}
	done        chan struct{}

	baseCtx context.Context
	cancel  context.CancelFunc
}

// New returns a stopped, unauthenticated monitor. It takes ownership of
// deps.Driver, which Shutdown closes.
func New(cfg config.MonitorConfig, browser config.BrowserConfig, deps Deps) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		cfg:     cfg,
		browser: browser,
		driver:  deps.Driver,
		engine:  deps.Engine,
		store:   deps.Store,
		events:  deps.Events,
		logger:  deps.Logger,
		auth:    models.AuthUnauthenticated,
		status:  models.MonitoringStopped,
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Login opens the entry page and waits for a human to finish signing in
// within the same browser session.
func (m *Monitor) Login(ctx context.Context, hint string) (bool, error) {
	m.mu.Lock()
	if m.auth == models.AuthAwaitingManualLogin {
		m.mu.Unlock()
		return false, pkgerrors.ErrConflict.WithMessage("login already in progress")
	}
	if m.status.Active() {
		m.mu.Unlock()
		return false, pkgerrors.ErrConflict.WithMessage("cannot login while monitoring is active")
	}
	m.auth = models.AuthAwaitingManualLogin
	m.username = hint
	m.publishAuth(models.AuthAwaitingManualLogin, hint, "")
	m.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopAfter := context.AfterFunc(m.baseCtx, cancel)
	defer stopAfter()

	ctx, span := tracing.StartSpan(ctx, "monitor.login")
	ok, err := m.login(ctx)
	tracing.EndSpan(span, err)
	return ok, err
}

func (m *Monitor) login(ctx context.Context) (bool, error) {
	m.driverMu.Lock()
	defer m.driverMu.Unlock()

	m.logger.InfowCtx(ctx, "Opening entry page for manual login", "url", m.browser.EntryURL)

	if err := m.driver.Navigate(ctx, m.browser.EntryURL, m.cfg.NavigationTimeout); err != nil {
		m.setAuth(models.AuthFailed, "error")
		metrics.IncLoginAttempt("error")
		m.logger.ErrorwCtx(ctx, "Failed to open entry page", "error", err)
		return false, pkgerrors.ErrInitialization.WithCause(err)
	}

	loginCtx, cancel := context.WithTimeout(ctx, m.cfg.LoginTimeout)
	defer cancel()

	err := retry.Poll(loginCtx, m.cfg.LoginProbeInterval, func(ctx context.Context) (bool, error) {
		loggedIn, err := m.driver.ProbeLoggedIn(ctx)
		if err != nil {
			// the page may be mid-navigation while the user signs in
			m.logger.DebugwCtx(ctx, "Login probe failed", "error", err)
			return false, nil
		}
		return loggedIn, nil
	})

	switch {
	case err == nil:
		m.setAuth(models.AuthAuthenticated, "")
		metrics.IncLoginAttempt("success")
		m.logger.InfowCtx(ctx, "Manual login detected", "username", m.Username())
		return true, nil
	case ctx.Err() != nil:
		m.setAuth(models.AuthFailed, "cancelled")
		metrics.IncLoginAttempt("cancelled")
		return false, ctx.Err()
	case errors.Is(err, retry.ErrConditionNotMet):
		m.setAuth(models.AuthFailed, "timeout")
		metrics.IncLoginAttempt("timeout")
		m.logger.WarnwCtx(ctx, "Manual login not completed in time", "timeout", m.cfg.LoginTimeout)
		return false, pkgerrors.ErrAuthTimeout.WithDetail("timeout", m.cfg.LoginTimeout.String())
	default:
		m.setAuth(models.AuthFailed, "error")
		metrics.IncLoginAttempt("error")
		return false, pkgerrors.ErrInitialization.WithCause(err)
	}
}

func (m *Monitor) setAuth(status models.AuthStatus, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auth = status
	m.publishAuth(status, m.username, reason)
}

func (m *Monitor) publishAuth(status models.AuthStatus, username, reason string) {
	m.events.Publish(models.NewEvent(models.EventAuthStatusChanged, models.AuthStatusPayload{
		Status:   status,
		Username: username,
		Reason:   reason,
	}))
}

func (m *Monitor) publishMonitoring(status models.MonitoringStatus) {
	m.events.Publish(models.NewEvent(models.EventMonitoringStatusChanged, models.MonitoringStatusPayload{
		Status: status,
	}))
}

func (m *Monitor) Username() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.username
}

// Start launches the poll loop. Starting a running monitor succeeds without
// side effects.
func (m *Monitor) Start() (bool, error) {
	m.mu.Lock()
	if m.auth != models.AuthAuthenticated {
		m.mu.Unlock()
		return false, pkgerrors.ErrNotAuthenticated.WithMessage("login required before monitoring can start")
	}
	switch m.status {
	case models.MonitoringRunning:
		m.mu.Unlock()
		return true, nil
	case models.MonitoringStopping:
		m.mu.Unlock()
		return false, pkgerrors.ErrConflict.WithMessage("monitoring is stopping")
	}
	if m.baseCtx.Err() != nil {
		m.mu.Unlock()
		return false, pkgerrors.ErrServiceUnavailable.WithMessage("monitor is shut down")
	}

	m.status = models.MonitoringRunning
	m.errorCount = 0
	m.checks = 0
	m.lastError = ""
	stop := make(chan struct{})
	done := make(chan struct{})
	m.stopCh = stop
	m.done = done
	m.publishMonitoring(models.MonitoringRunning)
	m.mu.Unlock()

	metrics.SetMonitorRunning(true)
	metrics.SetConsecutiveErrors(0)
	m.logger.Infow("Monitoring started",
		"poll_interval", m.cfg.PollInterval,
		"targets", m.engine.Targets(),
	)

	go m.run(stop, done)
	return true, nil
}

// Stop asks the loop to exit after its current cycle. It does not wait.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.status != models.MonitoringRunning {
		m.mu.Unlock()
		return
	}
	m.status = models.MonitoringStopping
	close(m.stopCh)
	m.publishMonitoring(models.MonitoringStopping)
	m.mu.Unlock()

	m.logger.Info("Monitoring stop requested")
}

// Wait blocks until the current loop, if any, has exited or ctx is done.
func (m *Monitor) Wait(ctx context.Context) error {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Monitor) Status() models.Status {
	m.mu.Lock()
	st := models.Status{
		Auth: models.AuthState{
			Status:   m.auth,
			Username: m.username,
		},
		Monitoring: models.MonitoringState{
			Status:                m.status,
			ConsecutiveErrorCount: m.errorCount,
			ChecksCount:           m.checks,
			LastError:             m.lastError,
		},
	}
	if m.lastChecked != nil {
		t := *m.lastChecked
		st.Monitoring.LastCheckedAt = &t
	}
	m.mu.Unlock()

	st.MessagesCount = m.store.Len()
	st.SubscribersCount = m.events.Count()
	st.Timestamp = time.Now()
	return st
}

// ListMessages returns retained messages newest-first.
func (m *Monitor) ListMessages(limit int) []models.Message {
	return m.store.Snapshot(limit)
}

// Clear empties the history and returns how many messages were dropped.
func (m *Monitor) Clear() int {
	removed := m.store.Clear()
	m.events.Publish(models.NewEvent(models.EventHistoryCleared, models.HistoryClearedPayload{Removed: removed}))
	m.logger.Infow("History cleared", "removed", removed)
	return removed
}

// Shutdown cancels any in-flight cycle or login, waits for the loop and
// closes the driver.
func (m *Monitor) Shutdown(ctx context.Context) error {
	m.cancel()

	waitCtx, cancel := context.WithTimeout(ctx, constants.StopWaitTimeout)
	defer cancel()
	if err := m.Wait(waitCtx); err != nil {
		m.logger.Warnw("Poll loop did not exit before shutdown deadline", "error", err)
	}

	m.driverMu.Lock()
	defer m.driverMu.Unlock()
	return m.driver.Close()
}

func (m *Monitor) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	errBackoff := retry.DeterministicBackoff(
		m.cfg.ErrorBackoff.InitialInterval,
		m.cfg.ErrorBackoff.MaxInterval,
		m.cfg.ErrorBackoff.Multiplier,
	)

	for {
		select {
		case <-stop:
			m.finish()
			return
		case <-m.baseCtx.Done():
			m.finish()
			return
		default:
		}

		err := m.cycle(m.baseCtx)
		if m.baseCtx.Err() != nil {
			m.finish()
			return
		}

		wait := m.cfg.PollInterval
		if err != nil {
			if count := m.recordFailure(err); count >= m.cfg.ErrorThreshold {
				m.escalate(err, count)
				return
			}
			if wait = errBackoff.NextBackOff(); wait == backoff.Stop {
				wait = m.cfg.ErrorBackoff.MaxInterval
			}
		} else {
			errBackoff.Reset()
		}

		timer := time.NewTimer(wait)
		select {
		case <-stop:
			timer.Stop()
			m.finish()
			return
		case <-m.baseCtx.Done():
			timer.Stop()
			m.finish()
			return
		case <-timer.C:
		}
	}
}

func (m *Monitor) cycle(ctx context.Context) error {
	cycleID := uuid.NewString()
	ctx = logging.WithCycleID(ctx, cycleID)
	ctx, span := tracing.StartSpan(ctx, "monitor.cycle", attribute.String("cycle_id", cycleID))

	start := time.Now()
	snapshot, contentFound, err := m.probe(ctx)
	if err != nil {
		metrics.ObserveCycle(time.Since(start), "failure")
		m.logger.WarnwCtx(ctx, "Monitoring cycle failed", "error", err)
		err = pkgerrors.ErrCycleFailure.WithCause(err)
		tracing.EndSpan(span, err)
		return err
	}

	candidates := m.engine.Extract(ctx, snapshot)
	added := m.store.Ingest(candidates)
	for _, msg := range added {
		m.events.Publish(models.NewEvent(models.EventMessageIngested, models.MessageIngestedPayload{Message: msg}))
	}

	checkedAt := time.Now()
	m.mu.Lock()
	m.errorCount = 0
	m.checks++
	m.lastChecked = &checkedAt
	m.lastError = ""
	m.mu.Unlock()

	metrics.ObserveCycle(time.Since(start), "success")
	metrics.SetConsecutiveErrors(0)

	size := m.store.Len()
	m.events.Publish(models.NewEvent(models.EventCycleCompleted, models.CycleCompletedPayload{
		Success:      true,
		NewMessages:  len(added),
		HistorySize:  size,
		CheckedAt:    checkedAt,
		ContentFound: contentFound,
	}))

	if len(added) > 0 {
		m.logger.InfowCtx(ctx, "New messages ingested",
			"new", len(added),
			"candidates", len(candidates),
			"history_size", size,
		)
	} else {
		m.logger.DebugwCtx(ctx, "Cycle completed", "candidates", len(candidates), "content_found", contentFound)
	}

	span.SetAttributes(
		attribute.Int("candidates", len(candidates)),
		attribute.Int("new_messages", len(added)),
	)
	tracing.EndSpan(span, nil)
	return nil
}

// probe drives the page for one cycle. A content wait timeout yields a nil
// snapshot and no error.
func (m *Monitor) probe(ctx context.Context) (*page.Snapshot, bool, error) {
	m.driverMu.Lock()
	defer m.driverMu.Unlock()

	if err := m.driver.Navigate(ctx, m.browser.InboxURL, m.cfg.NavigationTimeout); err != nil {
		return nil, false, err
	}

	if err := m.driver.WaitForContent(ctx, m.browser.ContentSelector, m.cfg.ContentTimeout); err != nil {
		if errors.Is(err, page.ErrTimeout) {
			m.logger.DebugwCtx(ctx, "No message content on inbox page", "selector", m.browser.ContentSelector)
			return nil, false, nil
		}
		return nil, false, err
	}

	snapshot, err := m.driver.ExtractRaw(ctx)
	if err != nil {
		return nil, true, err
	}
	return snapshot, true, nil
}

func (m *Monitor) recordFailure(err error) int {
	checkedAt := time.Now()

	m.mu.Lock()
	m.errorCount++
	m.checks++
	m.lastChecked = &checkedAt
	m.lastError = err.Error()
	count := m.errorCount
	m.mu.Unlock()

	metrics.SetConsecutiveErrors(count)
	m.events.Publish(models.NewEvent(models.EventCycleCompleted, models.CycleCompletedPayload{
		Success:    false,
		CheckedAt:  checkedAt,
		ErrorCount: count,
	}))
	return count
}

// escalate moves the session to error-stopped once the failure threshold is
// reached. It runs on the loop goroutine right before it exits.
func (m *Monitor) escalate(err error, count int) {
	metrics.SetMonitorRunning(false)
	m.logger.Errorw("Monitoring stopped after consecutive failures",
		"consecutive_errors", count,
		"threshold", m.cfg.ErrorThreshold,
		"error", err,
	)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = models.MonitoringErrorStopped
	m.events.Publish(models.NewEvent(models.EventMonitoringError, models.MonitoringErrorPayload{
		Code:                  pkgerrors.ErrThresholdExceeded.Code,
		Message:               err.Error(),
		ConsecutiveErrorCount: count,
	}))
	m.publishMonitoring(models.MonitoringErrorStopped)
}

func (m *Monitor) finish() {
	m.mu.Lock()
	m.status = models.MonitoringStopped
	m.publishMonitoring(models.MonitoringStopped)
	m.mu.Unlock()

	metrics.SetMonitorRunning(false)
	m.logger.Info(constants.StopMessage)
}
