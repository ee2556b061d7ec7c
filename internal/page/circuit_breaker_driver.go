package page

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/fbik/avito-monitor-app/internal/config"
	"github.com/fbik/avito-monitor-app/pkg/circuitbreaker"
)

const breakerName = "page-driver"

// CircuitBreakerDriver short-circuits browser calls after repeated failures.
// Content-wait timeouts, caller cancellation and login probes do not count as
// failures.
type CircuitBreakerDriver struct {
	driver Driver
	cb     *circuitbreaker.Wrapper
}

func NewCircuitBreakerDriver(driver Driver, cfg config.CircuitBreakerConfig) *CircuitBreakerDriver {
	if !cfg.Enabled {
		return &CircuitBreakerDriver{driver: driver}
	}

	cbConfig := circuitbreaker.FromSettings(breakerName, cfg)
	cbConfig.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, context.Canceled)
	}

	return &CircuitBreakerDriver{
		driver: driver,
		cb:     circuitbreaker.NewWrapper(cbConfig),
	}
}

func (d *CircuitBreakerDriver) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	return d.do(ctx, func() error {
		return d.driver.Navigate(ctx, url, timeout)
	})
}

func (d *CircuitBreakerDriver) WaitForContent(ctx context.Context, selector string, timeout time.Duration) error {
	var waitErr error
	err := d.do(ctx, func() error {
		waitErr = d.driver.WaitForContent(ctx, selector, timeout)
		if errors.Is(waitErr, ErrTimeout) {
			return nil
		}
		return waitErr
	})
	if err != nil {
		return err
	}
	return waitErr
}

// ProbeLoggedIn bypasses the breaker. Probes run repeatedly while a human is
// signing in and their errors are expected, so they must neither trip the
// breaker nor be rejected by it.
func (d *CircuitBreakerDriver) ProbeLoggedIn(ctx context.Context) (bool, error) {
	return d.driver.ProbeLoggedIn(ctx)
}

func (d *CircuitBreakerDriver) ExtractRaw(ctx context.Context) (*Snapshot, error) {
	var snapshot *Snapshot
	err := d.do(ctx, func() error {
		var err error
		snapshot, err = d.driver.ExtractRaw(ctx)
		return err
	})
	return snapshot, err
}

func (d *CircuitBreakerDriver) Close() error {
	return d.driver.Close()
}

// Ping delegates to the wrapped driver when it supports it.
func (d *CircuitBreakerDriver) Ping(ctx context.Context) error {
	if d.IsOpen() {
		return fmt.Errorf("%w: circuit breaker %s is open", ErrUnavailable, breakerName)
	}
	if p, ok := d.driver.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (d *CircuitBreakerDriver) State() string {
	if d.cb == nil {
		return "disabled"
	}
	return d.cb.State().String()
}

func (d *CircuitBreakerDriver) IsOpen() bool {
	if d.cb == nil {
		return false
	}
	return d.cb.IsOpen()
}

func (d *CircuitBreakerDriver) do(ctx context.Context, fn func() error) error {
	if d.cb == nil {
		return fn()
	}
	err := d.cb.Do(ctx, fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
