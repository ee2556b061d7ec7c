package page

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"github.com/fbik/avito-monitor-app/internal/config"
	"github.com/fbik/avito-monitor-app/internal/logger"
	"github.com/fbik/avito-monitor-app/pkg/retry"
)

// RodDriver drives a single Chrome tab through the DevTools protocol.
// The browser is connected lazily on first use and reused afterwards, so a
// manual login in that tab stays valid for later polls.
type RodDriver struct {
	cfg    config.BrowserConfig
	logger logger.Logger

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
}

func NewRodDriver(cfg config.BrowserConfig, log logger.Logger) *RodDriver {
	if cfg.LoggedInScript == "" {
		cfg.LoggedInScript = defaultLoggedInScript
	}
	if cfg.ExtractScript == "" {
		cfg.ExtractScript = defaultExtractScript
	}
	return &RodDriver{cfg: cfg, logger: log}
}

// Start connects to (or launches) the browser, retrying per the connect policy.
func (d *RodDriver) Start(ctx context.Context) error {
	_, err := d.ensurePage(ctx)
	return err
}

func (d *RodDriver) ensurePage(ctx context.Context) (*rod.Page, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.page != nil {
		return d.page, nil
	}

	policy := retry.Policy{
		MaxAttempts:     d.cfg.ConnectRetry.MaxAttempts,
		InitialInterval: d.cfg.ConnectRetry.InitialInterval,
		MaxInterval:     d.cfg.ConnectRetry.MaxInterval,
		Multiplier:      d.cfg.ConnectRetry.Multiplier,
		MaxElapsedTime:  d.cfg.ConnectRetry.MaxElapsedTime,
	}

	err := retry.RetryWithCallback(ctx, policy, func() error {
		return d.connectLocked(ctx)
	}, func(attempt int, err error, nextDelay time.Duration) {
		d.logger.WarnwCtx(ctx, "Browser connection failed, retrying",
			"attempt", attempt,
			"next_delay", nextDelay,
			"error", err,
		)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return d.page, nil
}

func (d *RodDriver) connectLocked(ctx context.Context) error {
	controlURL := d.cfg.ControlURL
	if controlURL == "" {
		l := launcher.New().Headless(d.cfg.Headless)
		if d.cfg.Bin != "" {
			l = l.Bin(d.cfg.Bin)
		}
		if d.cfg.UserDataDir != "" {
			l = l.UserDataDir(d.cfg.UserDataDir)
		}
		for _, rawFlag := range d.cfg.Flags {
			name, val, hasVal := strings.Cut(strings.TrimLeft(rawFlag, "-"), "=")
			if hasVal {
				l = l.Set(flags.Flag(name), val)
			} else {
				l = l.Set(flags.Flag(name))
			}
		}

		url, err := l.Context(ctx).Launch()
		if err != nil {
			return fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = url
		d.launcher = l
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		d.killLauncherLocked()
		return fmt.Errorf("connect to chrome: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = browser.Close()
		d.killLauncherLocked()
		return fmt.Errorf("open page: %w", err)
	}

	d.browser = browser
	d.page = page
	d.logger.Infow("Browser connected", "control_url", controlURL, "headless", d.cfg.Headless)
	return nil
}

func (d *RodDriver) killLauncherLocked() {
	if d.launcher != nil {
		d.launcher.Kill()
		d.launcher = nil
	}
}

func (d *RodDriver) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	page, err := d.ensurePage(ctx)
	if err != nil {
		return err
	}

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	p := page.Context(tctx)
	if err := p.Navigate(url); err != nil {
		return classify(ctx, tctx, fmt.Errorf("navigate %s: %w", url, err))
	}
	if err := p.WaitLoad(); err != nil {
		return classify(ctx, tctx, fmt.Errorf("wait load %s: %w", url, err))
	}
	return nil
}

func (d *RodDriver) WaitForContent(ctx context.Context, selector string, timeout time.Duration) error {
	page, err := d.ensurePage(ctx)
	if err != nil {
		return err
	}

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := page.Context(tctx).Element(selector); err != nil {
		return classify(ctx, tctx, fmt.Errorf("wait for %q: %w", selector, err))
	}
	return nil
}

func (d *RodDriver) ProbeLoggedIn(ctx context.Context) (bool, error) {
	page, err := d.ensurePage(ctx)
	if err != nil {
		return false, err
	}

	res, err := page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           d.cfg.LoggedInScript,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return false, fmt.Errorf("logged-in probe: %w", err)
	}
	if res == nil {
		return false, nil
	}
	return res.Value.Bool(), nil
}

func (d *RodDriver) ExtractRaw(ctx context.Context) (*Snapshot, error) {
	page, err := d.ensurePage(ctx)
	if err != nil {
		return nil, err
	}

	res, err := page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           d.cfg.ExtractScript,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil, fmt.Errorf("extraction probe: %w", err)
	}

	snapshot := &Snapshot{TakenAt: time.Now()}
	if info, infoErr := page.Info(); infoErr == nil && info != nil {
		snapshot.URL = info.URL
	}
	if res == nil {
		return snapshot, nil
	}

	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return snapshot, nil
	}
	snapshot.Items = DecodeItems(raw)
	return snapshot, nil
}

// Ping checks the DevTools connection without touching the page.
func (d *RodDriver) Ping(ctx context.Context) error {
	d.mu.Lock()
	browser := d.browser
	d.mu.Unlock()

	if browser == nil {
		return fmt.Errorf("%w: not connected", ErrUnavailable)
	}
	if _, err := (proto.BrowserGetVersion{}).Call(browser.Context(ctx)); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (d *RodDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var err error
	if d.page != nil {
		_ = d.page.Close()
		d.page = nil
	}
	if d.browser != nil {
		err = d.browser.Close()
		d.browser = nil
	}
	d.killLauncherLocked()
	return err
}

// classify maps a deadline hit on the operation's own timeout to ErrTimeout,
// leaving cancellation of the caller's context untouched.
func classify(parent, op context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if op.Err() != nil {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

// DecodeItems leniently decodes a probe result. Entries that are not objects
// are skipped; non-string fields are ignored.
func DecodeItems(raw []byte) []RawItem {
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil
	}

	items := make([]RawItem, 0, len(entries))
	for _, entry := range entries {
		var fields map[string]interface{}
		if err := json.Unmarshal(entry, &fields); err != nil || fields == nil {
			continue
		}
		item := RawItem{
			Sender: stringField(fields, "sender"),
			Text:   stringField(fields, "text"),
			Time:   stringField(fields, "time"),
		}
		if unread, ok := fields["unread"].(bool); ok {
			item.Unread = unread
		}
		items = append(items, item)
	}
	return items
}

func stringField(fields map[string]interface{}, key string) string {
	s, _ := fields[key].(string)
	return s
}
