package acquire

import (
	"context"
	"errors"
	"fmt"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/skybi/grade-proxy/internal/credentials"
	"github.com/skybi/grade-proxy/internal/gid"
	"time"
)

// urlPollInterval is the interval in which the rod engine checks the page URL for a gid
const urlPollInterval = 250 * time.Millisecond

// RodAcquirer implements the Acquirer interface using a Chromium instance driven by rod.
// Pages are patched using go-rod/stealth so the portal sees a regular browser.
type RodAcquirer struct {
	Options Options
}

var _ Acquirer = (*RodAcquirer)(nil)

// Acquire logs in using the given credentials and returns a validated gid
func (acquirer *RodAcquirer) Acquire(ctx context.Context, creds credentials.Credentials) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	opts := acquirer.Options

	browserLauncher := launcher.New().
		Context(ctx).
		Headless(opts.Headless).
		NoSandbox(true).
		Set("disable-dev-shm-usage")
	if opts.BrowserBin != "" {
		browserLauncher = browserLauncher.Bin(opts.BrowserBin)
	}
	controlURL, err := browserLauncher.Launch()
	if err != nil {
		return "", fmt.Errorf("launch browser: %w", err)
	}
	defer browserLauncher.Cleanup()
	defer browserLauncher.Kill()

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return "", fmt.Errorf("connect to browser: %w", err)
	}
	defer browser.Close()

	incognito, err := browser.Incognito()
	if err != nil {
		return "", fmt.Errorf("create browser context: %w", err)
	}
	defer incognito.Close()

	page, err := stealth.Page(incognito)
	if err != nil {
		return "", fmt.Errorf("create page: %w", err)
	}

	token, err := runFlow(&rodPage{ctx: ctx, tab: page, opts: opts}, opts, creds, EngineRod)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	return token, err
}

// rodPage drives a single rod tab; every wait is bounded by a timeout derived from ctx
type rodPage struct {
	ctx    context.Context
	tab    *rod.Page
	opts   Options
	submit *rod.Element
}

var _ browserPage = (*rodPage)(nil)

func (page *rodPage) open(url string) error {
	bounded, cancel := within(page.ctx, page.tab, page.opts.PageTimeout)
	defer cancel()
	if err := bounded.Navigate(url); err != nil {
		return page.timeout(err)
	}
	// The document is usable once navigated; a slow load event is not an error
	if err := bounded.WaitLoad(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return page.timeout(err)
	}
	return page.ctx.Err()
}

func (page *rodPage) currentURL() string {
	info, err := page.tab.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (page *rodPage) fillLogin(creds credentials.Credentials) error {
	form, cancel := within(page.ctx, page.tab, page.opts.PageTimeout)
	defer cancel()

	username, err := pickVisibleElement(form, page.opts.UsernameSelector)
	if err != nil {
		return fmt.Errorf("find username field: %w", err)
	}
	password, err := pickVisibleElement(form, page.opts.PasswordSelector)
	if err != nil {
		return fmt.Errorf("find password field: %w", err)
	}
	submit, err := pickVisibleElement(form, page.opts.SubmitSelector)
	if err != nil {
		return fmt.Errorf("find submit control: %w", err)
	}

	if err := username.WaitVisible(); err != nil {
		return fmt.Errorf("wait for username field: %w", err)
	}
	if err := username.Input(creds.Identifier); err != nil {
		return fmt.Errorf("fill username field: %w", err)
	}
	if err := password.Input(creds.Secret); err != nil {
		return fmt.Errorf("fill password field: %w", err)
	}
	if err := submit.WaitVisible(); err != nil {
		return fmt.Errorf("wait for submit control: %w", err)
	}
	page.submit = submit
	return nil
}

func (page *rodPage) submitLogin() error {
	timeoutCtx, cancel := context.WithTimeout(page.ctx, page.opts.PageTimeout)
	defer cancel()

	waitNavigation := page.tab.Context(timeoutCtx).WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := page.submit.Context(timeoutCtx).Click(proto.InputMouseButtonLeft, 1); err != nil {
		return page.timeout(err)
	}
	waitNavigation()
	if err := page.ctx.Err(); err != nil {
		return err
	}
	if timeoutCtx.Err() != nil {
		return errTimeout
	}
	return nil
}

func (page *rodPage) sleep(d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-page.ctx.Done():
		return page.ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (page *rodPage) clickHall() error {
	bounded, cancel := within(page.ctx, page.tab, page.opts.AffordanceTimeout)
	defer cancel()
	return page.timeout(clickElement(bounded.ElementR(page.opts.HallSelector, page.opts.HallText)))
}

func (page *rodPage) clickGradeForPopup() (browserPage, error) {
	bounded, cancel := within(page.ctx, page.tab, page.opts.AffordanceTimeout)
	defer cancel()

	waitPopup := bounded.WaitOpen()
	if err := clickElement(bounded.Element(page.opts.GradeSelector)); err != nil {
		return nil, page.timeout(err)
	}
	popup, err := waitPopup()
	if err != nil {
		if ctxErr := page.ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: no popup opened: %v", errTimeout, err)
	}
	return &rodPage{ctx: page.ctx, tab: popup.Context(page.ctx), opts: page.opts}, nil
}

func (page *rodPage) clickGrade() error {
	bounded, cancel := within(page.ctx, page.tab, page.opts.AffordanceTimeout)
	defer cancel()
	return page.timeout(clickElement(bounded.Element(page.opts.GradeSelector)))
}

func (page *rodPage) waitLoaded() error {
	bounded, cancel := within(page.ctx, page.tab, page.opts.PageTimeout)
	defer cancel()
	return page.timeout(bounded.WaitLoad())
}

// waitForGID polls the URL since rod cannot wait for fragment-only changes
func (page *rodPage) waitForGID() error {
	deadline := time.NewTimer(page.opts.TokenTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(urlPollInterval)
	defer ticker.Stop()

	for {
		if gid.Pattern.MatchString(page.currentURL()) {
			return nil
		}
		select {
		case <-page.ctx.Done():
			return page.ctx.Err()
		case <-deadline.C:
			return errTimeout
		case <-ticker.C:
		}
	}
}

// timeout marks an expired bounded wait as errTimeout unless the whole acquisition was cancelled
func (page *rodPage) timeout(err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := page.ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", errTimeout, err)
	}
	return err
}

func pickVisibleElement(page *rod.Page, selector string) (*rod.Element, error) {
	// Element retries until at least one candidate exists
	first, err := page.Element(selector)
	if err != nil {
		return nil, err
	}
	candidates, err := page.Elements(selector)
	if err != nil {
		return nil, err
	}
	picked, ok := PickVisible([]*rod.Element(candidates), func(candidate *rod.Element) (bool, error) {
		return candidate.Visible()
	})
	if !ok {
		return first, nil
	}
	return picked, nil
}

func clickElement(element *rod.Element, err error) error {
	if err != nil {
		return err
	}
	return element.Click(proto.InputMouseButtonLeft, 1)
}

func within(ctx context.Context, page *rod.Page, timeout time.Duration) (*rod.Page, context.CancelFunc) {
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	return page.Context(timeoutCtx), cancel
}
