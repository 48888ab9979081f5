package acquire

import (
	"context"
	"errors"
	"fmt"
	"github.com/playwright-community/playwright-go"
	"github.com/skybi/grade-proxy/internal/credentials"
	"github.com/skybi/grade-proxy/internal/gid"
	"time"
)

// PlaywrightAcquirer implements the Acquirer interface using a Chromium instance driven by Playwright.
// Every call starts its own driver, browser and browser context.
type PlaywrightAcquirer struct {
	Options Options
}

var _ Acquirer = (*PlaywrightAcquirer)(nil)

// InstallPlaywright downloads the Playwright driver and the Chromium build it requires
func InstallPlaywright() error {
	return playwright.Install(&playwright.RunOptions{
		Browsers: []string{"chromium"},
	})
}

// Acquire logs in using the given credentials and returns a validated gid
func (acquirer *PlaywrightAcquirer) Acquire(ctx context.Context, creds credentials.Credentials) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	pw, err := playwright.Run()
	if err != nil {
		return "", fmt.Errorf("start playwright: %w", err)
	}
	defer pw.Stop()

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(acquirer.Options.Headless),
		Args:     []string{"--no-sandbox", "--disable-dev-shm-usage"},
	})
	if err != nil {
		return "", fmt.Errorf("launch browser: %w", err)
	}
	defer browser.Close()

	// Closing the browser makes every pending Playwright call fail once the context is done
	stop := context.AfterFunc(ctx, func() {
		browser.Close()
	})
	defer stop()

	browserContext, err := browser.NewContext()
	if err != nil {
		return "", fmt.Errorf("create browser context: %w", err)
	}
	defer browserContext.Close()

	page, err := browserContext.NewPage()
	if err != nil {
		return "", fmt.Errorf("create page: %w", err)
	}
	page.SetDefaultTimeout(*milliseconds(acquirer.Options.PageTimeout))

	token, err := runFlow(&playwrightPage{tab: page, opts: acquirer.Options}, acquirer.Options, creds, EnginePlaywright)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	return token, err
}

// playwrightPage drives a single Playwright tab
type playwrightPage struct {
	tab    playwright.Page
	opts   Options
	submit playwright.Locator
}

var _ browserPage = (*playwrightPage)(nil)

func (page *playwrightPage) open(url string) error {
	_, err := page.tab.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	return playwrightTimeout(err)
}

func (page *playwrightPage) currentURL() string {
	return page.tab.URL()
}

func (page *playwrightPage) fillLogin(creds credentials.Credentials) error {
	// The form may render several instances of every field; only the visible ones accept input
	username, err := pickVisibleLocator(page.tab.Locator(page.opts.UsernameSelector))
	if err != nil {
		return fmt.Errorf("find username field: %w", err)
	}
	password, err := pickVisibleLocator(page.tab.Locator(page.opts.PasswordSelector))
	if err != nil {
		return fmt.Errorf("find password field: %w", err)
	}
	submit, err := pickVisibleLocator(page.tab.Locator(page.opts.SubmitSelector))
	if err != nil {
		return fmt.Errorf("find submit control: %w", err)
	}

	visible := playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: milliseconds(page.opts.PageTimeout),
	}
	if err := username.WaitFor(visible); err != nil {
		return fmt.Errorf("wait for username field: %w", err)
	}
	if err := username.Fill(creds.Identifier); err != nil {
		return fmt.Errorf("fill username field: %w", err)
	}
	if err := password.Fill(creds.Secret); err != nil {
		return fmt.Errorf("fill password field: %w", err)
	}
	if err := submit.WaitFor(visible); err != nil {
		return fmt.Errorf("wait for submit control: %w", err)
	}
	page.submit = submit
	return nil
}

func (page *playwrightPage) submitLogin() error {
	_, err := page.tab.ExpectNavigation(func() error {
		return page.submit.Click()
	}, playwright.PageExpectNavigationOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   milliseconds(page.opts.PageTimeout),
	})
	return playwrightTimeout(err)
}

func (page *playwrightPage) sleep(d time.Duration) error {
	page.tab.WaitForTimeout(*milliseconds(d))
	return nil
}

func (page *playwrightPage) clickHall() error {
	return playwrightTimeout(page.tab.Locator(page.opts.hallSelector()).Click(page.affordanceClick()))
}

func (page *playwrightPage) clickGradeForPopup() (browserPage, error) {
	popup, err := page.tab.ExpectPopup(func() error {
		return page.tab.Locator(page.opts.GradeSelector).Click(page.affordanceClick())
	}, playwright.PageExpectPopupOptions{
		Timeout: milliseconds(page.opts.AffordanceTimeout),
	})
	if err != nil {
		return nil, playwrightTimeout(err)
	}
	return &playwrightPage{tab: popup, opts: page.opts}, nil
}

func (page *playwrightPage) clickGrade() error {
	return playwrightTimeout(page.tab.Locator(page.opts.GradeSelector).Click(page.affordanceClick()))
}

func (page *playwrightPage) waitLoaded() error {
	return playwrightTimeout(page.tab.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State: playwright.LoadStateDomcontentloaded,
	}))
}

func (page *playwrightPage) waitForGID() error {
	return playwrightTimeout(page.tab.WaitForURL(gid.Pattern, playwright.PageWaitForURLOptions{
		Timeout: milliseconds(page.opts.TokenTimeout),
	}))
}

func (page *playwrightPage) affordanceClick() playwright.LocatorClickOptions {
	return playwright.LocatorClickOptions{
		Timeout: milliseconds(page.opts.AffordanceTimeout),
	}
}

// playwrightTimeout marks Playwright timeouts as errTimeout
func playwrightTimeout(err error) error {
	if err != nil && errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%w: %v", errTimeout, err)
	}
	return err
}

func pickVisibleLocator(locator playwright.Locator) (playwright.Locator, error) {
	count, err := locator.Count()
	if err != nil {
		return nil, err
	}
	candidates := make([]playwright.Locator, count)
	for i := range candidates {
		candidates[i] = locator.Nth(i)
	}
	picked, ok := PickVisible(candidates, func(candidate playwright.Locator) (bool, error) {
		return candidate.IsVisible()
	})
	if !ok {
		// Nothing rendered yet; the caller waits for the first match to become visible
		return locator.First(), nil
	}
	return picked, nil
}
