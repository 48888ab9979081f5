package acquire

import (
	"errors"
	"fmt"
	"github.com/rs/zerolog/log"
	"github.com/skybi/grade-proxy/internal/credentials"
	"github.com/skybi/grade-proxy/internal/gid"
	"time"
)

// errTimeout marks a bounded browser wait that ran out.
// Whether that ends the acquisition is decided by the flow, not by the engine.
var errTimeout = errors.New("browser wait timed out")

// browserPage is a tab as seen by the acquisition flow.
// Engines translate their own timeouts into errTimeout; every other error is fatal.
type browserPage interface {
	// open navigates to the URL and waits for its document to load
	open(url string) error

	// currentURL returns the URL the tab currently shows
	currentURL() string

	// fillLogin fills the visible username and password fields and waits for the submit control
	fillLogin(creds credentials.Credentials) error

	// submitLogin clicks the submit control and waits for the following navigation
	submitLogin() error

	sleep(d time.Duration) error

	// clickHall clicks the service hall entry
	clickHall() error

	// clickGradeForPopup clicks the grade query entry and returns the popup it opened
	clickGradeForPopup() (browserPage, error)

	// clickGrade clicks the grade query entry expecting no popup
	clickGrade() error

	waitLoaded() error

	// waitForGID waits until the URL carries a gid
	waitForGID() error
}

// runFlow logs in if the entry page asks for it, reaches the grade query page and extracts the gid from its URL
func runFlow(page browserPage, opts Options, creds credentials.Credentials, engine string) (string, error) {
	// Open the single-sign-on entry which redirects to the login form if necessary
	if err := page.open(opts.EntryURL); err != nil {
		return "", fmt.Errorf("open entry page: %w", err)
	}
	if opts.onLoginForm(page.currentURL()) {
		if err := login(page, opts, creds); err != nil {
			return "", err
		}
	}
	log.Debug().Str("engine", engine).Msg("logged in, looking for the grade query page")

	// Reach the page carrying the gid
	target, err := openGradePage(page, opts, engine)
	if err != nil {
		return "", err
	}
	if err := target.waitLoaded(); err != nil && !errors.Is(err, errTimeout) {
		return "", fmt.Errorf("load grade query page: %w", err)
	}
	if err := target.waitForGID(); err != nil && !errors.Is(err, errTimeout) {
		return "", fmt.Errorf("wait for gid: %w", err)
	}

	final := target.currentURL()
	token, ok := gid.Extract(final)
	if !ok {
		return "", &TokenExtractionError{URL: final}
	}
	return token, nil
}

func login(page browserPage, opts Options, creds credentials.Credentials) error {
	if err := page.fillLogin(creds); err != nil {
		return err
	}

	// Submit and wait for the navigation away from the login form
	if err := page.submitLogin(); err != nil {
		if !errors.Is(err, errTimeout) {
			return fmt.Errorf("submit login form: %w", err)
		}
		// Some logins only redirect after a partial refresh; give them one grace period
		if err := page.sleep(opts.GraceDelay); err != nil {
			return err
		}
	}
	if opts.onLoginForm(page.currentURL()) {
		return ErrAuthentication
	}
	return nil
}

// openGradePage clicks the grade query entry and returns the page it opened.
// The entry usually opens a popup; if none appears it is clicked in the current page, and if it is missing entirely
// the target URL is opened directly.
func openGradePage(page browserPage, opts Options, engine string) (browserPage, error) {
	// The service hall entry only exists on some portal layouts
	if err := page.clickHall(); err != nil && !errors.Is(err, errTimeout) {
		return nil, fmt.Errorf("open service hall: %w", err)
	}

	popup, err := page.clickGradeForPopup()
	if err == nil {
		return popup, nil
	}
	if !errors.Is(err, errTimeout) {
		return nil, fmt.Errorf("open grade query popup: %w", err)
	}

	err = page.clickGrade()
	if err == nil {
		return page, nil
	}
	if !errors.Is(err, errTimeout) {
		return nil, fmt.Errorf("open grade query: %w", err)
	}

	log.Debug().Str("engine", engine).Msg("grade query entry not found, navigating directly")
	if err := page.open(opts.TargetURL); err != nil {
		return nil, fmt.Errorf("open grade query page: %w", err)
	}
	return page, nil
}
