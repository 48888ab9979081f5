package acquire

import (
	"context"
	"errors"
	"fmt"
	"github.com/skybi/grade-proxy/internal/credentials"
	"strings"
	"time"
)

const (
	EnginePlaywright = "playwright"
	EngineRod        = "rod"
)

var (
	// ErrAuthentication is returned when the browser is still on the login form after submitting the credentials
	ErrAuthentication = errors.New("the central authentication service rejected the login (check the student ID and password)")

	ErrUnknownEngine = errors.New("unknown browser engine")
)

// TokenExtractionError is returned when no valid gid could be found in the URL the browser ended up at
type TokenExtractionError struct {
	URL string
}

func (err *TokenExtractionError) Error() string {
	return fmt.Sprintf("no valid gid found in the grade query page URL: %s", err.URL)
}

// Acquirer retrieves a gid by driving a browser through the login and the grade portal
type Acquirer interface {
	// Acquire logs in using the given credentials and returns a validated gid.
	// Every browser resource is released before Acquire returns, including on context cancellation.
	Acquire(ctx context.Context, creds credentials.Credentials) (string, error)
}

// Options configures the browser flow
type Options struct {
	// EntryURL is the single-sign-on URL whose service parameter points to the service hall
	EntryURL string

	// LoginURLMarker identifies the URL of the login form
	LoginURLMarker string

	UsernameSelector string
	PasswordSelector string
	SubmitSelector   string

	// HallSelector matches the service hall entry, which may or may not be shown after login
	HallSelector string
	HallText     string

	// GradeSelector matches the grade query entry opening the page whose URL carries the gid
	GradeSelector string

	// TargetURL is navigated to directly if the grade query entry does not show up
	TargetURL string

	Headless bool

	// BrowserBin overrides the browser executable (rod engine only)
	BrowserBin string

	// PageTimeout bounds navigations and waits for the login form
	PageTimeout time.Duration

	// AffordanceTimeout bounds waits for the service hall and grade query entries
	AffordanceTimeout time.Duration

	// TokenTimeout bounds the wait for a gid-bearing URL
	TokenTimeout time.Duration

	// GraceDelay is waited once if the navigation after submitting the login form does not settle in time
	GraceDelay time.Duration
}

// DefaultOptions returns the options matching the production portal
func DefaultOptions() Options {
	return Options{
		EntryURL:          "https://auth.bjmu.edu.cn/authserver/login?service=http%3A%2F%2Fapps.bjmu.edu.cn%2Flogin%3Fservice%3Dhttp%3A%2F%2Fapps.bjmu.edu.cn%2F%2Fywtb-portal%2Fofficialbjmu%2Findex.html",
		LoginURLMarker:    "auth.bjmu.edu.cn/authserver/login",
		UsernameSelector:  "input#username",
		PasswordSelector:  "input#password",
		SubmitSelector:    "a#login_submit",
		HallSelector:      ".name",
		HallText:          "服务大厅",
		GradeSelector:     "label[title='成绩查询']",
		TargetURL:         "https://apps.bjmu.edu.cn/jwapp/sys/cjcx/*default/index.do#/cjcx",
		Headless:          true,
		PageTimeout:       30 * time.Second,
		AffordanceTimeout: 10 * time.Second,
		TokenTimeout:      15 * time.Second,
		GraceDelay:        3 * time.Second,
	}
}

// New creates a new acquirer using the given browser engine
func New(engine string, opts Options) (Acquirer, error) {
	switch strings.ToLower(strings.TrimSpace(engine)) {
	case "", EnginePlaywright:
		return &PlaywrightAcquirer{Options: opts}, nil
	case EngineRod:
		return &RodAcquirer{Options: opts}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, engine)
	}
}

// onLoginForm reports whether the given URL belongs to the login form
func (opts Options) onLoginForm(url string) bool {
	return strings.Contains(url, opts.LoginURLMarker)
}

// hallSelector returns a playwright selector matching the service hall entry by its text
func (opts Options) hallSelector() string {
	return fmt.Sprintf("%s:has-text('%s')", opts.HallSelector, opts.HallText)
}

func milliseconds(d time.Duration) *float64 {
	ms := float64(d.Milliseconds())
	return &ms
}
