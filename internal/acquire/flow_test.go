package acquire

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/skybi/grade-proxy/internal/credentials"
	"github.com/skybi/grade-proxy/internal/gid"
)

const (
	portalURL  = "https://apps.bjmu.edu.cn/ywtb-portal/officialbjmu/index.html"
	noTokenURL = "https://apps.bjmu.edu.cn/jwapp/sys/cjcx/*default/index.do#/cjcx"
)

var (
	flowGID     = strings.Repeat("Xy", gid.Length/2)
	gradeURL    = "https://apps.bjmu.edu.cn/jwapp/sys/cjcx/*default/index.do?gid_=" + flowGID + "#/cjcx"
	timedOut    = fmt.Errorf("%w: Timeout 10000ms exceeded", errTimeout)
	flowAccount = credentials.Credentials{Identifier: "2110301234", Secret: "correct horse"}
)

// mockPage is a mock for browserPage.
type mockPage struct {
	mock.Mock
}

func newMockPage(t *testing.T) *mockPage {
	page := new(mockPage)
	page.Test(t)
	t.Cleanup(func() {
		page.AssertExpectations(t)
	})
	return page
}

func (m *mockPage) open(url string) error {
	return m.Called(url).Error(0)
}

func (m *mockPage) currentURL() string {
	return m.Called().String(0)
}

func (m *mockPage) fillLogin(creds credentials.Credentials) error {
	return m.Called(creds).Error(0)
}

func (m *mockPage) submitLogin() error {
	return m.Called().Error(0)
}

func (m *mockPage) sleep(d time.Duration) error {
	return m.Called(d).Error(0)
}

func (m *mockPage) clickHall() error {
	return m.Called().Error(0)
}

func (m *mockPage) clickGradeForPopup() (browserPage, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(browserPage), args.Error(1)
}

func (m *mockPage) clickGrade() error {
	return m.Called().Error(0)
}

func (m *mockPage) waitLoaded() error {
	return m.Called().Error(0)
}

func (m *mockPage) waitForGID() error {
	return m.Called().Error(0)
}

// expectEntry expects the entry page to be opened and to end up at url
func expectEntry(page *mockPage, opts Options, url string) {
	page.On("open", opts.EntryURL).Return(nil).Once()
	page.On("currentURL").Return(url).Once()
}

// expectLoginForm expects the entry page to show the login form and the credentials to be filled in
func expectLoginForm(page *mockPage, opts Options) {
	expectEntry(page, opts, opts.EntryURL)
	page.On("fillLogin", flowAccount).Return(nil).Once()
}

// expectPopup expects the service hall and grade query entries to be clicked and returns the popup they open
func expectPopup(t *testing.T, page *mockPage) *mockPage {
	popup := newMockPage(t)
	page.On("clickHall").Return(nil).Once()
	page.On("clickGradeForPopup").Return(popup, nil).Once()
	return popup
}

// expectToken expects page to load and show url
func expectToken(page *mockPage, url string) {
	page.On("waitLoaded").Return(nil).Once()
	page.On("waitForGID").Return(nil).Once()
	page.On("currentURL").Return(url).Once()
}

func TestRunFlowLogin(t *testing.T) {
	opts := DefaultOptions()

	t.Run("logs in and reads the gid from the popup", func(t *testing.T) {
		page := newMockPage(t)
		expectLoginForm(page, opts)
		page.On("submitLogin").Return(nil).Once()
		page.On("currentURL").Return(portalURL).Once()
		expectToken(expectPopup(t, page), gradeURL)

		token, err := runFlow(page, opts, flowAccount, "mock")
		require.NoError(t, err)
		assert.Equal(t, flowGID, token)
	})

	t.Run("skips the form when already logged in", func(t *testing.T) {
		page := newMockPage(t)
		expectEntry(page, opts, portalURL)
		expectToken(expectPopup(t, page), gradeURL)

		token, err := runFlow(page, opts, flowAccount, "mock")
		require.NoError(t, err)
		assert.Equal(t, flowGID, token)
	})

	t.Run("waits one grace period when the navigation does not settle", func(t *testing.T) {
		page := newMockPage(t)
		expectLoginForm(page, opts)
		page.On("submitLogin").Return(timedOut).Once()
		page.On("sleep", opts.GraceDelay).Return(nil).Once()
		page.On("currentURL").Return(portalURL).Once()
		expectToken(expectPopup(t, page), gradeURL)

		token, err := runFlow(page, opts, flowAccount, "mock")
		require.NoError(t, err)
		assert.Equal(t, flowGID, token)
	})

	t.Run("still on the login form after the grace period", func(t *testing.T) {
		page := newMockPage(t)
		expectLoginForm(page, opts)
		page.On("submitLogin").Return(timedOut).Once()
		page.On("sleep", opts.GraceDelay).Return(nil).Once()
		page.On("currentURL").Return(opts.EntryURL).Once()

		_, err := runFlow(page, opts, flowAccount, "mock")
		assert.ErrorIs(t, err, ErrAuthentication)
	})

	t.Run("navigated back to the login form", func(t *testing.T) {
		page := newMockPage(t)
		expectLoginForm(page, opts)
		page.On("submitLogin").Return(nil).Once()
		page.On("currentURL").Return(opts.EntryURL + "&error=1").Once()

		_, err := runFlow(page, opts, flowAccount, "mock")
		assert.ErrorIs(t, err, ErrAuthentication)
		page.AssertNotCalled(t, "sleep", mock.Anything)
	})

	t.Run("submit failures are not authentication failures", func(t *testing.T) {
		page := newMockPage(t)
		expectLoginForm(page, opts)
		page.On("submitLogin").Return(errors.New("target closed")).Once()

		_, err := runFlow(page, opts, flowAccount, "mock")
		assert.ErrorContains(t, err, "submit login form: target closed")
		assert.NotErrorIs(t, err, ErrAuthentication)
	})

	t.Run("missing form fields", func(t *testing.T) {
		page := newMockPage(t)
		expectEntry(page, opts, opts.EntryURL)
		page.On("fillLogin", flowAccount).Return(fmt.Errorf("find username field: %w", timedOut)).Once()

		_, err := runFlow(page, opts, flowAccount, "mock")
		assert.ErrorContains(t, err, "find username field")
		page.AssertNotCalled(t, "submitLogin")
	})

	t.Run("unreachable entry page", func(t *testing.T) {
		page := newMockPage(t)
		page.On("open", opts.EntryURL).Return(errors.New("net::ERR_NAME_NOT_RESOLVED")).Once()

		_, err := runFlow(page, opts, flowAccount, "mock")
		assert.ErrorContains(t, err, "open entry page: net::ERR_NAME_NOT_RESOLVED")
	})

	t.Run("cancellation during the grace period", func(t *testing.T) {
		page := newMockPage(t)
		expectLoginForm(page, opts)
		page.On("submitLogin").Return(timedOut).Once()
		page.On("sleep", opts.GraceDelay).Return(context.Canceled).Once()

		_, err := runFlow(page, opts, flowAccount, "mock")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRunFlowGradePage(t *testing.T) {
	opts := DefaultOptions()

	t.Run("missing service hall entry is skipped", func(t *testing.T) {
		page := newMockPage(t)
		popup := newMockPage(t)
		expectEntry(page, opts, portalURL)
		page.On("clickHall").Return(timedOut).Once()
		page.On("clickGradeForPopup").Return(popup, nil).Once()
		expectToken(popup, gradeURL)

		token, err := runFlow(page, opts, flowAccount, "mock")
		require.NoError(t, err)
		assert.Equal(t, flowGID, token)
	})

	t.Run("failing service hall entry", func(t *testing.T) {
		page := newMockPage(t)
		expectEntry(page, opts, portalURL)
		page.On("clickHall").Return(errors.New("element is detached")).Once()

		_, err := runFlow(page, opts, flowAccount, "mock")
		assert.ErrorContains(t, err, "open service hall: element is detached")
		page.AssertNotCalled(t, "clickGradeForPopup")
	})

	t.Run("falls back to an in-page click without a popup", func(t *testing.T) {
		page := newMockPage(t)
		expectEntry(page, opts, portalURL)
		page.On("clickHall").Return(nil).Once()
		page.On("clickGradeForPopup").Return(nil, timedOut).Once()
		page.On("clickGrade").Return(nil).Once()
		expectToken(page, gradeURL)

		token, err := runFlow(page, opts, flowAccount, "mock")
		require.NoError(t, err)
		assert.Equal(t, flowGID, token)
	})

	t.Run("navigates directly without a grade query entry", func(t *testing.T) {
		page := newMockPage(t)
		expectEntry(page, opts, portalURL)
		page.On("clickHall").Return(timedOut).Once()
		page.On("clickGradeForPopup").Return(nil, timedOut).Once()
		page.On("clickGrade").Return(timedOut).Once()
		page.On("open", opts.TargetURL).Return(nil).Once()
		expectToken(page, gradeURL)

		token, err := runFlow(page, opts, flowAccount, "mock")
		require.NoError(t, err)
		assert.Equal(t, flowGID, token)
	})

	t.Run("failing popup click", func(t *testing.T) {
		page := newMockPage(t)
		expectEntry(page, opts, portalURL)
		page.On("clickHall").Return(nil).Once()
		page.On("clickGradeForPopup").Return(nil, errors.New("browser has been closed")).Once()

		_, err := runFlow(page, opts, flowAccount, "mock")
		assert.ErrorContains(t, err, "open grade query popup: browser has been closed")
		page.AssertNotCalled(t, "clickGrade")
	})

	t.Run("failing in-page click", func(t *testing.T) {
		page := newMockPage(t)
		expectEntry(page, opts, portalURL)
		page.On("clickHall").Return(nil).Once()
		page.On("clickGradeForPopup").Return(nil, timedOut).Once()
		page.On("clickGrade").Return(errors.New("browser has been closed")).Once()

		_, err := runFlow(page, opts, flowAccount, "mock")
		assert.ErrorContains(t, err, "open grade query: browser has been closed")
		page.AssertNotCalled(t, "open", opts.TargetURL)
	})

	t.Run("failing direct navigation", func(t *testing.T) {
		page := newMockPage(t)
		expectEntry(page, opts, portalURL)
		page.On("clickHall").Return(nil).Once()
		page.On("clickGradeForPopup").Return(nil, timedOut).Once()
		page.On("clickGrade").Return(timedOut).Once()
		page.On("open", opts.TargetURL).Return(timedOut).Once()

		_, err := runFlow(page, opts, flowAccount, "mock")
		assert.ErrorContains(t, err, "open grade query page")
		assert.ErrorIs(t, err, errTimeout)
	})
}

func TestRunFlowToken(t *testing.T) {
	opts := DefaultOptions()

	t.Run("slow load and gid wait are not fatal", func(t *testing.T) {
		page := newMockPage(t)
		expectEntry(page, opts, portalURL)
		popup := expectPopup(t, page)
		popup.On("waitLoaded").Return(timedOut).Once()
		popup.On("waitForGID").Return(timedOut).Once()
		popup.On("currentURL").Return(gradeURL).Once()

		token, err := runFlow(page, opts, flowAccount, "mock")
		require.NoError(t, err)
		assert.Equal(t, flowGID, token)
	})

	t.Run("final URL without a gid", func(t *testing.T) {
		page := newMockPage(t)
		expectEntry(page, opts, portalURL)
		popup := expectPopup(t, page)
		popup.On("waitLoaded").Return(nil).Once()
		popup.On("waitForGID").Return(timedOut).Once()
		popup.On("currentURL").Return(noTokenURL).Once()

		_, err := runFlow(page, opts, flowAccount, "mock")
		var extractionErr *TokenExtractionError
		require.ErrorAs(t, err, &extractionErr)
		assert.Equal(t, noTokenURL, extractionErr.URL)
	})

	t.Run("load failures end the acquisition", func(t *testing.T) {
		page := newMockPage(t)
		expectEntry(page, opts, portalURL)
		popup := expectPopup(t, page)
		popup.On("waitLoaded").Return(errors.New("target crashed")).Once()

		_, err := runFlow(page, opts, flowAccount, "mock")
		assert.ErrorContains(t, err, "load grade query page: target crashed")
		popup.AssertNotCalled(t, "waitForGID")
	})

	t.Run("cancellation while waiting for the gid", func(t *testing.T) {
		page := newMockPage(t)
		expectEntry(page, opts, portalURL)
		popup := expectPopup(t, page)
		popup.On("waitLoaded").Return(nil).Once()
		popup.On("waitForGID").Return(context.Canceled).Once()

		_, err := runFlow(page, opts, flowAccount, "mock")
		assert.ErrorIs(t, err, context.Canceled)
	})
}
