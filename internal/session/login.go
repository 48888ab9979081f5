package session

import (
	"bytes"
	"context"
	"fmt"
	"github.com/PuerkitoBio/goquery"
	"github.com/skybi/grade-proxy/internal/secret"
	"net/http"
	"net/url"
	"strconv"
)

// LoginPageMarker is the title text of the authentication service's login page.
// Finding it in the response to the login form submission means the login was rejected.
const LoginPageMarker = "统一身份认证平台"

// loginForm holds the hidden fields harvested from the login page
type loginForm struct {
	LT        string
	Execution string
	Salt      string
}

// Login logs in at the central authentication service using the session's credentials and gid.
// On success, the URL reached after the redirect chain is remembered as the referer for subsequent queries.
// Calling Login again re-runs the whole handshake.
func (session *Session) Login(ctx context.Context) error {
	// Fetch the login page and harvest the hidden form fields
	page, err := session.get(ctx, session.loginURL(), nil)
	if err != nil {
		return fmt.Errorf("load login page: %w", err)
	}
	form, err := parseLoginForm(page.Body)
	if err != nil {
		return err
	}

	// Encrypt the password using the salt the server provided
	encrypted, err := secret.EncryptPassword(session.creds.Secret, form.Salt)
	if err != nil {
		return fmt.Errorf("encrypt password: %w", err)
	}

	// Submit the form and follow the redirect chain into the grade application
	values := url.Values{
		"username":  {session.creds.Identifier},
		"password":  {encrypted},
		"captcha":   {""},
		"_eventId":  {"submit"},
		"cllt":      {"userNameLogin"},
		"dllt":      {"generalLogin"},
		"lt":        {form.LT},
		"execution": {form.Execution},
		"rmShown":   {"1"},
	}
	header := http.Header{}
	header.Set("Referer", page.URL)
	header.Set("Origin", session.opts.AuthBaseURL)
	header.Set("Content-Type", "application/x-www-form-urlencoded")
	result, err := session.post(ctx, page.URL, values, header)
	if err != nil {
		return fmt.Errorf("submit login form: %w", err)
	}
	if bytes.Contains(result.Body, []byte(LoginPageMarker)) {
		session.logger.Info().Msg("login was rejected by the authentication service")
		return ErrAuthentication
	}

	// Remember the final URL as the referer for the grade query
	referer := result.URL
	if referer == "" {
		referer = session.gradeIndexURL()
	}
	session.referer = referer
	session.header.Set("Referer", referer)
	session.logger.Info().Msg("logged in")
	return nil
}

// loginURL builds the authentication service URL whose service parameter points to the grade application
func (session *Session) loginURL() string {
	service := fmt.Sprintf(
		"%s?t_s=%s&amp_sec_version_=1&gid_=%s&EMAP_LANG=zh&THEME=bjmu#/cjcx",
		session.gradeIndexURL(),
		strconv.FormatInt(session.now().UnixMilli(), 10),
		session.gid,
	)
	return session.opts.AuthBaseURL + loginPath + "?service=" + url.QueryEscape(service)
}

func (session *Session) gradeIndexURL() string {
	return session.opts.AppsBaseURL + gradeIndexPath
}

// parseLoginForm extracts the login ticket, the execution token and the password encryption salt out of the login
// page. Every one of them is required.
func parseLoginForm(body []byte) (*loginForm, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse login page: %w", err)
	}

	var missing []string
	lookup := func(name, selector string) string {
		value, ok := doc.Find(selector).First().Attr("value")
		if !ok {
			missing = append(missing, name)
		}
		return value
	}
	form := &loginForm{
		LT:        lookup("lt", `input[name="lt"]`),
		Execution: lookup("execution", `input[name="execution"]`),
		Salt:      lookup("pwdEncryptSalt", `#pwdEncryptSalt`),
	}
	if len(missing) > 0 {
		return nil, &FormError{Missing: missing}
	}
	return form, nil
}
