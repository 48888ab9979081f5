// Package portaltest provides an in-process imitation of the authentication service and the grade service for tests.
package portaltest

import (
	"fmt"
	"github.com/skybi/grade-proxy/internal/gid"
	"github.com/skybi/grade-proxy/internal/secret"
	"html"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

const (
	// Salt is the password encryption salt served by the fake login page
	Salt = "PortalTestSalt16xyz"

	// LT and Execution are the hidden form values served by the fake login page
	LT        = "LT-42-portaltest"
	Execution = "e1s1-portaltest"

	sessionCookie = "CASTGC"

	// Any IV works as the first plaintext block lies inside the random prefix
	decryptionIV = "AAAAAAAAAAAAAAAA"
)

// SampleGrades is a grade service payload containing two records
const SampleGrades = `{"code":"0","datas":{"xscjcx":{"totalSize":2,"pageSize":999,"rows":[{"XNXQDM":"2024-2025-1","ZCJ":"92"},{"XNXQDM":"2023-2024-2","ZCJ":"88.5"}]}}}`

// Account describes the user the fake portal accepts
type Account struct {
	Identifier string
	Secret     string
	GID        string
}

// Server imitates the authentication service and the grade service on a single httptest server
type Server struct {
	*httptest.Server

	account Account

	mtx          sync.Mutex
	omitFields   map[string]bool
	gradeBody    string
	lastService  string
	lastReferer  string
	lastSetting  string
	loginGets    atomic.Int32
	loginPosts   atomic.Int32
	gradeQueries atomic.Int32
}

// NewServer starts a new fake portal accepting the given account.
// The server is closed automatically when the test finishes.
func NewServer(t testing.TB, account Account) *Server {
	t.Helper()
	server := &Server{
		account:    account,
		omitFields: map[string]bool{},
		gradeBody:  SampleGrades,
	}
	server.Server = httptest.NewServer(http.HandlerFunc(server.handle))
	t.Cleanup(server.Close)
	return server
}

// BaseURL returns the base URL usable both as the authentication and the application base URL
func (server *Server) BaseURL() string {
	return server.Server.URL
}

// OmitField removes a hidden field (lt, execution or pwdEncryptSalt) from the login page
func (server *Server) OmitField(name string) {
	server.mtx.Lock()
	defer server.mtx.Unlock()
	server.omitFields[name] = true
}

// SetGradeBody replaces the body sent by the grade query endpoint
func (server *Server) SetGradeBody(body string) {
	server.mtx.Lock()
	defer server.mtx.Unlock()
	server.gradeBody = body
}

// LoginGets returns the amount of login page requests
func (server *Server) LoginGets() int {
	return int(server.loginGets.Load())
}

// LoginPosts returns the amount of login form submissions
func (server *Server) LoginPosts() int {
	return int(server.loginPosts.Load())
}

// GradeQueries returns the amount of grade queries
func (server *Server) GradeQueries() int {
	return int(server.gradeQueries.Load())
}

// LastService returns the decoded service parameter of the last login page request
func (server *Server) LastService() string {
	server.mtx.Lock()
	defer server.mtx.Unlock()
	return server.lastService
}

// LastGradeReferer returns the Referer header of the last grade query
func (server *Server) LastGradeReferer() string {
	server.mtx.Lock()
	defer server.mtx.Unlock()
	return server.lastReferer
}

// LastQuerySetting returns the querySetting form value of the last grade query
func (server *Server) LastQuerySetting() string {
	server.mtx.Lock()
	defer server.mtx.Unlock()
	return server.lastSetting
}

func (server *Server) handle(writer http.ResponseWriter, request *http.Request) {
	switch {
	case request.URL.Path == "/authserver/login" && request.Method == http.MethodGet:
		server.handleLoginPage(writer, request)
	case request.URL.Path == "/authserver/login" && request.Method == http.MethodPost:
		server.handleLoginSubmit(writer, request)
	case request.URL.Path == "/jwapp/sys/cjcx/*default/index.do":
		server.handleGradeIndex(writer, request)
	case request.URL.Path == "/jwapp/sys/cjcx/modules/cjcx/xscjcx.do" && request.Method == http.MethodPost:
		server.handleGradeQuery(writer, request)
	default:
		http.NotFound(writer, request)
	}
}

func (server *Server) handleLoginPage(writer http.ResponseWriter, request *http.Request) {
	server.loginGets.Add(1)

	server.mtx.Lock()
	server.lastService = request.URL.Query().Get("service")
	omit := make(map[string]bool, len(server.omitFields))
	for key, val := range server.omitFields {
		omit[key] = val
	}
	server.mtx.Unlock()

	writer.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(writer, loginPage("", omit))
}

func (server *Server) handleLoginSubmit(writer http.ResponseWriter, request *http.Request) {
	server.loginPosts.Add(1)
	if err := request.ParseForm(); err != nil {
		http.Error(writer, err.Error(), http.StatusBadRequest)
		return
	}

	form := request.PostForm
	ok := form.Get("lt") == LT &&
		form.Get("execution") == Execution &&
		form.Get("_eventId") == "submit" &&
		form.Get("username") == server.account.Identifier &&
		server.passwordMatches(form.Get("password"))

	// The gid travels inside the service parameter of the URL the form is posted to
	service, err := url.Parse(request.URL.Query().Get("service"))
	ok = ok && err == nil && service.Query().Get("gid_") == server.account.GID && gid.Valid(server.account.GID)

	if !ok {
		writer.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(writer, loginPage("您提供的用户名或者密码有误", map[string]bool{}))
		return
	}

	http.SetCookie(writer, &http.Cookie{Name: sessionCookie, Value: "TGT-portaltest", Path: "/"})
	http.Redirect(writer, request, service.Path+"?"+service.RawQuery, http.StatusFound)
}

func (server *Server) handleGradeIndex(writer http.ResponseWriter, request *http.Request) {
	if _, err := request.Cookie(sessionCookie); err != nil {
		http.Error(writer, "not logged in", http.StatusUnauthorized)
		return
	}
	writer.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(writer, "<html><head><title>成绩查询</title></head><body></body></html>")
}

func (server *Server) handleGradeQuery(writer http.ResponseWriter, request *http.Request) {
	server.gradeQueries.Add(1)
	if err := request.ParseForm(); err != nil {
		http.Error(writer, err.Error(), http.StatusBadRequest)
		return
	}

	server.mtx.Lock()
	server.lastReferer = request.Header.Get("Referer")
	server.lastSetting = request.PostForm.Get("querySetting")
	body := server.gradeBody
	server.mtx.Unlock()

	if _, err := request.Cookie(sessionCookie); err != nil {
		http.Error(writer, "not logged in", http.StatusUnauthorized)
		return
	}
	if request.Header.Get("X-Requested-With") != "XMLHttpRequest" {
		http.Error(writer, "missing ajax marker", http.StatusForbidden)
		return
	}
	writer.Header().Set("Content-Type", "application/json;charset=UTF-8")
	fmt.Fprint(writer, body)
}

func (server *Server) passwordMatches(encrypted string) bool {
	decrypted, err := secret.DecryptPassword(encrypted, Salt, decryptionIV)
	if err != nil || len(decrypted) < secret.PrefixLength {
		return false
	}
	return decrypted[secret.PrefixLength:] == server.account.Secret
}

func loginPage(message string, omit map[string]bool) string {
	var builder strings.Builder
	builder.WriteString("<html><head><title>北京大学医学部统一身份认证平台</title></head><body>")
	builder.WriteString(`<form id="pwdFromId" method="post">`)
	builder.WriteString(`<input id="username" name="username"/><input id="password" type="password"/>`)
	if !omit["lt"] {
		builder.WriteString(`<input type="hidden" name="lt" value="` + LT + `"/>`)
	}
	if !omit["execution"] {
		builder.WriteString(`<input type="hidden" name="execution" value="` + Execution + `"/>`)
	}
	if !omit["pwdEncryptSalt"] {
		builder.WriteString(`<input type="hidden" id="pwdEncryptSalt" value="` + Salt + `"/>`)
	}
	if message != "" {
		builder.WriteString(`<span id="showErrorTip">` + html.EscapeString(message) + `</span>`)
	}
	builder.WriteString(`</form></body></html>`)
	return builder.String()
}
