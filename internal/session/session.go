package session

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/skybi/grade-proxy/internal/credentials"
	"github.com/skybi/grade-proxy/internal/gid"
	"golang.org/x/net/publicsuffix"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

const (
	loginPath      = "/authserver/login"
	gradeIndexPath = "/jwapp/sys/cjcx/*default/index.do"
	gradeQueryPath = "/jwapp/sys/cjcx/modules/cjcx/xscjcx.do"

	// maxBodySize caps every response body read by a session
	maxBodySize = 16 << 20
)

var defaultHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36",
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	"Accept-Language": "zh-CN,zh;q=0.9",
	"Connection":      "keep-alive",
}

// Options configures the remote endpoints and the HTTP client of a session
type Options struct {
	// AuthBaseURL is the base URL of the central authentication service
	AuthBaseURL string

	// AppsBaseURL is the base URL of the application hosting the grade query service
	AppsBaseURL string

	// InsecureSkipVerify disables TLS certificate verification for this session's client only.
	// The institution's certificate chain is frequently broken.
	InsecureSkipVerify bool

	// Timeout bounds every single HTTP round trip including redirects
	Timeout time.Duration

	// Transport overrides the underlying round tripper; InsecureSkipVerify is ignored if set
	Transport http.RoundTripper
}

// DefaultOptions returns the options matching the production endpoints
func DefaultOptions() Options {
	return Options{
		AuthBaseURL:        "https://auth.bjmu.edu.cn",
		AppsBaseURL:        "https://apps.bjmu.edu.cn",
		InsecureSkipVerify: true,
		Timeout:            30 * time.Second,
	}
}

// Session represents a stateful HTTP session at the grade portal.
// A session is created per operation and must not be shared between concurrent callers.
type Session struct {
	ID uuid.UUID

	opts   Options
	client *http.Client
	header http.Header
	logger zerolog.Logger
	now    func() time.Time

	creds   credentials.Credentials
	gid     string
	referer string
}

// New creates a new session for the given credentials and gid.
// The gid is validated before anything else happens.
func New(creds credentials.Credentials, token string, opts Options) (*Session, error) {
	token, err := gid.Validate(token)
	if err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	opts.AuthBaseURL = strings.TrimRight(opts.AuthBaseURL, "/")
	opts.AppsBaseURL = strings.TrimRight(opts.AppsBaseURL, "/")

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	transport := opts.Transport
	if transport == nil {
		base := http.DefaultTransport.(*http.Transport).Clone()
		if opts.InsecureSkipVerify {
			base.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		transport = base
	}

	header := make(http.Header, len(defaultHeaders))
	for key, value := range defaultHeaders {
		header.Set(key, value)
	}

	id := uuid.New()
	return &Session{
		ID:   id,
		opts: opts,
		client: &http.Client{
			Jar:       jar,
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		header: header,
		logger: log.With().Str("session", id.String()).Logger(),
		now:    time.Now,
		creds:  creds,
		gid:    token,
	}, nil
}

// Referer returns the URL captured after the last successful login (empty if Login did not succeed yet)
func (session *Session) Referer() string {
	return session.referer
}

// LoggedIn returns whether Login succeeded on this session
func (session *Session) LoggedIn() bool {
	return session.referer != ""
}

// Close releases the connections held by the session.
// Calling Close multiple times is a no-op.
func (session *Session) Close() {
	if session.client == nil {
		return
	}
	session.client.CloseIdleConnections()
	session.client = nil
	session.logger.Debug().Msg("closed session")
}

// Fetch runs the whole workflow for a single caller: it creates a session, logs in, queries the grades and releases
// the session afterwards regardless of the outcome.
func Fetch(ctx context.Context, creds credentials.Credentials, token string, opts Options) (json.RawMessage, error) {
	session, err := New(creds, token, opts)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	if err := session.Login(ctx); err != nil {
		return nil, err
	}
	return session.Grades(ctx)
}

type response struct {
	// URL is the final URL after following all redirects
	URL  string
	Body []byte
}

func (session *Session) get(ctx context.Context, target string, header http.Header) (*response, error) {
	return session.do(ctx, http.MethodGet, target, nil, header)
}

func (session *Session) post(ctx context.Context, target string, form url.Values, header http.Header) (*response, error) {
	return session.do(ctx, http.MethodPost, target, strings.NewReader(form.Encode()), header)
}

// do applies the session's default headers followed by the given ones and fails on every non-2xx response
func (session *Session) do(ctx context.Context, method, target string, body io.Reader, header http.Header) (*response, error) {
	if session.client == nil {
		return nil, fmt.Errorf("%s %s: session already closed", method, redactURL(target))
	}

	request, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	for key, values := range session.header {
		request.Header[key] = values
	}
	for key, values := range header {
		request.Header[key] = values
	}

	start := time.Now()
	resp, err := session.client.Do(request)
	if err != nil {
		// *url.Error prints the full URL including the service parameter
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, fmt.Errorf("%s %s: %w", method, redactURL(target), err)
	}
	defer resp.Body.Close()

	session.logger.Debug().
		Str("method", method).
		Str("url", redactURL(target)).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("performed request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{
			Method:     method,
			URL:        redactURL(resp.Request.URL.String()),
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", method, redactURL(target), err)
	}
	return &response{
		URL:  resp.Request.URL.String(),
		Body: data,
	}, nil
}

// redactURL strips the query and fragment of a URL as both may carry the gid
func redactURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	parsed.RawQuery = ""
	parsed.Fragment = ""
	parsed.RawFragment = ""
	return parsed.String()
}
