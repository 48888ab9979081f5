package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skybi/grade-proxy/internal/acquire"
	"github.com/skybi/grade-proxy/internal/credentials"
	"github.com/skybi/grade-proxy/internal/gid"
	"github.com/skybi/grade-proxy/internal/session/portaltest"
)

var testAccount = portaltest.Account{
	Identifier: "2110301234",
	Secret:     "correct horse",
	GID:        strings.Repeat("Ab", gid.Length/2),
}

type acquirerFunc func(ctx context.Context, creds credentials.Credentials) (string, error)

func (fn acquirerFunc) Acquire(ctx context.Context, creds credentials.Credentials) (string, error) {
	return fn(ctx, creds)
}

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func stubAcquirer(t *testing.T, acquirer acquire.Acquirer) *string {
	t.Helper()
	var engine string
	previous := newAcquirer
	newAcquirer = func(name string, _ acquire.Options) (acquire.Acquirer, error) {
		engine = name
		return acquirer, nil
	}
	t.Cleanup(func() {
		newAcquirer = previous
	})
	return &engine
}

func usePortal(t *testing.T, portal *portaltest.Server) {
	t.Helper()
	t.Setenv("GP_AUTH_BASE_URL", portal.BaseURL())
	t.Setenv("GP_APPS_BASE_URL", portal.BaseURL())
}

func TestGIDCommand(t *testing.T) {
	t.Run("prompts for missing credentials", func(t *testing.T) {
		var received credentials.Credentials
		engine := stubAcquirer(t, acquirerFunc(func(_ context.Context, creds credentials.Credentials) (string, error) {
			received = creds
			return testAccount.GID, nil
		}))
		t.Setenv("GP_BROWSER_ENGINE", "rod")

		stdout, stderr, err := execute(t, "2110301234\ncorrect horse\n", "gid")
		require.NoError(t, err)
		assert.Equal(t, testAccount.GID+"\n", stdout)
		assert.Contains(t, stderr, "请输入学号: ")
		assert.Contains(t, stderr, "请输入密码: ")
		assert.Equal(t, "2110301234", received.Identifier)
		assert.Equal(t, "correct horse", received.Secret)
		assert.Equal(t, "rod", *engine)
	})

	t.Run("flags skip the prompts", func(t *testing.T) {
		stubAcquirer(t, acquirerFunc(func(context.Context, credentials.Credentials) (string, error) {
			return testAccount.GID, nil
		}))

		_, stderr, err := execute(t, "", "gid", "-u", "2110301234", "-p", "pw")
		require.NoError(t, err)
		assert.NotContains(t, stderr, "请输入")
	})

	t.Run("acquisition failures are reported", func(t *testing.T) {
		stubAcquirer(t, acquirerFunc(func(context.Context, credentials.Credentials) (string, error) {
			return "", acquire.ErrAuthentication
		}))

		_, _, err := execute(t, "", "gid", "-u", "2110301234", "-p", "pw")
		assert.ErrorIs(t, err, acquire.ErrAuthentication)
	})

	t.Run("closed input", func(t *testing.T) {
		stubAcquirer(t, acquirerFunc(func(context.Context, credentials.Credentials) (string, error) {
			t.Fatal("the acquirer must not be called")
			return "", nil
		}))

		_, _, err := execute(t, "", "gid")
		assert.Error(t, err)
	})
}

func TestGradesCommand(t *testing.T) {
	t.Run("writes the indented payload", func(t *testing.T) {
		portal := portaltest.NewServer(t, testAccount)
		usePortal(t, portal)
		out := filepath.Join(t.TempDir(), "grades.json")

		_, _, err := execute(t, testAccount.GID+"\n",
			"grades", "-u", testAccount.Identifier, "-p", testAccount.Secret, "--out", out)
		require.NoError(t, err)

		written, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.JSONEq(t, portaltest.SampleGrades, string(written))
		assert.Contains(t, string(written), "\n    \"code\": \"0\"")
		assert.Equal(t, 1, portal.GradeQueries())
	})

	t.Run("rejects a malformed gid before logging in", func(t *testing.T) {
		portal := portaltest.NewServer(t, testAccount)
		usePortal(t, portal)

		_, _, err := execute(t, "", "grades", "-u", "2110301234", "-p", "pw", "--gid", "short",
			"--out", filepath.Join(t.TempDir(), "grades.json"))
		assert.ErrorIs(t, err, gid.ErrInvalid)
		assert.Zero(t, portal.LoginGets())
	})

	t.Run("reports a wrong password", func(t *testing.T) {
		portal := portaltest.NewServer(t, testAccount)
		usePortal(t, portal)
		out := filepath.Join(t.TempDir(), "grades.json")

		_, _, err := execute(t, "", "grades", "-u", testAccount.Identifier, "-p", "nope", "--gid", testAccount.GID, "--out", out)
		assert.Error(t, err)
		assert.NoFileExists(t, out)
	})
}

func TestInstallCommand(t *testing.T) {
	previous := installBrowser
	t.Cleanup(func() {
		installBrowser = previous
	})

	installed := false
	installBrowser = func() error {
		installed = true
		return nil
	}
	_, _, err := execute(t, "", "install")
	require.NoError(t, err)
	assert.True(t, installed)

	installBrowser = func() error {
		return errors.New("offline")
	}
	_, _, err = execute(t, "", "install")
	assert.ErrorContains(t, err, "offline")
}
