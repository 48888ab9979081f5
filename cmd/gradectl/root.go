package main

import (
	"bufio"
	"fmt"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/skybi/grade-proxy/internal/acquire"
	"github.com/skybi/grade-proxy/internal/config"
	"github.com/skybi/grade-proxy/internal/credentials"
	"github.com/spf13/cobra"
	"io"
	"os"
	"strings"
)

// newAcquirer creates the browser automation; replaced in tests
var newAcquirer = acquire.New

// rootConfig holds the flags shared by every subcommand.
type rootConfig struct {
	username string
	password string
	verbose  bool

	// in buffers the standard input so several prompts can share it
	in *bufio.Reader
}

// NewRootCmd creates the root command of gradectl.
func NewRootCmd() *cobra.Command {
	cfg := &rootConfig{}

	cmd := &cobra.Command{
		Use:   "gradectl",
		Short: "Fetch gids and grades from the medical campus portal",
		Long: `gradectl logs into the central authentication service and talks to the
grade query service directly, without running the proxy API.
Settings are read from the same GP_* environment variables as the server.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := zerolog.WarnLevel
			if cfg.verbose {
				level = zerolog.DebugLevel
			}
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).Level(level)
			cfg.in = bufio.NewReader(cmd.InOrStdin())
		},
	}

	cmd.PersistentFlags().StringVarP(&cfg.username, "username", "u", "", "student ID (prompted for if empty)")
	cmd.PersistentFlags().StringVarP(&cfg.password, "password", "p", "", "password (prompted for if empty)")
	cmd.PersistentFlags().BoolVarP(&cfg.verbose, "verbose", "v", false, "log every step")

	cmd.AddCommand(newGIDCmd(cfg))
	cmd.AddCommand(newGradesCmd(cfg))
	cmd.AddCommand(newInstallCmd())

	return cmd
}

// credentials prompts for missing values and builds the credentials.
func (cfg *rootConfig) credentials(cmd *cobra.Command) (credentials.Credentials, error) {
	username, err := cfg.valueOrPrompt(cmd, cfg.username, "请输入学号: ")
	if err != nil {
		return credentials.Credentials{}, err
	}
	password, err := cfg.valueOrPrompt(cmd, cfg.password, "请输入密码: ")
	if err != nil {
		return credentials.Credentials{}, err
	}
	return credentials.New(username, password)
}

// valueOrPrompt returns value or, if it is empty, the next line read from the standard input.
func (cfg *rootConfig) valueOrPrompt(cmd *cobra.Command, value, label string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), label)
	line, err := cfg.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("failed to read %s: %w", strings.TrimSpace(strings.TrimSuffix(label, ": ")), err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// loadConfig loads the GP_* settings.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// writeFile writes data to path, creating or truncating it.
func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}
