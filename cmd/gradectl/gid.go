package main

import (
	"fmt"
	"github.com/spf13/cobra"
)

// newGIDCmd creates the gid subcommand.
func newGIDCmd(root *rootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "gid",
		Short: "Acquire a gid by logging in with a browser",
		Long: `Drive a browser through the login and the service hall and print the gid
found in the URL of the grade query page.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGID(cmd, root)
		},
	}
}

func runGID(cmd *cobra.Command, root *rootConfig) error {
	creds, err := root.credentials(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	acquirer, err := newAcquirer(cfg.BrowserEngine, cfg.AcquireOptions())
	if err != nil {
		return err
	}
	token, err := acquirer.Acquire(cmd.Context(), creds)
	if err != nil {
		return fmt.Errorf("failed to acquire a gid: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
