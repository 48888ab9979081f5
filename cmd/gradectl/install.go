package main

import (
	"fmt"
	"github.com/skybi/grade-proxy/internal/acquire"
	"github.com/spf13/cobra"
)

// installBrowser installs the Playwright driver and browser; replaced in tests
var installBrowser = acquire.InstallPlaywright

// newInstallCmd creates the install subcommand.
func newInstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install the Playwright driver and Chromium",
		Long: `Download the Playwright driver and the Chromium build used by the playwright
engine. The rod engine downloads its browser on first use instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := installBrowser(); err != nil {
				return fmt.Errorf("failed to install the browser: %w", err)
			}
			cmd.PrintErrln("installed the Playwright driver and Chromium")
			return nil
		},
	}
}
