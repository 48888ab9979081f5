package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"github.com/skybi/grade-proxy/internal/gid"
	"github.com/skybi/grade-proxy/internal/session"
	"github.com/spf13/cobra"
)

// gradesConfig holds the flags of the grades command.
type gradesConfig struct {
	gid string
	out string
}

// newGradesCmd creates the grades subcommand.
func newGradesCmd(root *rootConfig) *cobra.Command {
	cfg := &gradesConfig{}

	cmd := &cobra.Command{
		Use:   "grades",
		Short: "Fetch the grade records and write them to a JSON file",
		Long: `Log in over HTTP using a previously acquired gid and write the payload of the
grade query service, indented but otherwise unchanged, to a file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGrades(cmd, root, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.gid, "gid", "", "gid (prompted for if empty)")
	cmd.Flags().StringVarP(&cfg.out, "out", "o", "result.json", "file to write the grade records to")

	return cmd
}

func runGrades(cmd *cobra.Command, root *rootConfig, cfg *gradesConfig) error {
	creds, err := root.credentials(cmd)
	if err != nil {
		return err
	}
	rawGID, err := root.valueOrPrompt(cmd, cfg.gid, "请输入 GID: ")
	if err != nil {
		return err
	}
	token, err := gid.Validate(rawGID)
	if err != nil {
		return err
	}

	appCfg, err := loadConfig()
	if err != nil {
		return err
	}
	payload, err := session.Fetch(cmd.Context(), creds, token, appCfg.SessionOptions())
	if err != nil {
		return fmt.Errorf("failed to fetch the grades: %w", err)
	}

	var indented bytes.Buffer
	if err := json.Indent(&indented, payload, "", "    "); err != nil {
		return fmt.Errorf("failed to format the grades: %w", err)
	}
	indented.WriteByte('\n')
	if err := writeFile(cfg.out, indented.Bytes()); err != nil {
		return fmt.Errorf("failed to write %s: %w", cfg.out, err)
	}

	cmd.PrintErrf("wrote the grade records to %s\n", cfg.out)
	return nil
}
