package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nidhogg/nuka-cs/internal/analysis"
)

func init() {
	cmd := &cobra.Command{
		Use:   "analyze <message>",
		Short: "Run one message through the pipeline and print the outcome",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAnalyze,
	}
	cmd.Flags().StringP("user", "u", "cli-user", "User ID")
	cmd.Flags().StringP("session", "s", "", "Session ID")
	cmd.Flags().StringSlice("sequential", nil, "Run these analyzers in order instead of the full pipeline")
	cmd.Flags().StringToString("hint", nil, "Context hints as key=value")

	rootCmd.AddCommand(cmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := buildApp(cmd.Context(), cfg, logger, false)
	if err != nil {
		return err
	}
	defer a.Close()

	user, _ := cmd.Flags().GetString("user")
	session, _ := cmd.Flags().GetString("session")
	hints, _ := cmd.Flags().GetStringToString("hint")

	req := analysis.Request{
		UserID:    user,
		SessionID: session,
		Message:   strings.Join(args, " "),
	}
	for k, v := range hints {
		req = req.WithHint(k, v)
	}

	var out any
	if stages, _ := cmd.Flags().GetStringSlice("sequential"); len(stages) > 0 {
		if err := analysis.Validate(req); err != nil {
			return err
		}
		out = a.assistant.Orchestrator().RunSequential(cmd.Context(), stages, req)
	} else {
		out, err = a.assistant.Handle(cmd.Context(), req)
		if err != nil {
			return err
		}
	}

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return nil
}
