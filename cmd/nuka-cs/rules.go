package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nidhogg/nuka-cs/internal/memory"
	"github.com/nidhogg/nuka-cs/internal/tagging"
)

func init() {
	rulesCmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and check tag and memory rule tables",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "Print the active tag and memory rule tables as JSON",
		RunE:  runRulesList,
	}

	check := &cobra.Command{
		Use:   "check <file>",
		Short: "Validate a rule file without starting the engine",
		Args:  cobra.ExactArgs(1),
		RunE:  runRulesCheck,
	}
	check.Flags().String("kind", "tags", "Rule file kind: tags or memory")

	score := &cobra.Command{
		Use:   "score <message>",
		Short: "Score a message against the tag rules",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runRulesScore,
	}

	rulesCmd.AddCommand(list, check, score)
	rootCmd.AddCommand(rulesCmd)
}

func loadTagRules(path string) (tagging.RuleSet, error) {
	if path == "" {
		return tagging.DefaultRuleSet(), nil
	}
	return tagging.LoadRules(path)
}

func loadMemoryRules(path string) (memory.Rules, error) {
	if path == "" {
		return memory.DefaultRules(), nil
	}
	return memory.LoadRules(path)
}

func runRulesList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	tags, err := loadTagRules(cfg.Tagging.RulesPath)
	if err != nil {
		return err
	}
	mem, err := loadMemoryRules(cfg.Memory.RulesPath)
	if err != nil {
		return err
	}

	b, err := json.MarshalIndent(map[string]any{"tags": tags, "memory": mem}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode rules: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return nil
}

func runRulesCheck(cmd *cobra.Command, args []string) error {
	kind, _ := cmd.Flags().GetString("kind")
	switch kind {
	case "tags":
		rs, err := tagging.LoadRules(args[0])
		if err != nil {
			return err
		}
		// NewScorer compiles every pattern.
		s, err := tagging.NewScorer(rs, tagging.DefaultThreshold, zap.NewNop())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ok: %d tag rules (%s)\n", len(s.Available()), strings.Join(s.Available(), ", "))
	case "memory":
		r, err := memory.LoadRules(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ok: %d categories, %d topics\n", len(r.Categories), len(r.Topics))
	default:
		return fmt.Errorf("unknown rule kind %q (want tags or memory)", kind)
	}
	return nil
}

func runRulesScore(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	rs, err := loadTagRules(cfg.Tagging.RulesPath)
	if err != nil {
		return err
	}
	s, err := tagging.NewScorer(rs, cfg.Tagging.TagConfidenceThreshold, zap.NewNop())
	if err != nil {
		return err
	}

	res := s.Analyze(strings.Join(args, " "), tagging.SessionData{}, nil)
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("encode scores: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return nil
}
