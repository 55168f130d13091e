package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nidhogg/nuka-cs/internal/orchestrator"
)

func init() {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Tail conversation outcomes from the Redis stream",
		RunE:  runEvents,
	}
	cmd.Flags().String("from", "", "Stream ID to start after (\"0\" replays history, empty waits for new entries)")

	rootCmd.AddCommand(cmd)
}

func runEvents(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Redis.URL == "" {
		return errors.New("redis.url is not configured")
	}
	pub, err := orchestrator.NewStreamPublisher(cfg.Redis.URL, cfg.Redis.Stream, cfg.Redis.MaxLen, logger)
	if err != nil {
		return err
	}
	defer pub.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	from, _ := cmd.Flags().GetString("from")
	out := cmd.OutOrStdout()
	for ev := range pub.Subscribe(ctx, from) {
		b, err := json.Marshal(ev.Outcome)
		if err != nil {
			return fmt.Errorf("encode outcome %s: %w", ev.ID, err)
		}
		fmt.Fprintf(out, "%s %s\n", ev.ID, b)
	}
	return nil
}
