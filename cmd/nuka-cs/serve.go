package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nidhogg/nuka-cs/internal/api"
	"github.com/nidhogg/nuka-cs/internal/memory"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduled memory decay",
		RunE:  runServe,
	}
	cmd.Flags().Int("port", 0, "Override server.port")

	rootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Server.Port = port
	}

	logger.Info("Starting nuka-cs...")
	a, err := buildApp(cmd.Context(), cfg, logger, true)
	if err != nil {
		return err
	}
	defer a.Close()

	scheduler, err := startDecay(cfg.Memory.DecaySchedule, a.assistant.Memory(), cfg.Memory.MemoryDecayHours, logger)
	if err != nil {
		return err
	}

	handler := api.NewHandler(a.assistant, a.fusion, cfg.Memory.MemoryDecayHours, logger)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("nuka-cs listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve http: %w", err)
		}
	}

	logger.Info("Shutting down nuka-cs...")
	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// startDecay schedules memory decay sweeps. An empty schedule disables it.
func startDecay(spec string, store *memory.Store, maxAgeHours float64, logger *zap.Logger) (*cron.Cron, error) {
	if spec == "" {
		logger.Info("memory decay schedule disabled")
		return nil, nil
	}

	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		report := store.Decay(time.Now(), maxAgeHours)
		logger.Info("scheduled decay sweep",
			zap.Int("users", report.UsersSwept),
			zap.Int("facts_removed", report.FactsRemoved),
			zap.Int("ledgers_dropped", report.LedgersDropped))
	})
	if err != nil {
		return nil, fmt.Errorf("schedule decay %q: %w", spec, err)
	}
	c.Start()
	logger.Info("memory decay scheduled", zap.String("spec", spec), zap.Float64("max_age_hours", maxAgeHours))
	return c, nil
}
