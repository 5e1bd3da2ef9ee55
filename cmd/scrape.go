package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/minuteswatch/internal/minutes"
)

func newScrapeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scrape",
		Short: "Run one scrape of the archive and print its counters",
		RunE:  runScrape,
	}
}

func runScrape(cmd *cobra.Command, _ []string) error {
	rt, err := runtimeFrom(cmd.Context())
	if err != nil {
		return err
	}
	if rt.cfg.Scraper.ArchiveURL == "" {
		return errors.New("scraper.archive_url is required to scrape")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := buildServices(ctx, rt.cfg, rt.logger, true)
	if err != nil {
		return err
	}
	defer svc.Close()

	id, err := svc.ids.NewID()
	if err != nil {
		return fmt.Errorf("run id: %w", err)
	}
	run := minutes.Run{ID: id, Status: minutes.RunStatusQueued, Trigger: minutes.TriggerCLI, Submitted: svc.clock.Now()}
	if err := svc.store.CreateRun(ctx, run); err != nil {
		return fmt.Errorf("create run: %w", err)
	}

	counters, runErr := svc.pipeline.Run(ctx, id)
	out, err := json.MarshalIndent(map[string]any{"run_id": id, "counters": counters}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode counters: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	if runErr != nil {
		return fmt.Errorf("scrape run %s: %w", id, runErr)
	}
	rt.logger.Info("scrape finished", zap.String("run_id", id))
	return nil
}
