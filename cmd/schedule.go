package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"pellet_stove/internal/config"
	"pellet_stove/internal/logger"
	"pellet_stove/internal/repository"
	"pellet_stove/internal/repository/db"
	"pellet_stove/internal/scheduler"
	"pellet_stove/internal/service"
)

const scheduleDBTimeout = 5 * time.Second

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Export or import the stored weekly schedule",
}

var scheduleExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print the stored schedule as a summary",
	Args:  cobra.NoArgs,
	RunE:  runScheduleExport,
}

var scheduleImportCmd = &cobra.Command{
	Use:   "import <file|->",
	Short: "Replace the stored schedule with a summary; read by serve at startup",
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleImport,
}

func init() {
	scheduleCmd.AddCommand(scheduleExportCmd)
	scheduleCmd.AddCommand(scheduleImportCmd)
}

func openScheduleRepo() (*repository.ScheduleSQLite, func() error, config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, cfg, err
	}
	sqlDB, err := db.InitDB(cfg.DB.Path)
	if err != nil {
		return nil, nil, cfg, err
	}
	return repository.NewScheduleSQLite(sqlDB), sqlDB.Close, cfg, nil
}

func runScheduleExport(cmd *cobra.Command, _ []string) error {
	repo, closeDB, cfg, err := openScheduleRepo()
	if err != nil {
		return err
	}
	defer closeDB()

	sched := scheduler.New(cfg.Loops.ScheduleLock, logger.Nop())
	ctx, cancel := context.WithTimeout(cmd.Context(), scheduleDBTimeout)
	defer cancel()
	if err := service.NewScheduleService(sched, repo, nil, nil, logger.Nop()).Restore(ctx); err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), sched.BuildSummary())
	return nil
}

func runScheduleImport(cmd *cobra.Command, args []string) error {
	raw, err := readSummary(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}
	enabled, entries, err := scheduler.ParseSummary(string(raw))
	if err != nil {
		return err
	}
	if len(entries) > scheduler.Slots {
		return fmt.Errorf("summary has %d slots, the table holds %d", len(entries), scheduler.Slots)
	}

	repo, closeDB, cfg, err := openScheduleRepo()
	if err != nil {
		return err
	}
	defer closeDB()

	// Validate every slot before writing any.
	sched := scheduler.New(cfg.Loops.ScheduleLock, logger.Nop())
	for i, e := range entries {
		if !sched.UpdateEntry(i, e.Active, int(e.Day), int(e.Hour), int(e.Minute), int(e.TargetPower)) {
			return fmt.Errorf("slot %d: invalid day/hour/minute %d %02d:%02d", i, e.Day, e.Hour, e.Minute)
		}
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), scheduleDBTimeout)
	defer cancel()
	for i := range entries {
		if err := repo.SaveEntry(ctx, i, sched.Entry(i)); err != nil {
			return err
		}
	}
	if err := repo.SaveEnabled(ctx, enabled); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d slots, scheduler %s\n", len(entries), enabledWord(enabled))
	return nil
}

func readSummary(stdin io.Reader, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(stdin)
	}
	b, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read summary: %w", err)
	}
	return b, nil
}

func enabledWord(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}
