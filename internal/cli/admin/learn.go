package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// LearnCmd returns the learn command group
func LearnCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "learn",
		Short: "Operate the learning queue",
		Long:  "Run learning sweeps, seed historical tickets and inspect the learning queue",
	}

	cmd.AddCommand(learnSweepCmd())
	cmd.AddCommand(learnSeedCmd())
	cmd.AddCommand(learnStatusCmd())
	cmd.AddCommand(learnFailedCmd())

	return cmd
}

func learnSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one learning sweep now",
		Long:  "Claim pending learning queue items and run the learning pipeline on them, waiting until the sweep ends",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			return runLearnSweep(outputFormat)
		},
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runLearnSweep(outputFormat string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, cfg, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	e, err := buildEngine(ctx, cfg, pool)
	if err != nil {
		return err
	}
	defer e.Close()

	result, err := e.sweep.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("learning sweep failed: %w", err)
	}

	if outputFormat == "json" {
		return printJSON(result)
	}

	if result.Skipped {
		fmt.Println("Sweep skipped: auto-learn is disabled")
		return nil
	}
	fmt.Printf("Sweep finished: claimed %d, completed %d, retried %d, failed %d, deferred %d, reaped %d\n",
		result.Claimed, result.Completed, result.Retried, result.Failed, result.Deferred, result.Reaped)
	fmt.Printf("Articles written or merged: %d\n", result.Articles)
	if result.Halted {
		fmt.Printf("Sweep halted early: %s\n", result.HaltReason)
	}
	return nil
}

func learnSeedCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Queue recently resolved tickets",
		Long:  "Queue every resolved ticket of the last --days days that is not queued yet",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			return runLearnSeed(outputFormat, days)
		},
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	cmd.Flags().IntVarP(&days, "days", "d", 0, "Look-back window in days (defaults to HELPDESK_SEED_DAYS)")

	return cmd
}

func runLearnSeed(outputFormat string, days int) error {
	if days < 0 {
		return fmt.Errorf("--days must not be negative")
	}

	ctx := context.Background()

	pool, cfg, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	result, err := queueService(pool).WithSeedDays(cfg.SeedDays).SeedHistoricalTickets(ctx, days)
	if err != nil {
		return fmt.Errorf("failed to seed learning queue: %w", err)
	}

	if outputFormat == "json" {
		return printJSON(result)
	}
	fmt.Printf("Scanned %d resolved tickets: %d queued, %d skipped\n", result.Scanned, result.Enqueued, result.Skipped)
	return nil
}

func learnStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show learning queue counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			return runLearnStatus(outputFormat)
		},
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runLearnStatus(outputFormat string) error {
	ctx := context.Background()

	pool, _, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	stats, err := queueService(pool).Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to read learning queue: %w", err)
	}

	if outputFormat == "json" {
		return printJSON(stats)
	}
	fmt.Println("Learning queue:")
	fmt.Printf("  pending:         %d\n", stats.Pending)
	fmt.Printf("  processing:      %d\n", stats.Processing)
	fmt.Printf("  completed today: %d\n", stats.CompletedToday)
	fmt.Printf("  failed:          %d\n", stats.Failed)
	return nil
}

func learnFailedCmd() *cobra.Command {
	var (
		limit  int
		cursor string
	)

	cmd := &cobra.Command{
		Use:   "failed",
		Short: "List failed learning items",
		Long:  "List learning queue items that exhausted their attempts, most recently failed first",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			return runLearnFailed(outputFormat, limit, cursor)
		},
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of results")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from previous response")

	return cmd
}

func runLearnFailed(outputFormat string, limit int, cursor string) error {
	ctx := context.Background()

	pool, _, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	result, err := queueService(pool).ListFailed(ctx, cursor, limit)
	if err != nil {
		return fmt.Errorf("failed to list failed items: %w", err)
	}

	if outputFormat == "json" {
		return printJSON(result)
	}

	if len(result.Items) == 0 {
		fmt.Println("No failed learning items")
		return nil
	}
	fmt.Println("Failed learning items:")
	for _, item := range result.Items {
		fmt.Printf("  %s: ticket %s after %d attempts (%s): %s\n",
			item.ID, item.TicketID, item.Attempts, item.UpdatedAt.Format("2006-01-02 15:04:05"), item.LastError)
	}
	if result.HasMore && result.Cursor != "" {
		fmt.Printf("\nMore results available. Use --cursor %s\n", result.Cursor)
	}
	return nil
}

func printJSON(v any) error {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(jsonBytes))
	return nil
}
