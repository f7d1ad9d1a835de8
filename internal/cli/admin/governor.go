package admin

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/helpdesk-learning/internal/domain"
	"github.com/cloo-solutions/helpdesk-learning/internal/service"
)

// GovernorCmd returns the governor command group. Changes are stored with the
// workflow settings; a running server applies them at its next sweep.
func GovernorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "governor",
		Short: "Manage the rate and cost governor",
		Long:  "Show or change the stored rate limit policy of the AI provider governor",
	}

	cmd.AddCommand(governorShowCmd())
	cmd.AddCommand(governorPresetCmd())

	return cmd
}

func governorShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the stored rate limit policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			return runGovernorShow(outputFormat)
		},
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runGovernorShow(outputFormat string) error {
	ctx := context.Background()

	pool, cfg, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	gov, _, err := buildGovernor(ctx, cfg, pool)
	if err != nil {
		return err
	}

	policy := gov.Policy()
	if outputFormat == "json" {
		return printJSON(policy)
	}
	printPolicy(policy)
	return nil
}

func governorPresetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preset <strict|balanced|generous>",
		Short: "Switch to a named rate limit preset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			return runGovernorPreset(outputFormat, args[0])
		},
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runGovernorPreset(outputFormat, name string) error {
	preset := domain.Preset(name)
	if preset == domain.PresetCustom {
		return fmt.Errorf("custom is not a preset; change individual limits through the admin API")
	}
	if _, err := domain.PresetPolicy(preset); err != nil {
		return err
	}

	ctx := context.Background()

	pool, cfg, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	gov, settings, err := buildGovernor(ctx, cfg, pool)
	if err != nil {
		return err
	}

	policy, err := service.NewGovernorService(gov, settings).ApplyPreset(ctx, preset)
	if err != nil {
		return fmt.Errorf("failed to apply preset: %w", err)
	}

	if outputFormat == "json" {
		return printJSON(policy)
	}
	fmt.Printf("Preset %s stored\n", policy.Preset)
	printPolicy(policy)
	return nil
}

func printPolicy(p domain.RateLimitPolicy) {
	fmt.Println("Rate limit policy:")
	fmt.Printf("  preset:               %s\n", p.Preset)
	fmt.Printf("  free tier:            %t\n", p.FreeTier)
	fmt.Printf("  requests per minute:  %d\n", p.MaxRequestsPerMinute)
	fmt.Printf("  requests per hour:    %d\n", p.MaxRequestsPerHour)
	fmt.Printf("  requests per day:     %d\n", p.MaxRequestsPerDay)
	fmt.Printf("  tokens per request:   %d\n", p.MaxTokensPerRequest)
	fmt.Printf("  daily limit (USD):    %.2f\n", p.DailyLimitUSD)
	fmt.Printf("  monthly limit (USD):  %.2f\n", p.MonthlyLimitUSD)
}
