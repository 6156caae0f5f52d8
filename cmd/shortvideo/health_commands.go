package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"shortvideo/internal/api"
	"shortvideo/internal/client"
	"shortvideo/internal/notifications"
	"shortvideo/internal/preflight"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Show gateway readiness",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				health, err := c.Health(cmd.Context())
				if health == nil {
					return err
				}
				if jsonOutput {
					if werr := writeJSON(cmd, health); werr != nil {
						return werr
					}
				} else {
					printHealth(cmd.OutOrStdout(), health)
				}
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func printHealth(out io.Writer, health *api.HealthResponse) {
	rows := make([][]string, 0, len(health.Stages)+2)
	for _, s := range append([]api.StageHealth{health.Database, health.Storage}, health.Stages...) {
		rows = append(rows, []string{s.Name, yesNo(s.Ready), s.Detail})
	}
	fmt.Fprintln(out, renderTable([]string{"Component", "Ready", "Detail"}, rows, nil))

	providers := make([][]string, 0, len(health.Providers))
	for _, capability := range sortedKeys(health.Providers) {
		providers = append(providers, []string{capability, health.Providers[capability]})
	}
	if len(providers) > 0 {
		fmt.Fprintln(out, renderTable([]string{"Capability", "Provider"}, providers, nil))
	}
	fmt.Fprintf(out, "Ready: %s  Jobs: %d active, %d waiting\n", yesNo(health.Ready), health.ActiveJobs, health.WaitingJobs)
}

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check directories, storage, and provider credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			rows := make([][]string, 0, len(results))
			for _, r := range results {
				status := "ok"
				if !r.Passed {
					status = "FAIL"
				}
				rows = append(rows, []string{r.Name, status, r.Detail})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Check", "Status", "Detail"}, rows, nil))
			if preflight.Failed(results) {
				return errors.New("one or more checks failed")
			}
			return nil
		},
	}
}

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if cfg.Notifications.NtfyTopic == "" {
				fmt.Fprintln(out, "Notifications not configured (set notifications.ntfy_topic)")
				return nil
			}
			svc := notifications.NewService(cfg)
			if err := svc.Publish(cmd.Context(), notifications.EventTest, nil); err != nil {
				return fmt.Errorf("send notification: %w", err)
			}
			fmt.Fprintln(out, "Test notification sent")
			return nil
		},
	}
}
