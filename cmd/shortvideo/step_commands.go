package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"shortvideo/internal/api"
	"shortvideo/internal/client"
)

const waitPollInterval = 2 * time.Second

func newStepCommand(ctx *commandContext) *cobra.Command {
	var force bool
	var wait bool
	var timeout time.Duration
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "step <id> <step>",
		Short: "Trigger one pipeline step (parse, subtitles, dub, scenes, pack)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			step := normalizeArg(args[1])
			return ctx.withClient(func(c *client.Client) error {
				resp, err := c.TriggerStep(cmd.Context(), id, step, force)
				if err != nil {
					return err
				}
				if resp.Queued && wait {
					t, err := waitFor(cmd.Context(), c, id, timeout, func(t api.Task) bool {
						view := t.Steps[resp.Step]
						return view.Status == "ready" || view.Status == "error"
					})
					if err != nil {
						return err
					}
					view := t.Steps[resp.Step]
					resp = &api.StepResponse{Step: resp.Step, Outcome: "completed"}
					if view.Status == "error" {
						resp.Outcome = "failed"
						resp.Reason = view.Error
					}
				}
				if jsonOutput {
					if err := writeJSON(cmd, resp); err != nil {
						return err
					}
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), api.Describe(*resp))
				}
				if resp.Outcome == "failed" {
					return fmt.Errorf("step %s failed", resp.Step)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Re-run even when outputs exist; invalidates downstream steps")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for a queued step to finish")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "Maximum time to wait")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var force bool
	var wait bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "run <id>",
		Short: "Run every step of a task in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return ctx.withClient(func(c *client.Client) error {
				var before api.Task
				if wait {
					current, err := c.GetTask(cmd.Context(), id)
					if err != nil {
						return err
					}
					before = *current
				}
				resp, err := c.RunAll(cmd.Context(), id, force)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Pipeline started (job %s)\n", resp.Job)
				if !wait {
					return nil
				}
				t, err := waitFor(cmd.Context(), c, id, timeout, settledAfter(before, force))
				if err != nil {
					return err
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Step", "Status", "Attempts", "Provider", "Finished", "Error"},
					stepRows(t),
					[]columnAlignment{alignLeft, alignLeft, alignRight},
				))
				if t.Status != "ready" {
					return fmt.Errorf("task %s finished with status %s", id, t.Status)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Restart from the first step")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the pipeline to settle")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Hour, "Maximum time to wait")
	return cmd
}

// waitFor polls a task until done reports true or the timeout elapses.
func waitFor(ctx context.Context, c *client.Client, id string, timeout time.Duration, done func(api.Task) bool) (api.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return api.Task{}, fmt.Errorf("task %s did not settle within %s", id, timeout)
			}
			return api.Task{}, ctx.Err()
		case <-ticker.C:
		}
		t, err := c.GetTask(ctx, id)
		if err != nil {
			return api.Task{}, err
		}
		if t != nil && done(*t) {
			return *t, nil
		}
	}
}
