package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"shortvideo/internal/api"
	"shortvideo/internal/client"
	"shortvideo/internal/textutil"
)

const titleWidth = 32

func newTaskCommand(ctx *commandContext) *cobra.Command {
	taskCmd := &cobra.Command{
		Use:   "task",
		Short: "Create and inspect tasks",
	}
	taskCmd.AddCommand(newTaskCreateCommand(ctx))
	taskCmd.AddCommand(newTaskListCommand(ctx))
	taskCmd.AddCommand(newTaskShowCommand(ctx))
	return taskCmd
}

func newTaskCreateCommand(ctx *commandContext) *cobra.Command {
	var req api.CreateTaskRequest
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "create <source-url>",
		Short: "Create a task for a source video link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.SourceURL = strings.TrimSpace(args[0])
			return ctx.withClient(func(c *client.Client) error {
				created, err := c.CreateTask(cmd.Context(), req)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, created)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Created task %s (%s)\n", created.ID, created.Platform)
				if req.AutoRun {
					fmt.Fprintln(out, "Pipeline started in the background")
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&req.ID, "id", "", "Task id (generated when empty)")
	cmd.Flags().StringVar(&req.Title, "title", "", "Display title")
	cmd.Flags().StringVar(&req.Tenant, "tenant", "", "Artifact namespace tenant")
	cmd.Flags().StringVar(&req.Project, "project", "", "Artifact namespace project")
	cmd.Flags().StringVar(&req.TargetLang, "lang", "", "Target language (defaults to pipeline.target_lang)")
	cmd.Flags().StringVar(&req.VoiceID, "voice", "", "Voice id for dubbing")
	cmd.Flags().BoolVar(&req.AutoRun, "run", false, "Run the whole pipeline after creation")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newTaskListCommand(ctx *commandContext) *cobra.Command {
	var opts client.ListOptions
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				page, err := c.ListTasks(cmd.Context(), opts)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, page)
				}
				printTaskList(cmd.OutOrStdout(), page)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.Status, "status", "", "Filter by status (pending, processing, ready, error)")
	cmd.Flags().StringVar(&opts.Platform, "platform", "", "Filter by platform")
	cmd.Flags().StringVar(&opts.Tenant, "tenant", "", "Filter by tenant")
	cmd.Flags().IntVar(&opts.Page, "page", 0, "Page number (1-based)")
	cmd.Flags().IntVar(&opts.PageSize, "page-size", 0, "Tasks per page")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func printTaskList(out io.Writer, page *api.TaskListResponse) {
	if page == nil || len(page.Items) == 0 {
		fmt.Fprintln(out, "No tasks found")
		return
	}
	rows := make([][]string, 0, len(page.Items))
	for _, t := range page.Items {
		rows = append(rows, []string{
			t.ID,
			t.Platform,
			t.Status,
			t.LastStep,
			textutil.Truncate(t.Title, titleWidth),
			relativeTime(t.UpdatedAt),
		})
	}
	headers := []string{"ID", "Platform", "Status", "Last Step", "Title", "Updated"}
	fmt.Fprintln(out, renderTable(headers, rows, nil))
	fmt.Fprintf(out, "Page %d (%d of %d tasks)\n", page.Page, len(page.Items), page.Total)
}

func newTaskShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task with per-step status and artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				t, err := c.GetTask(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if t == nil {
					return errors.New("missing task in response")
				}
				if jsonOutput {
					return writeJSON(cmd, t)
				}
				printTask(cmd.OutOrStdout(), *t)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func printTask(out io.Writer, t api.Task) {
	failure := ""
	if t.ErrorStep != "" {
		failure = t.ErrorStep + ": " + t.ErrorMessage
	}
	fmt.Fprintln(out, renderPairs([][2]string{
		{"ID", t.ID},
		{"Title", t.Title},
		{"Source", t.SourceURL},
		{"Platform", t.Platform},
		{"Namespace", t.Tenant + "/" + t.Project},
		{"Language", t.TargetLang},
		{"Voice", t.VoiceID},
		{"Status", t.Status},
		{"Last step", t.LastStep},
		{"Failure", failure},
		{"Created", relativeTime(t.CreatedAt)},
		{"Updated", relativeTime(t.UpdatedAt)},
	}))

	headers := []string{"Step", "Status", "Attempts", "Provider", "Finished", "Error"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignRight}
	fmt.Fprintln(out, renderTable(headers, stepRows(t), aligns))

	if len(t.Artifacts) == 0 {
		return
	}
	rows := make([][]string, 0, len(t.Artifacts))
	for _, kind := range sortedKeys(t.Artifacts) {
		rows = append(rows, []string{kind, t.Artifacts[kind]})
	}
	fmt.Fprintln(out, renderTable([]string{"Artifact", "Key"}, rows, nil))
}
