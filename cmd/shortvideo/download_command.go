package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"shortvideo/internal/client"
	"shortvideo/internal/fileutil"
	"shortvideo/internal/textutil"
)

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "download <id> <kind>",
		Short: "Download an artifact (raw, subs_origin, subs_mm, subs_mm_txt, audio_mm, scenes, pack)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			kind := normalizeArg(args[1])
			return ctx.withClient(func(c *client.Client) error {
				dl, err := c.Download(cmd.Context(), id, kind)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if dl.RedirectURL != "" {
					fmt.Fprintln(out, dl.RedirectURL)
					return nil
				}
				defer dl.Body.Close()

				if output == "-" {
					if isTerminal(out) {
						return errors.New("refusing to write binary artifact to a terminal; pass --output <file>")
					}
					_, err := io.Copy(out, dl.Body)
					return err
				}

				target := output
				if target == "" {
					name := textutil.SanitizeFileName(dl.Filename)
					if name == "" {
						name = textutil.SanitizeFileName(id + "_" + kind)
					}
					target = name
				}
				written, err := fileutil.WriteFileAtomic(filepath.Clean(target), dl.Body, 0o644)
				if err != nil {
					return fmt.Errorf("write %s: %w", target, err)
				}
				fmt.Fprintf(out, "Saved %s (%s)\n", target, byteSize(written))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination file, or - for stdout")
	return cmd
}
