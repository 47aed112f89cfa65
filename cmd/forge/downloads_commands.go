package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"forge/pkg/types"
)

func newDownloadsCommand(ctx *commandContext) *cobra.Command {
	downloadsCmd := &cobra.Command{
		Use:   "downloads",
		Short: "Download model weights from a registry",
	}

	downloadsCmd.AddCommand(newDownloadsStartCommand(ctx))
	downloadsCmd.AddCommand(newDownloadsStatusCommand(ctx))
	downloadsCmd.AddCommand(newDownloadsCancelCommand(ctx))

	return downloadsCmd
}

func newDownloadsStartCommand(ctx *commandContext) *cobra.Command {
	var files []string
	cmd := &cobra.Command{
		Use:   "start <repo>",
		Short: "Start downloading files from a model repo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := ctx.client().StartDownload(cmd.Context(), args[0], files)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Download started: %s\n", id)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&files, "file", nil, "Repo-relative file path to fetch (repeatable)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newDownloadsStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON, watch bool
	cmd := &cobra.Command{
		Use:   "status <download-id>",
		Short: "Show a download's progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := ctx.client()
			for {
				dl, err := client.DownloadStatus(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if asJSON {
					if err := writeJSON(cmd, dl); err != nil {
						return err
					}
				} else {
					printDownloadStatus(cmd, dl)
				}
				if !watch || isDownloadTerminal(dl.Status) {
					return nil
				}
				select {
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				case <-time.After(time.Second):
				}
			}
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print raw JSON")
	cmd.Flags().BoolVar(&watch, "watch", false, "Poll until the download reaches a terminal state")
	return cmd
}

func isDownloadTerminal(s types.DownloadStatus) bool {
	switch s {
	case types.DownloadCompleted, types.DownloadFailed, types.DownloadCancelled:
		return true
	default:
		return false
	}
}

func printDownloadStatus(cmd *cobra.Command, dl types.DownloadJob) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	kind := statusInfo
	switch dl.Status {
	case types.DownloadCompleted:
		kind = statusOK
	case types.DownloadFailed, types.DownloadCancelled:
		kind = statusError
	case types.DownloadDownloading:
		kind = statusWarn
	}
	progress := fmt.Sprintf("%s / %s at %s/s, ETA %s",
		humanize.Bytes(uint64(dl.BytesDownloaded)),
		humanize.Bytes(uint64(dl.TotalBytes)),
		humanize.Bytes(uint64(dl.SpeedBps)),
		etaString(dl.ETASeconds))
	fmt.Fprintln(out, renderStatusLine(dl.Repo, kind, string(dl.Status), colorize))
	fmt.Fprintln(out, renderStatusLine("Progress", statusInfo, progress, colorize))
	if dl.Error != "" {
		fmt.Fprintln(out, renderStatusLine("Error", statusError, dl.Error, colorize))
	}
}

func etaString(seconds float64) string {
	if seconds <= 0 {
		return "unknown"
	}
	return (time.Duration(seconds) * time.Second).String()
}

func newDownloadsCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <download-id>",
		Short: "Cancel an in-progress download",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.client().CancelDownload(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Download %s cancelled\n", args[0])
			return nil
		},
	}
}
