package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"forge/internal/forgectl"
	"forge/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon reachability and preflight checks",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			fmt.Fprintln(out, daemonStatusLine(cmd.Context(), ctx, colorize))

			cfg, err := ctx.ensureConfig()
			if err != nil {
				fmt.Fprintln(out, renderStatusLine("Config", statusError, err.Error(), colorize))
				return nil
			}

			fmt.Fprintln(out, preflightStatusLine(preflight.CheckDirectoryAccess("Downloads directory", cfg.Downloads.Dir), colorize))
			fmt.Fprintln(out, preflightStatusLine(preflight.CheckDirectoryAccess("Log directory", cfg.Logging.Dir), colorize))
			fmt.Fprintln(out, preflightStatusLine(preflight.CheckRegistry(cmd.Context(), cfg.Downloads.RegistryBaseURL), colorize))

			for _, binStatus := range preflight.CheckModelBinaries(cfg) {
				kind := statusOK
				if !binStatus.Available {
					kind = statusWarn
				}
				fmt.Fprintln(out, renderStatusLine(binStatus.Name, kind, binStatus.Detail, colorize))
			}
			return nil
		},
	}
}

func daemonStatusLine(ctx context.Context, cctx *commandContext, colorize bool) string {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	err := cctx.client().Ping(pingCtx)
	if err == nil {
		return renderStatusLine("Daemon", statusOK, "running at "+cctx.bind(), colorize)
	}
	if errors.Is(err, forgectl.ErrDaemonUnreachable) {
		return renderStatusLine("Daemon", statusWarn, "not running", colorize)
	}
	return renderStatusLine("Daemon", statusError, err.Error(), colorize)
}

func preflightStatusLine(result preflight.Result, colorize bool) string {
	if result.Passed {
		return renderStatusLine(result.Name, statusOK, result.Detail, colorize)
	}
	return renderStatusLine(result.Name, statusError, result.Detail, colorize)
}
