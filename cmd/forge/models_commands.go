package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"forge/pkg/types"
)

func newModelsCommand(ctx *commandContext) *cobra.Command {
	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "Inspect and control model engine processes",
	}

	modelsCmd.AddCommand(newModelsListCommand(ctx))
	modelsCmd.AddCommand(newModelsStatusCommand(ctx))
	modelsCmd.AddCommand(newModelsStartCommand(ctx))
	modelsCmd.AddCommand(newModelsStopCommand(ctx))

	return modelsCmd
}

func newModelsListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured models",
		RunE: func(cmd *cobra.Command, args []string) error {
			models, err := ctx.client().ListModels(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, models)
			}
			if len(models) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No models configured")
				return nil
			}
			rows := make([][]string, 0, len(models))
			for _, m := range models {
				rows = append(rows, []string{m.ID, m.Name, m.ExecMode, m.LoadMode})
			}
			table := renderTable([]string{"ID", "Name", "Exec Mode", "Load Mode"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft})
			fmt.Fprint(cmd.OutOrStdout(), table)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print raw JSON")
	return cmd
}

func newModelsStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status <model-id>",
		Short: "Show a model's runtime status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.client().ModelStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, st)
			}
			colorize := shouldColorize(cmd.OutOrStdout())
			fmt.Fprintln(cmd.OutOrStdout(), renderStatusLine(st.ModelID, processStatusKind(st.Status), describeModelStatus(st), colorize))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print raw JSON")
	return cmd
}

func describeModelStatus(st types.ModelStatus) string {
	if st.PID == 0 {
		return string(st.Status)
	}
	return fmt.Sprintf("%s (pid %d, port %d, up %dms)", st.Status, st.PID, st.Port, st.UptimeMs)
}

func processStatusKind(s types.ProcessStatus) statusKind {
	switch s {
	case types.ProcessRunning:
		return statusOK
	case types.ProcessError:
		return statusError
	case types.ProcessStarting, types.ProcessStopping:
		return statusWarn
	default:
		return statusInfo
	}
}

func newModelsStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start <model-id>",
		Short: "Start a model's backing engine process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.client().StartModel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Model %s: %s\n", st.ModelID, st.Status)
			return nil
		},
	}
}

func newModelsStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <model-id>",
		Short: "Stop a model's backing engine process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.client().StopModel(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Model %s stopped\n", args[0])
			return nil
		},
	}
}
