package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"forge/internal/forgectl"
	"forge/pkg/types"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Submit and manage generation jobs",
	}

	jobsCmd.AddCommand(newJobsGenerateCommand(ctx))
	jobsCmd.AddCommand(newJobsEditCommand(ctx))
	jobsCmd.AddCommand(newJobsVariationCommand(ctx))
	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsCancelCommand(ctx))

	return jobsCmd
}

func newJobsGenerateCommand(ctx *commandContext) *cobra.Command {
	var opts jobFlags
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Submit a text-to-image generation job",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := ctx.client().CreateJob(cmd.Context(), "generate", opts.toRequest())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job submitted: %s\n", id)
			return nil
		},
	}
	opts.register(cmd)
	return cmd
}

func newJobsEditCommand(ctx *commandContext) *cobra.Command {
	var opts jobFlags
	var image, mask string
	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Submit an image-edit job",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := ctx.client().CreateJobWithFiles(cmd.Context(), "edit", opts.toRequest(), image, mask)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job submitted: %s\n", id)
			return nil
		},
	}
	opts.register(cmd)
	cmd.Flags().StringVar(&image, "image", "", "Path to the source image to edit")
	cmd.Flags().StringVar(&mask, "mask", "", "Path to a mask image (transparent regions are edited)")
	_ = cmd.MarkFlagRequired("image")
	return cmd
}

func newJobsVariationCommand(ctx *commandContext) *cobra.Command {
	var opts jobFlags
	var image string
	cmd := &cobra.Command{
		Use:   "variation",
		Short: "Submit an image-variation job",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := ctx.client().CreateJobWithFiles(cmd.Context(), "variation", opts.toRequest(), image, "")
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job submitted: %s\n", id)
			return nil
		},
	}
	opts.register(cmd)
	cmd.Flags().StringVar(&image, "image", "", "Path to the source image to vary")
	_ = cmd.MarkFlagRequired("image")
	return cmd
}

type jobFlags struct {
	model  string
	prompt string
	width  int
	height int
	n      int
}

func (f *jobFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.model, "model", "", "Model id to dispatch to")
	cmd.Flags().StringVar(&f.prompt, "prompt", "", "Generation prompt")
	cmd.Flags().IntVar(&f.width, "width", 0, "Output width in pixels")
	cmd.Flags().IntVar(&f.height, "height", 0, "Output height in pixels")
	cmd.Flags().IntVar(&f.n, "n", 0, "Number of images to generate")
	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("prompt")
}

func (f *jobFlags) toRequest() forgectl.CreateJobRequest {
	return forgectl.CreateJobRequest{
		Model:  f.model,
		Prompt: f.prompt,
		Width:  f.width,
		Height: f.height,
		N:      f.n,
	}
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var limit, offset int
	var statuses []string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := ctx.client().ListJobs(cmd.Context(), limit, offset, statuses)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, list)
			}
			if len(list.Jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs found")
				return nil
			}
			rows := make([][]string, 0, len(list.Jobs))
			for _, j := range list.Jobs {
				rows = append(rows, []string{j.ID, string(j.Type), j.ModelID, string(j.Status), fmt.Sprintf("%.0f%%", j.Progress*100)})
			}
			table := renderTable([]string{"ID", "Type", "Model", "Status", "Progress"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight})
			fmt.Fprint(cmd.OutOrStdout(), table)
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d jobs\n", len(list.Jobs), list.Pagination.Total)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum jobs to return")
	cmd.Flags().IntVar(&offset, "offset", 0, "Pagination offset")
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print raw JSON")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show a job's details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := ctx.client().GetJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, job)
			}
			printJobDetail(cmd, job)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print raw JSON")
	return cmd
}

func printJobDetail(cmd *cobra.Command, job types.Job) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	fmt.Fprintln(out, renderStatusLine("ID", statusInfo, job.ID, colorize))
	fmt.Fprintln(out, renderStatusLine("Type", statusInfo, string(job.Type), colorize))
	fmt.Fprintln(out, renderStatusLine("Model", statusInfo, job.ModelID, colorize))
	fmt.Fprintln(out, renderStatusLine("Status", jobStatusKind(job.Status), string(job.Status), colorize))
	fmt.Fprintln(out, renderStatusLine("Progress", statusInfo, fmt.Sprintf("%.0f%%", job.Progress*100), colorize))
	if job.Error != "" {
		fmt.Fprintln(out, renderStatusLine("Error", statusError, job.Error, colorize))
	}
	for _, img := range job.Images {
		fmt.Fprintln(out, renderStatusLine("Image", statusOK, fmt.Sprintf("%s (%s)", img.ID, img.URL), colorize))
	}
}

func jobStatusKind(s types.JobStatus) statusKind {
	switch s {
	case types.JobCompleted:
		return statusOK
	case types.JobFailed, types.JobCancelled:
		return statusError
	case types.JobProcessing:
		return statusWarn
	default:
		return statusInfo
	}
}

func newJobsCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a pending job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.client().CancelJob(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s cancelled\n", args[0])
			return nil
		},
	}
}
