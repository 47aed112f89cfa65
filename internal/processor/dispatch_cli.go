package processor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"forge/internal/config"
	"forge/internal/queue"
)

// dispatchCLI assembles an argument vector from the model's configured
// command/args plus job-specific flags, runs it, and loads the resulting
// image bytes from the output path it wrote. Only one --steps flag is
// ever appended, matching whichever source (explicit value, model
// default, or quality mapping) resolveSampleSteps settled on.
func (d *dispatcher) dispatchCLI(ctx context.Context, job *queue.Job, model config.ModelConfig, params effectiveParams, outputDir string) ([]dispatchedImage, error) {
	outputPath := filepath.Join(outputDir, job.ID+".png")

	args := append([]string{}, model.Args...)
	args = append(args, "--prompt", job.Prompt)
	if job.NegativePrompt != "" {
		args = append(args, "--negative-prompt", job.NegativePrompt)
	}
	if params.Width > 0 {
		args = append(args, "--width", strconv.Itoa(params.Width))
	}
	if params.Height > 0 {
		args = append(args, "--height", strconv.Itoa(params.Height))
	}
	if job.Seed != nil {
		args = append(args, "--seed", strconv.FormatInt(*job.Seed, 10))
	}
	if params.SampleSteps != nil {
		args = append(args, "--steps", strconv.Itoa(*params.SampleSteps))
	}
	if job.Type == queue.TypeVariation && params.Strength != nil {
		args = append(args, "--strength", strconv.FormatFloat(*params.Strength, 'f', -1, 64))
	}
	if job.SourceImagePath != "" {
		args = append(args, "--init-img", job.SourceImagePath)
	}
	if job.MaskPath != "" {
		args = append(args, "--mask", job.MaskPath)
	}
	args = append(args, "--output", outputPath)

	stdout, stderr, err := d.exec.Run(ctx, model.Command, args)
	if err != nil {
		code := exitCode(err)
		return nil, CLIExitNonZero{ModelID: model.ID, ExitCode: code, Stderr: string(stderr) + string(stdout)}
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, CLIOutputUnparseable{ModelID: model.ID, Detail: fmt.Sprintf("read output %s: %v", outputPath, err)}
	}
	defer os.Remove(outputPath)

	return []dispatchedImage{{
		Index: 0,
		MIME:  "image/png",
		Data:  data,
	}}, nil
}

func exitCode(err error) int {
	type exitCoder interface{ ExitCode() int }
	if ec, ok := err.(exitCoder); ok {
		return ec.ExitCode()
	}
	return -1
}
