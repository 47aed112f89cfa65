package processor

import (
	"forge/internal/config"
	"forge/internal/queue"
)

// qualityStepsMapping provides a sample_steps fallback when a job specifies
// a quality hint and neither the job nor the model's generation_params
// supply sample_steps. There is deliberately no
// fallback beyond this mapping and the model's own default: a job with
// neither an explicit value, a quality hint, nor a model default is
// dispatched with no steps parameter at all.
var qualityStepsMapping = map[string]int{
	"standard": 20,
	"hd":       30,
}

// effectiveParams is the fully-resolved set of generation parameters for
// one dispatch: user-supplied values win, falling back to the model's
// generation_params defaults, and finally to nothing at all.
type effectiveParams struct {
	Width          int
	Height         int
	CFGScale       *float64
	SampleSteps    *int
	SamplingMethod string
	ClipSkip       *int
	Strength       *float64
}

// resolveParams computes the effective parameters for a job against its
// model's configured defaults, per the processor's parameter precedence
// rule: user value, else model default, else omitted. strength defaults to
// 0.75 specifically for variation jobs when the job supplied none.
func resolveParams(job *queue.Job, model config.ModelConfig) effectiveParams {
	defaults := model.GenerationParams
	out := effectiveParams{
		Width:          firstNonZeroInt(job.Width, defaults.Width),
		Height:         firstNonZeroInt(job.Height, defaults.Height),
		SamplingMethod: firstNonEmptyString(job.SamplingMethod, defaults.SamplingMethod),
	}

	if job.CFGScale != nil {
		out.CFGScale = job.CFGScale
	} else if defaults.CFGScale != 0 {
		v := defaults.CFGScale
		out.CFGScale = &v
	}

	if job.ClipSkip != nil {
		out.ClipSkip = job.ClipSkip
	} else if defaults.ClipSkip != 0 {
		v := defaults.ClipSkip
		out.ClipSkip = &v
	}

	out.SampleSteps = resolveSampleSteps(job, defaults)
	out.Strength = resolveStrength(job)

	return out
}

// resolveSampleSteps never falls back to a hard-coded constant: only the
// job's explicit value, the model's configured default, or a quality hint
// mapping (itself only consulted when neither of the first two is set) may
// supply sample_steps.
func resolveSampleSteps(job *queue.Job, defaults config.GenerationParams) *int {
	if job.SampleSteps != nil {
		return job.SampleSteps
	}
	if defaults.SampleSteps != 0 {
		v := defaults.SampleSteps
		return &v
	}
	if job.Quality != "" {
		if steps, ok := qualityStepsMapping[job.Quality]; ok {
			return &steps
		}
	}
	return nil
}

func resolveStrength(job *queue.Job) *float64 {
	if job.Strength != nil {
		return job.Strength
	}
	if job.Type == queue.TypeVariation {
		v := 0.75
		return &v
	}
	return nil
}

func firstNonZeroInt(vals ...int) int {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}

func firstNonEmptyString(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
