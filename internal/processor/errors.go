package processor

import "fmt"

// UnknownModel reports a job referencing a model id not present in the
// configured model set.
type UnknownModel struct {
	ModelID string
}

func (e UnknownModel) Error() string {
	return fmt.Sprintf("unknown model %q", e.ModelID)
}

func (e UnknownModel) ErrorKind() string { return "unknown_model" }

// ModelStartFailure wraps a failure to spawn or ready-probe a model's
// backing engine process.
type ModelStartFailure struct {
	ModelID string
	Err     error
}

func (e ModelStartFailure) Error() string {
	return fmt.Sprintf("start model %q: %v", e.ModelID, e.Err)
}

func (e ModelStartFailure) Unwrap() error { return e.Err }

func (e ModelStartFailure) ErrorKind() string { return "model_start_failure" }

// StartupTimeout reports that a model did not become ready in time.
type StartupTimeout struct {
	ModelID string
	Err     error
}

func (e StartupTimeout) Error() string {
	return fmt.Sprintf("model %q did not become ready: %v", e.ModelID, e.Err)
}

func (e StartupTimeout) Unwrap() error { return e.Err }

func (e StartupTimeout) ErrorKind() string { return "startup_timeout" }

// PortExhausted reports that no port was available to start a model.
type PortExhausted struct {
	ModelID string
	Err     error
}

func (e PortExhausted) Error() string {
	return fmt.Sprintf("no port available for model %q: %v", e.ModelID, e.Err)
}

func (e PortExhausted) Unwrap() error { return e.Err }

func (e PortExhausted) ErrorKind() string { return "port_exhausted" }

// ProcessCrashed reports that a model's engine process exited while a job
// was dispatched against it.
type ProcessCrashed struct {
	ModelID string
}

func (e ProcessCrashed) Error() string {
	return fmt.Sprintf("model %q process crashed during dispatch", e.ModelID)
}

func (e ProcessCrashed) ErrorKind() string { return "process_crashed" }

// EngineHTTPError reports a non-2xx response from a server-mode engine.
type EngineHTTPError struct {
	ModelID    string
	StatusCode int
	Body       string
}

func (e EngineHTTPError) Error() string {
	return fmt.Sprintf("engine %q returned status %d: %s", e.ModelID, e.StatusCode, e.Body)
}

func (e EngineHTTPError) ErrorKind() string { return "engine_http_error" }

// EngineBadResponse reports a server-mode engine response that could not
// be decoded into the expected shape.
type EngineBadResponse struct {
	ModelID string
	Err     error
}

func (e EngineBadResponse) Error() string {
	return fmt.Sprintf("engine %q returned an unparseable response: %v", e.ModelID, e.Err)
}

func (e EngineBadResponse) Unwrap() error { return e.Err }

func (e EngineBadResponse) ErrorKind() string { return "engine_bad_response" }

// CLIExitNonZero reports a cli-mode engine invocation that exited non-zero.
type CLIExitNonZero struct {
	ModelID  string
	ExitCode int
	Stderr   string
}

func (e CLIExitNonZero) Error() string {
	return fmt.Sprintf("engine %q exited %d: %s", e.ModelID, e.ExitCode, e.Stderr)
}

func (e CLIExitNonZero) ErrorKind() string { return "cli_exit_nonzero" }

// CLIOutputUnparseable reports a cli-mode engine invocation that exited
// zero but produced no usable output image.
type CLIOutputUnparseable struct {
	ModelID string
	Detail  string
}

func (e CLIOutputUnparseable) Error() string {
	return fmt.Sprintf("engine %q produced no usable output: %s", e.ModelID, e.Detail)
}

func (e CLIOutputUnparseable) ErrorKind() string { return "cli_output_unparseable" }

// JobInvalid reports a job whose parameters cannot be dispatched (for
// example, a missing required source image for an edit or variation job).
type JobInvalid struct {
	Reason string
}

func (e JobInvalid) Error() string { return fmt.Sprintf("invalid job: %s", e.Reason) }

func (e JobInvalid) ErrorKind() string { return "job_invalid" }

// JobCancelled reports that a job was cancelled while being dispatched.
// queue.FailureStatus routes this kind to StatusCancelled instead of
// StatusFailed.
type JobCancelled struct {
	JobID string
}

func (e JobCancelled) Error() string { return fmt.Sprintf("job %q cancelled", e.JobID) }

func (e JobCancelled) ErrorKind() string { return "cancelled" }
