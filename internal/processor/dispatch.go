package processor

import (
	"context"
	"net/http"
	"os/exec"
)

// Executor abstracts subprocess execution for cli-mode dispatch so tests
// can inject a fake instead of shelling out to a real engine binary.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) (stdout, stderr []byte, err error)
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	var stdout, stderr []byte
	outPipe, err := cmd.Output()
	stdout = outPipe
	if exitErr, ok := err.(*exec.ExitError); ok {
		stderr = exitErr.Stderr
	}
	return stdout, stderr, err
}

// httpDoer is the narrow HTTP surface dispatch needs, satisfied by
// *http.Client and fakeable in tests.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type dispatcher struct {
	exec   Executor
	client httpDoer
}

func newDispatcher() dispatcher {
	return dispatcher{
		exec:   commandExecutor{},
		client: &http.Client{},
	}
}
