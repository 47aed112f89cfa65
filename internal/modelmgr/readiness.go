package modelmgr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const readinessPollInterval = 500 * time.Millisecond

// waitReady polls healthURL until it answers, proc exits early, parent is
// cancelled, or timeout elapses.
func (m *Manager) waitReady(parent context.Context, modelID string, proc *cmdProcess, healthURL string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if m.probeHealthy(parent, healthURL) {
			return nil
		}
		select {
		case <-proc.waitDone:
			return fmt.Errorf("engine exited before becoming ready")
		case <-parent.Done():
			return parent.Err()
		default:
		}
		if time.Now().After(deadline) {
			return ErrStartupTimeout{ModelID: modelID, Timeout: timeout}
		}
		select {
		case <-time.After(readinessPollInterval):
		case <-proc.waitDone:
			return fmt.Errorf("engine exited before becoming ready")
		case <-parent.Done():
			return parent.Err()
		}
	}
}

func (m *Manager) probeHealthy(parent context.Context, healthURL string) bool {
	ctx, cancel := context.WithTimeout(parent, readinessPollInterval)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
	if err != nil {
		return false
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 500 && !errors.Is(ctx.Err(), context.DeadlineExceeded)
}
