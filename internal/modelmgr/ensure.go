package modelmgr

import "context"

// EnsureRunning returns the API URL a server-mode model can be dispatched
// to, starting it if necessary. For cli-mode models it returns an empty
// URL and no error: cli dispatch never talks to a running server.
func (m *Manager) EnsureRunning(ctx context.Context, modelID string) (string, error) {
	model, ok := m.descriptors.ByID(modelID)
	if !ok {
		return "", ErrNotFound{ModelID: modelID}
	}
	if model.ExecMode != "server" {
		return "", nil
	}

	if record, ok := m.registry.Get(modelID); ok && m.registry.IsRunning(modelID) {
		return substitutePort(model.APIURL, record.Port), nil
	}

	record, err := m.Start(ctx, modelID)
	if err != nil {
		if IsAlreadyRunning(err) {
			if existing, ok := m.registry.Get(modelID); ok {
				return substitutePort(model.APIURL, existing.Port), nil
			}
		}
		return "", err
	}
	return substitutePort(model.APIURL, record.Port), nil
}
