package queue

import (
	"context"
	"encoding/json"
	"time"

	"forge/internal/config"
)

// UpsertModel mirrors a configured model descriptor into the models table
// so other processes (e.g. the CLI) can read the effective model set
// without parsing configuration themselves.
func (s *Store) UpsertModel(ctx context.Context, m config.ModelConfig) error {
	args, err := json.Marshal(m.Args)
	if err != nil {
		return err
	}
	genParams, err := json.Marshal(m.GenerationParams)
	if err != nil {
		return err
	}
	registryFiles, err := json.Marshal(m.RegistryFiles)
	if err != nil {
		return err
	}
	capabilities, err := json.Marshal(m.Capabilities)
	if err != nil {
		return err
	}

	const stmt = `
INSERT INTO models (
    id, name, description, command, args, api_url, load_mode, exec_mode,
    port, startup_timeout_ms, generation_params, registry_repo,
    registry_files, capabilities, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    name = excluded.name,
    description = excluded.description,
    command = excluded.command,
    args = excluded.args,
    api_url = excluded.api_url,
    load_mode = excluded.load_mode,
    exec_mode = excluded.exec_mode,
    port = excluded.port,
    startup_timeout_ms = excluded.startup_timeout_ms,
    generation_params = excluded.generation_params,
    registry_repo = excluded.registry_repo,
    registry_files = excluded.registry_files,
    capabilities = excluded.capabilities,
    updated_at = excluded.updated_at
`
	_, err = s.execWithRetry(ctx, stmt,
		m.ID, m.Name, m.Description, m.Command, string(args), m.APIURL,
		m.LoadMode, m.ExecMode, m.Port, m.StartupTimeoutMs, string(genParams),
		m.RegistryRepo, string(registryFiles), string(capabilities),
		formatTime(time.Now()),
	)
	return err
}

// ListModels returns every mirrored model descriptor, ordered by id.
func (s *Store) ListModels(ctx context.Context) ([]config.ModelConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, name, description, command, args, api_url, load_mode, exec_mode,
       port, startup_timeout_ms, generation_params, registry_repo,
       registry_files, capabilities
FROM models ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []config.ModelConfig
	for rows.Next() {
		var m config.ModelConfig
		var args, genParams, registryFiles, capabilities string
		if err := rows.Scan(&m.ID, &m.Name, &m.Description, &m.Command, &args,
			&m.APIURL, &m.LoadMode, &m.ExecMode, &m.Port, &m.StartupTimeoutMs,
			&genParams, &m.RegistryRepo, &registryFiles, &capabilities); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(args), &m.Args); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(genParams), &m.GenerationParams); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(registryFiles), &m.RegistryFiles); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(capabilities), &m.Capabilities); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
