package config

import (
	"os"
	"path/filepath"

	"github.com/serum-errors/go-serum"

	"github.com/dpmerrell/dagger/dagapi"
)

// State is a snapshot of the process environment the engine cares about:
// the DAGGER_* variables and the working directory workflow paths resolve
// against. Commands snapshot once up front, so behavior stays stable even
// if the environment mutates while a workflow runs.
type State struct {
	Env              map[string]string
	WorkingDirectory string
}

// Load snapshots the environment.
//
// Errors:
//
//   - dagger-error-initialization -- when the working directory cannot be determined
func Load() (State, error) {
	env := make(map[string]string, len(envKeys))
	for _, key := range envKeys {
		if v, ok := os.LookupEnv(key); ok {
			env[key] = v
		}
	}
	wd, err := os.Getwd()
	if err != nil {
		return State{}, serum.Error(dagapi.CodeInitialization,
			serum.WithMessageLiteral("unable to get working directory"),
			serum.WithCause(err),
		)
	}
	return State{Env: env, WorkingDirectory: wd}, nil
}

// Resolve joins a possibly-relative path against the snapshot's working
// directory. Absolute paths pass through untouched.
func (s State) Resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.WorkingDirectory, path)
}
