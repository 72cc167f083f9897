package config

import (
	"runtime"
	"strconv"
	"time"
)

// PoolSize returns the worker count for the default worker pool.
func PoolSize(state State) int {
	if v, ok := state.Env[EnvDaggerPoolSize]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return runtime.NumCPU()
}

// PollInterval returns the scheduler's polling backoff ceiling.
func PollInterval(state State) time.Duration {
	if v, ok := state.Env[EnvDaggerPollInterval]; ok {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return 50 * time.Millisecond
}

// KeepFailedOutputs reports whether failed tasks should keep any outputs
// they managed to produce, for postmortem inspection.
func KeepFailedOutputs(state State) bool {
	_, ok := state.Env[EnvDaggerKeepFailedOutputs]
	return ok
}
