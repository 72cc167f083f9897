package config

const (
	// EnvDaggerPoolSize overrides the number of workers in the default worker pool.
	EnvDaggerPoolSize = "DAGGER_POOL_SIZE"
	// EnvDaggerPollInterval overrides the scheduler's polling backoff ceiling, in milliseconds.
	EnvDaggerPollInterval = "DAGGER_POLL_INTERVAL_MS"
	// EnvDaggerKeepFailedOutputs prevents clearing the outputs of failed tasks during cleanup.
	EnvDaggerKeepFailedOutputs = "DAGGER_KEEP_FAILED_OUTPUTS"
)

// NOTE: keep this up to date or the config loader won't load them
var envKeys = []string{
	EnvDaggerPoolSize,
	EnvDaggerPollInterval,
	EnvDaggerKeepFailedOutputs,
}
