package util

// Module is the service name reported on traces.
const Module = "dagger"

// Version is the CLI version string.
const Version = "v0.1.0"
