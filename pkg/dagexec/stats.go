package dagexec

import (
	"github.com/dpmerrell/dagger/dagapi"
)

// Might not match the package name -- funcs in this file don't exec anything.

// RunStats counts up what a run did: the admission order (which is what
// makes schedules comparable across replays), terminal tallies, and the
// in-use high water mark per resource key.
type RunStats struct {
	Admitted       []dagapi.TaskName
	CompletedCount int
	FailedCount    int
	PeakUsage      map[string]int
}

// Stats returns a copy of the run's counters so far.
// Safe to call from any goroutine.
func (m *Manager) Stats() RunStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := RunStats{
		Admitted:       append([]dagapi.TaskName(nil), m.stats.Admitted...),
		CompletedCount: m.stats.CompletedCount,
		FailedCount:    m.stats.FailedCount,
		PeakUsage:      make(map[string]int, len(m.stats.PeakUsage)),
	}
	for k, v := range m.stats.PeakUsage {
		out.PeakUsage[k] = v
	}
	return out
}
