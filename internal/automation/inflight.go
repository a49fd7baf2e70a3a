package automation

import "sync"

// InFlight is the per-job mutual-exclusion registry. It is process-wide and
// never persisted; a restart clears it. Scheduled ticks and manual runs both
// go through the same registry, so the same job can never execute twice
// concurrently.
type InFlight struct {
	mu   sync.Mutex
	jobs map[string]struct{}
}

func NewInFlight() *InFlight {
	return &InFlight{jobs: make(map[string]struct{})}
}

// TryAcquire claims the job id. It returns false when the job is already
// running; the caller must skip, not queue.
func (f *InFlight) TryAcquire(jobID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, held := f.jobs[jobID]; held {
		return false
	}
	f.jobs[jobID] = struct{}{}
	return true
}

func (f *InFlight) Release(jobID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.jobs, jobID)
}
