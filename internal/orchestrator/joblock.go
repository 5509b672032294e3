package orchestrator

import "sync"

// jobLocks hands out one mutex per job ID so completion handling and
// finalization for the same job are serialized in-process. Locks are
// never evicted; the per-job footprint is one mutex and jobs are
// short-lived relative to process lifetime.
type jobLocks struct {
	locks sync.Map
}

func (l *jobLocks) lock(jobID string) func() {
	v, _ := l.locks.LoadOrStore(jobID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
