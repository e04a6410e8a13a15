// Package locker implements the Chunk Locker: a registry
// mapping (family, chunk) to the job currently allowed to operate on
// it. A job must acquire a lock before touching a chunk's replicas and
// release it (or have it released on its behalf) when it finishes,
// fails, or is cancelled. Locking is never reentrant: a job holding a
// lock cannot acquire it a second time.
package locker

import "sync"

// Key identifies a chunk within a database family, the unit of
// collocation across every database of that family.
type Key struct {
	Family string
	Chunk  int32
}

// Locker is safe for concurrent use.
type Locker struct {
	mu    sync.Mutex
	locks map[Key]string // key -> owning job id
}

// New creates an empty Locker.
func New() *Locker {
	return &Locker{locks: make(map[Key]string)}
}

// Lock attempts to acquire key on behalf of jobID. It returns true on
// success; false if key is already held by any job (including jobID
// itself — locking is not reentrant).
func (l *Locker) Lock(key Key, jobID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.locks[key]; held {
		return false
	}
	l.locks[key] = jobID
	return true
}

// LockAll attempts to acquire every key atomically: either all succeed
// or none are held, matching the all-or-nothing semantics jobs need
// when claiming every chunk in a batch before starting work.
func (l *Locker) LockAll(keys []Key, jobID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, k := range keys {
		if _, held := l.locks[k]; held {
			return false
		}
	}
	for _, k := range keys {
		l.locks[k] = jobID
	}
	return true
}

// Release releases key unconditionally.
func (l *Locker) Release(key Key) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.locks, key)
}

// ReleaseByJob releases every key held by jobID. Idempotent: calling it
// for a job holding nothing is a no-op, which matters for a job's
// cleanup path running more than once (e.g. on both cancellation and
// completion).
func (l *Locker) ReleaseByJob(jobID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, owner := range l.locks {
		if owner == jobID {
			delete(l.locks, k)
		}
	}
}

// Locked reports whether key is currently held by any job.
func (l *Locker) Locked(key Key) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, held := l.locks[key]
	return held
}

// LockedByJob returns every key currently held by jobID.
func (l *Locker) LockedByJob(jobID string) []Key {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Key
	for k, owner := range l.locks {
		if owner == jobID {
			out = append(out, k)
		}
	}
	return out
}

// Count returns the total number of chunks currently locked, across
// all jobs.
func (l *Locker) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
