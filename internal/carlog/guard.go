package carlog

import "sync"

// StoreGuard coordinates access to live storage within a process.
// At most one restore runs at a time, and while a restore is between
// snapshotting and its terminal state it holds the store exclusively.
// Backups take the shared side so they never observe a half-cleared store.
type StoreGuard struct {
	restore sync.Mutex
	store   sync.RWMutex
}

// NewStoreGuard creates an unlocked guard.
func NewStoreGuard() *StoreGuard {
	return &StoreGuard{}
}
