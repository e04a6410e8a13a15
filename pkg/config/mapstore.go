package config

import "context"

// MapBackend wraps a bare memStore with no external durability; used
// by tests and by the "map:" configUrl prefix.
type MapBackend struct {
	*memStore
}

// NewMapBackend creates an in-memory-only configuration store seeded
// with p (DefaultParams() if the zero value is not wanted).
func NewMapBackend(p Params) *MapBackend {
	return &MapBackend{memStore: newMemStore(p)}
}

func (b *MapBackend) AddDatabaseFamily(_ context.Context, f DatabaseFamily) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addDatabaseFamilyLocked(f)
}

func (b *MapBackend) DeleteDatabaseFamily(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.deleteDatabaseFamilyLocked(name)
}

func (b *MapBackend) AddDatabase(_ context.Context, db Database) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addDatabaseLocked(db)
}

func (b *MapBackend) DeleteDatabase(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.deleteDatabaseLocked(name)
}

func (b *MapBackend) PublishDatabase(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.publishDatabaseLocked(name)
}

func (b *MapBackend) AddTable(_ context.Context, req AddTableRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addTableLocked(req)
}

func (b *MapBackend) DeleteTable(_ context.Context, database, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.deleteTableLocked(database, name)
}

func (b *MapBackend) AddWorker(_ context.Context, w Worker) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addWorkerLocked(w)
}

func (b *MapBackend) RemoveWorker(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.removeWorkerLocked(name)
}

func (b *MapBackend) DisableWorker(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.disableWorkerLocked(name)
}

func (b *MapBackend) SetWorkerEndpoint(_ context.Context, name string, mutate func(*Worker)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.setWorkerEndpointLocked(name, mutate)
}

func (b *MapBackend) Close() error { return nil }
