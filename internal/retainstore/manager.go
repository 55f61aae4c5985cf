package retainstore

import "time"

// Manager wraps an optional Store with the dirty-flag and save-cadence
// bookkeeping the runtime's cycle loop ticks every cycle, grounded on
// the teacher domain's RetainManager (configure/mark_dirty/set_save_interval)
// and on core/state/statedb.go's commit-on-dirty idiom.
type Manager struct {
	store        Store
	saveInterval time.Duration
	dirty        bool
	lastSave     time.Time
}

// NewManager builds an unconfigured manager; Configure must be called before
// Tick does any work (a nil store makes every Tick and Flush a no-op).
func NewManager() *Manager {
	return &Manager{}
}

// Configure installs (or replaces) the backing store and save cadence. A
// zero saveInterval disables periodic flushing; callers must still invoke
// Flush explicitly (e.g. on a clean shutdown or a warm-restart request).
func (m *Manager) Configure(store Store, saveInterval time.Duration, now time.Time) {
	m.store = store
	m.saveInterval = saveInterval
	m.lastSave = now
}

// MarkDirty records that at least one retained global changed since the
// last flush, so the next elapsed Tick actually saves.
func (m *Manager) MarkDirty() {
	m.dirty = true
}

// SetSaveInterval updates the save cadence without touching the store.
func (m *Manager) SetSaveInterval(d time.Duration) {
	m.saveInterval = d
}

// Tick checks whether save_interval has elapsed since the last flush and,
// if so and the retained set is dirty, calls snapshot and saves it. snapshot
// is supplied lazily so the caller only builds the (potentially expensive)
// serialized map when a flush is actually due.
func (m *Manager) Tick(now time.Time, snapshot func() (map[string][]byte, error)) error {
	if m.store == nil || m.saveInterval <= 0 {
		return nil
	}
	if !m.dirty {
		return nil
	}
	if now.Sub(m.lastSave) < m.saveInterval {
		return nil
	}
	return m.flush(now, snapshot)
}

// Flush saves unconditionally, independent of the dirty flag or elapsed
// interval — used on clean shutdown and warm restart.
func (m *Manager) Flush(now time.Time, snapshot func() (map[string][]byte, error)) error {
	if m.store == nil {
		return nil
	}
	return m.flush(now, snapshot)
}

func (m *Manager) flush(now time.Time, snapshot func() (map[string][]byte, error)) error {
	values, err := snapshot()
	if err != nil {
		return err
	}
	if err := m.store.Save(values); err != nil {
		return err
	}
	m.dirty = false
	m.lastSave = now
	return nil
}

// Load reads back the persisted retained-global set, e.g. on a cold start
// with an existing retain store.
func (m *Manager) Load() (map[string][]byte, error) {
	if m.store == nil {
		return map[string][]byte{}, nil
	}
	return m.store.Load()
}

func (m *Manager) Close() error {
	if m.store == nil {
		return nil
	}
	return m.store.Close()
}
