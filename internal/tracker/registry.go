package tracker

import "sync"

// Registry is the ordered, in-memory set of records for one view, newest first.
// It performs no I/O; every mutation happens under a single lock acquisition.
type Registry struct {
	mu      sync.RWMutex
	records []Record
	index   map[ID]int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[ID]int)}
}

// Insert prepends a batch, preserving the batch's own order.
// IDs are assigned by the service and assumed unique.
func (r *Registry) Insert(batch []Record) {
	if len(batch) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	records := make([]Record, 0, len(batch)+len(r.records))
	records = append(records, batch...)
	records = append(records, r.records...)
	r.records = records
	r.reindex()
}

func (r *Registry) reindex() {
	r.index = make(map[ID]int, len(r.records))
	for i, rec := range r.records {
		r.index[rec.ID] = i
	}
}

// ActiveIDs returns the IDs of non-terminal records in registry order.
func (r *Registry) ActiveIDs() []ID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []ID
	for _, rec := range r.records {
		if !rec.IsTerminal() {
			ids = append(ids, rec.ID)
		}
	}
	return ids
}

// Apply merges p into the record with the given id.
func (r *Registry) Apply(id ID, p Payload) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applyLocked(id, p)
}

func (r *Registry) applyLocked(id ID, p Payload) (Record, bool) {
	i, ok := r.index[id]
	if !ok {
		return Record{}, false
	}
	r.records[i] = Merge(r.records[i], p)
	return r.records[i], true
}

// Change describes one record touched by ApplyAll.
type Change struct {
	Before Record
	After  Record
}

// ApplyAll merges a whole tick's results in one step and returns the
// records that were found. Unknown IDs are skipped.
func (r *Registry) ApplyAll(results map[ID]Payload) []Change {
	r.mu.Lock()
	defer r.mu.Unlock()

	changes := make([]Change, 0, len(results))
	for id, p := range results {
		i, ok := r.index[id]
		if !ok {
			continue
		}
		before := r.records[i]
		after, _ := r.applyLocked(id, p)
		changes = append(changes, Change{Before: before, After: after})
	}
	return changes
}

// Get returns a copy of the record with the given id.
func (r *Registry) Get(id ID) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[id]
	if !ok {
		return Record{}, false
	}
	return r.records[i], true
}

// Snapshot returns a copy of all records, newest first.
func (r *Registry) Snapshot() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

// Len returns the number of records.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// AllTerminal reports whether the registry is non-empty and every record is terminal.
func (r *Registry) AllTerminal() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return AllTerminal(r.records)
}

// Clear drops every record.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = nil
	r.index = make(map[ID]int)
}
