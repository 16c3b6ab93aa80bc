package freeze

import "sync"

// Registry is the ordered set of script identifiers announced by the live
// page.
type Registry struct {
	mu   sync.Mutex
	ids  []string
	seen map[string]struct{}
}

// NewRegistry creates a registry holding seed, in order and deduplicated.
func NewRegistry(seed ...string) *Registry {
	r := &Registry{seen: make(map[string]struct{})}
	for _, id := range seed {
		r.Announce(id)
	}
	return r
}

// Announce records id. Empty and duplicate ids are ignored; the return value
// reports whether id was added.
func (r *Registry) Announce(id string) bool {
	if id == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.seen[id]; ok {
		return false
	}
	r.seen[id] = struct{}{}
	r.ids = append(r.ids, id)
	return true
}

// IDs returns a copy of the identifiers in announce order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

// Len returns the number of identifiers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}
