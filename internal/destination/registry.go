// internal/destination/registry.go
package destination

import (
	"strings"

	"github.com/user/playrelay/internal/types"
)

// Destination is a broadcast target with a human-readable name.
type Destination struct {
	ID   types.DestinationID
	Name string
}

// Registry holds the configured destinations in configuration order. It is
// built once at startup and never mutated afterwards.
type Registry struct {
	order []Destination
	index map[types.DestinationID]int
}

// NewRegistry builds a registry from already-parsed destinations. Later
// duplicates of an id are ignored.
func NewRegistry(dests ...Destination) *Registry {
	r := &Registry{index: make(map[types.DestinationID]int, len(dests))}
	for _, d := range dests {
		if _, dup := r.index[d.ID]; dup {
			continue
		}
		r.index[d.ID] = len(r.order)
		r.order = append(r.order, d)
	}
	return r
}

// Parse reads "id:name,id:name". Entries without an id or a name are
// skipped. The split is on the first colon only, so names may contain colons.
func Parse(config string) *Registry {
	var dests []Destination
	for _, entry := range strings.Split(config, ",") {
		id, name, ok := strings.Cut(strings.TrimSpace(entry), ":")
		id, name = strings.TrimSpace(id), strings.TrimSpace(name)
		if !ok || id == "" || name == "" {
			continue
		}
		dests = append(dests, Destination{ID: types.DestinationID(id), Name: name})
	}
	return NewRegistry(dests...)
}

// ParseIDs reads a bare comma-separated id list, naming each destination
// after its id.
func ParseIDs(config string) *Registry {
	var dests []Destination
	for _, entry := range strings.Split(config, ",") {
		id := strings.TrimSpace(entry)
		if id == "" {
			continue
		}
		dests = append(dests, Destination{ID: types.DestinationID(id), Name: id})
	}
	return NewRegistry(dests...)
}

// All returns the destinations in configuration order.
func (r *Registry) All() []Destination {
	out := make([]Destination, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of destinations.
func (r *Registry) Len() int {
	return len(r.order)
}

// Get returns the destination with the given id.
func (r *Registry) Get(id types.DestinationID) (Destination, bool) {
	i, ok := r.index[id]
	if !ok {
		return Destination{}, false
	}
	return r.order[i], true
}

// Lookup returns the display name for id, or the id itself when unknown.
func (r *Registry) Lookup(id types.DestinationID) string {
	if d, ok := r.Get(id); ok {
		return d.Name
	}
	return string(id)
}
