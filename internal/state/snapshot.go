package state

import "github.com/loro-dev/loro-go/internal/change"

// ContainerIDs returns the id of every container materialized so far, in
// no particular order. Implements half of
// internal/encoding.ContainerStateSource, the view an export needs to walk
// every live container's state.
func (d *Doc) ContainerIDs() []change.ContainerID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	registry := d.log.Registry()
	out := make([]change.ContainerID, 0, len(d.containers))
	for idx := range d.containers {
		if cid, ok := registry.ID(idx); ok {
			out = append(out, cid)
		}
	}
	return out
}

// ParentOf returns the container whose current value directly nests cid,
// if any (root containers have no parent). A linear scan over the
// materialized containers; the child-of relation is small and queried
// rarely, so no reverse index is kept.
func (d *Doc) ParentOf(cid change.ContainerID) (change.ContainerID, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	registry := d.log.Registry()
	for idx, st := range d.containers {
		for _, child := range st.ChildContainers() {
			if child == cid {
				if parent, ok := registry.ID(idx); ok {
					return parent, true
				}
			}
		}
	}
	return change.ContainerID{}, false
}

// EncodeContainerSnapshot returns cid's current state blob, if it has been
// materialized.
func (d *Doc) EncodeContainerSnapshot(cid change.ContainerID) ([]byte, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	idx, ok := d.log.Registry().Lookup(cid)
	if !ok {
		return nil, false
	}
	st, ok := d.containers[idx]
	if !ok {
		return nil, false
	}
	return st.EncodeSnapshot(), true
}
