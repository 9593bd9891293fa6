package state

import "github.com/loro-dev/loro-go/internal/change"

// DeepValue resolves a container's Value(), recursively expanding any
// nested Container references into their own materialized value —
// the "deep" variant of get_value used by round-trip tests and by
// human-readable debugging paths.
func (d *Doc) DeepValue(idx change.ContainerIdx, registry *change.Registry) change.Value {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.deepValueLocked(idx, registry, make(map[change.ContainerIdx]bool))
}

func (d *Doc) deepValueLocked(idx change.ContainerIdx, registry *change.Registry, visiting map[change.ContainerIdx]bool) change.Value {
	st, ok := d.containers[idx]
	if !ok {
		return change.NullValue()
	}
	if visiting[idx] {
		return change.NullValue() // defends against a pathological cycle in container nesting
	}
	visiting[idx] = true
	defer delete(visiting, idx)

	return d.expandLocked(st.Value(), registry, visiting)
}

func (d *Doc) expandLocked(v change.Value, registry *change.Registry, visiting map[change.ContainerIdx]bool) change.Value {
	switch v.Kind {
	case change.KindContainer:
		childIdx, ok := registry.Lookup(v.Container)
		if !ok {
			return v
		}
		return d.deepValueLocked(childIdx, registry, visiting)
	case change.KindValueList:
		out := make([]change.Value, len(v.List))
		for i, e := range v.List {
			out[i] = d.expandLocked(e, registry, visiting)
		}
		return change.ListValue(out)
	case change.KindValueMap:
		out := make(map[string]change.Value, len(v.Map))
		for k, e := range v.Map {
			out[k] = d.expandLocked(e, registry, visiting)
		}
		return change.MapValue(out)
	default:
		return v
	}
}

// DiagnoseSize summarizes the engine's memory footprint: the Document
// API's diagnose_size query, returned as is by pkg/loro's
// Document.DiagnoseSize. No metric is fed from it.
type DiagnoseSize struct {
	ContainerCount int
	StateBytes     int
	PendingChanges int
}

// Diagnose returns a size summary of the currently materialized state.
func (d *Doc) Diagnose() DiagnoseSize {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := DiagnoseSize{ContainerCount: len(d.containers), PendingChanges: d.log.PendingCount()}
	for _, st := range d.containers {
		out.StateBytes += len(st.EncodeSnapshot())
	}
	return out
}
