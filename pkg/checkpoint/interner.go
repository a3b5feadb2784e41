package checkpoint

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Interner maps region_id strings to stable integer handles (spec §4.G).
// Reads dominate after warm-up; inserts are rare. The one-time insert of
// a never-seen-before region_id is collapsed onto a single winner via
// singleflight, so concurrent first-seen Handle calls for the same
// string don't race to reserve distinct handles; already-known names
// never touch the singleflight group and only pay for a sync.Map load.
type Interner struct {
	handles sync.Map // string -> uint64
	names   sync.Map // uint64 -> string
	next    atomic.Uint64
	insert  singleflight.Group
}

func NewInterner() *Interner {
	return &Interner{}
}

// Handle returns the stable handle for id, assigning a new one on first
// occurrence. Handles, once assigned, are immutable for the lifetime of
// the interner.
func (in *Interner) Handle(id string) uint64 {
	if h, ok := in.handles.Load(id); ok {
		return h.(uint64)
	}
	v, _, _ := in.insert.Do(id, func() (any, error) {
		if h, ok := in.handles.Load(id); ok {
			return h.(uint64), nil
		}
		h := in.next.Add(1) - 1
		in.handles.Store(id, h)
		in.names.Store(h, id)
		return h, nil
	})
	return v.(uint64)
}

// Name reverses Handle, used by the correlator to label attributions.
func (in *Interner) Name(handle uint64) (string, bool) {
	v, ok := in.names.Load(handle)
	if !ok {
		return "", false
	}
	return v.(string), true
}
