package checkpoint

// frame is one entry of a thread's LIFO call stack, used to pair enter
// and exit records and to assign each enter a per-region invocation
// index (spec §3, §4.G).
type frame struct {
	handle uint64
	index  uint64
	enter  uint64
}

// Log is one thread's append-only checkpoint history. It is never
// shared: a thread writes only its own log, so no locking is needed on
// the hot path (spec §5 "per-thread checkpoint logs: no sharing").
type Log struct {
	threadID uint64
	interner *Interner

	records []Record
	stack   []frame
	next    map[uint64]uint64 // region handle -> next invocation index
}

func newLog(threadID uint64, interner *Interner) *Log {
	return &Log{
		threadID: threadID,
		interner: interner,
		records:  make([]Record, 0, 256),
		next:     make(map[uint64]uint64),
	}
}

// Enter records an enter and pushes a new frame onto the thread's call
// stack, assigning the next invocation index for this region.
func (l *Log) Enter(regionID string, ts uint64) {
	handle := l.interner.Handle(regionID)
	idx := l.next[handle]
	l.next[handle] = idx + 1
	l.stack = append(l.stack, frame{handle: handle, index: idx, enter: ts})
	l.records = append(l.records, Record{
		TimestampNS:     ts,
		Kind:            Enter,
		RegionID:        regionID,
		RegionHandle:    handle,
		InvocationIndex: idx,
		ThreadID:        l.threadID,
	})
}

// Exit pairs against the top of the call stack LIFO. An empty stack or
// a region mismatch against the top frame is tagged orphan; the record
// is still appended (spec §4.G, §7 "checkpoint anomaly").
func (l *Log) Exit(regionID string, ts uint64) {
	handle := l.interner.Handle(regionID)

	var idx uint64
	orphan := true
	if n := len(l.stack); n > 0 {
		top := l.stack[n-1]
		if top.handle == handle {
			idx = top.index
			l.stack = l.stack[:n-1]
			orphan = false
		}
	}

	l.records = append(l.records, Record{
		TimestampNS:     ts,
		Kind:            Exit,
		RegionID:        regionID,
		RegionHandle:    handle,
		InvocationIndex: idx,
		ThreadID:        l.threadID,
		Orphan:          orphan,
	})
}

// Mark records a standalone marker. Its enclosing region, if any, is
// resolved later by the correlator from a reconstructed stack snapshot,
// not here.
func (l *Log) Mark(regionID string, ts uint64) {
	handle := l.interner.Handle(regionID)
	l.records = append(l.records, Record{
		TimestampNS:  ts,
		Kind:         Mark,
		RegionID:     regionID,
		RegionHandle: handle,
		ThreadID:     l.threadID,
	})
}

// Records returns a copy of the log's contents; the correlator and
// tests read it without risk of observing future appends.
func (l *Log) Records() []Record {
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// OpenInvocations returns the stack snapshot at the moment of the call,
// used by the correlator both to resolve a mark's enclosing region and
// to attribute unclosed enters at session stop (spec §4.H truncation).
func (l *Log) OpenInvocations() []Record {
	out := make([]Record, len(l.stack))
	for i, f := range l.stack {
		name, _ := l.interner.Name(f.handle)
		out[i] = Record{
			TimestampNS:     f.enter,
			Kind:            Enter,
			RegionID:        name,
			RegionHandle:    f.handle,
			InvocationIndex: f.index,
			ThreadID:        l.threadID,
		}
	}
	return out
}

func (l *Log) ThreadID() uint64 { return l.threadID }
