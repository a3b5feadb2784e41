package checkpoint

// Record is one checkpoint event (spec §3 "Checkpoint record"). RegionID
// is a resolved name, not a handle: the log itself stores handles, but
// callers reading it back (the correlator, tests) want names.
type Record struct {
	TimestampNS     uint64
	Kind            Kind
	RegionID        string
	RegionHandle    uint64
	InvocationIndex uint64
	ThreadID        uint64
	Orphan          bool
}
