// Package checkpoint records enter/exit/mark events from user threads
// with no locking on the hot path and no energy reads: a per-thread
// append-only log paired with a region-id interner shared across
// threads. The offline correlator (pkg/correlator) is what turns these
// logs, plus the coordinator's sample buffer, into energy attributions.
package checkpoint
