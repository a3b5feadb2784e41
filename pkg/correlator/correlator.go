// Package correlator implements spec §4.H: joining per-thread checkpoint
// logs with the coordinator's sample buffer to produce per-invocation
// energy attributions. It is pure, synchronous computation over slices;
// no goroutines, no I/O.
package correlator

import (
	"sort"

	"github.com/ja7ad/nemb/pkg/checkpoint"
	"github.com/ja7ad/nemb/pkg/energy"
)

// RegionAttribution is the output of correlating one closed (or
// truncated) region invocation against the sample buffer (spec §3
// "Region attribution").
type RegionAttribution struct {
	RegionID        string
	ThreadID        uint64
	InvocationIndex uint64

	EnterNS    uint64
	ExitNS     uint64
	DurationNS uint64

	EnergyJoules       float64
	AveragePowerWatts  float64
	DomainBreakdown    map[string]float64
	MarkTimestampsNS   []uint64

	Confidence          float64
	LowConfidence       bool
	InsufficientSamples bool
	Truncated           bool
}

// Result is the full attribution tree plus diagnostic counters the
// session surfaces in its SessionResult (spec §4.I).
type Result struct {
	Attributions   []RegionAttribution
	OrphanCount    int
	TruncatedCount int
}

// Correlate joins logs (one slice of records per thread id) with buffer
// (the coordinator's sample history, already sorted by
// CommonTimestampNS) and produces the attribution tree. stopNS is the
// session's stop timestamp, used as the synthetic exit time for any
// invocation still open when the session stopped. expectedIntervalNS is
// the configured sampler cadence, used to compute the "expected
// samples" term of confidence; pass 0 to derive it from the buffer's
// median spacing.
func Correlate(logs map[uint64][]checkpoint.Record, buffer []energy.Synchronized, stopNS uint64, expectedIntervalNS uint64) Result {
	series := buildSeries(buffer)
	if expectedIntervalNS == 0 {
		expectedIntervalNS = series.medianIntervalNS()
	}

	var result Result

	threadIDs := make([]uint64, 0, len(logs))
	for tid := range logs {
		threadIDs = append(threadIDs, tid)
	}
	sort.Slice(threadIDs, func(i, j int) bool { return threadIDs[i] < threadIDs[j] })

	for _, tid := range threadIDs {
		closed, truncated, orphans := replayThread(logs[tid], stopNS)
		result.OrphanCount += orphans
		result.TruncatedCount += len(truncated)

		for _, inv := range closed {
			result.Attributions = append(result.Attributions, attribute(inv, series, expectedIntervalNS))
		}
		for _, inv := range truncated {
			result.Attributions = append(result.Attributions, attribute(inv, series, expectedIntervalNS))
		}
	}

	sort.SliceStable(result.Attributions, func(i, j int) bool {
		a, b := result.Attributions[i], result.Attributions[j]
		if a.ThreadID != b.ThreadID {
			return a.ThreadID < b.ThreadID
		}
		if a.RegionID != b.RegionID {
			return a.RegionID < b.RegionID
		}
		return a.InvocationIndex < b.InvocationIndex
	})

	return result
}

// invocation is an internal, not-yet-attributed closed or truncated
// region interval reconstructed from a thread's checkpoint log.
type invocation struct {
	regionID        string
	invocationIndex uint64
	threadID        uint64
	enterNS         uint64
	exitNS          uint64
	marks           []uint64
	truncated       bool
}

// replayThread reconstructs the LIFO call stack for one thread's log,
// pairing enter/exit and attaching marks to their enclosing frame (spec
// §4.H: "determined by the per-thread stack snapshot at mark time,
// reconstructed during attribution").
func replayThread(records []checkpoint.Record, stopNS uint64) (closed []invocation, truncated []invocation, orphans int) {
	type frame struct {
		regionID string
		index    uint64
		enterNS  uint64
		marks    []uint64
	}
	var stack []frame

	for _, r := range records {
		switch r.Kind {
		case checkpoint.Enter:
			stack = append(stack, frame{regionID: r.RegionID, index: r.InvocationIndex, enterNS: r.TimestampNS})
		case checkpoint.Exit:
			if r.Orphan || len(stack) == 0 {
				orphans++
				continue
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			closed = append(closed, invocation{
				regionID:        top.regionID,
				invocationIndex: top.index,
				threadID:        r.ThreadID,
				enterNS:         top.enterNS,
				exitNS:          r.TimestampNS,
				marks:           top.marks,
			})
		case checkpoint.Mark:
			if n := len(stack); n > 0 {
				stack[n-1].marks = append(stack[n-1].marks, r.TimestampNS)
			}
		}
	}

	for _, f := range stack {
		truncated = append(truncated, invocation{
			regionID:        f.regionID,
			invocationIndex: f.index,
			threadID:        threadIDOf(records),
			enterNS:         f.enterNS,
			exitNS:          stopNS,
			marks:           f.marks,
			truncated:       true,
		})
	}
	return closed, truncated, orphans
}

func threadIDOf(records []checkpoint.Record) uint64 {
	if len(records) == 0 {
		return 0
	}
	return records[0].ThreadID
}

func attribute(inv invocation, s sampleSeries, expectedIntervalNS uint64) RegionAttribution {
	out := RegionAttribution{
		RegionID:         inv.regionID,
		ThreadID:         inv.threadID,
		InvocationIndex:  inv.invocationIndex,
		EnterNS:          inv.enterNS,
		ExitNS:           inv.exitNS,
		MarkTimestampsNS: inv.marks,
		Truncated:        inv.truncated,
		DomainBreakdown:  map[string]float64{},
	}
	if inv.exitNS > inv.enterNS {
		out.DurationNS = inv.exitNS - inv.enterNS
	}

	if s.n < 2 {
		out.InsufficientSamples = true
		out.LowConfidence = true
		return out
	}

	enterNS, exitNS := clamp(inv.enterNS, s.ts[0], s.ts[s.n-1]), clamp(inv.exitNS, s.ts[0], s.ts[s.n-1])

	out.EnergyJoules = s.total.interpolate(exitNS) - s.total.interpolate(enterNS)
	for domain, series := range s.domains {
		out.DomainBreakdown[domain] = series.interpolate(exitNS) - series.interpolate(enterNS)
	}

	if out.DurationNS > 0 {
		out.AveragePowerWatts = out.EnergyJoules / (float64(out.DurationNS) / 1e9)
	}

	samplesInInterval, minConfidence, straddlesMisaligned := s.countInInterval(enterNS, exitNS)
	expected := 1.0
	if expectedIntervalNS > 0 && out.DurationNS > 0 {
		expected = float64(out.DurationNS) / float64(expectedIntervalNS)
	}
	out.Confidence = minConfidence * clamp01(safeDiv(float64(samplesInInterval), expected))
	out.LowConfidence = samplesInInterval < 2 || straddlesMisaligned

	return out
}

func clamp(v, lo, hi uint64) uint64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func safeDiv(n, d float64) float64 {
	if d == 0 {
		return 0
	}
	return n / d
}
