package correlator

import (
	"sort"

	"github.com/ja7ad/nemb/pkg/energy"
)

// cumulativeSeries is one monotonically-increasing quantity (a total or
// a per-domain energy figure) sampled at sampleSeries.ts.
type cumulativeSeries struct {
	ts     []uint64
	values []float64
}

// interpolate returns the value at tq by linear interpolation between
// the two bracketing samples (spec §4.H step 2), clamping to the first
// or last sample when tq falls outside the series — the correlator
// never extrapolates beyond the buffer (spec testable property #10).
func (c cumulativeSeries) interpolate(tq uint64) float64 {
	n := len(c.ts)
	if n == 0 {
		return 0
	}
	if tq <= c.ts[0] {
		return c.values[0]
	}
	if tq >= c.ts[n-1] {
		return c.values[n-1]
	}
	i := sort.Search(n, func(i int) bool { return c.ts[i] >= tq })
	if c.ts[i] == tq {
		return c.values[i]
	}
	lo, hi := i-1, i
	span := float64(c.ts[hi] - c.ts[lo])
	if span == 0 {
		return c.values[lo]
	}
	frac := float64(tq-c.ts[lo]) / span
	return c.values[lo] + frac*(c.values[hi]-c.values[lo])
}

// sampleSeries is the coordinator's sample buffer reshaped for
// correlation: a total energy series, a per-domain energy series, and
// per-tick confidence/alignment metadata aligned to the same ts slice.
type sampleSeries struct {
	n       int
	ts      []uint64
	total   cumulativeSeries
	domains map[string]cumulativeSeries

	confidence []float64
	aligned    []bool
}

func buildSeries(buffer []energy.Synchronized) sampleSeries {
	s := sampleSeries{
		n:       len(buffer),
		ts:      make([]uint64, len(buffer)),
		domains: map[string]cumulativeSeries{},
	}
	s.total.ts = s.ts
	s.total.values = make([]float64, len(buffer))
	s.confidence = make([]float64, len(buffer))
	s.aligned = make([]bool, len(buffer))

	domainValues := map[string][]float64{}

	for i, tick := range buffer {
		s.ts[i] = tick.CommonTimestampNS
		s.total.values[i] = float64(tick.TotalSystemEnergyJoules)
		s.aligned[i] = tick.TemporalAlignmentValid

		minConf, any := 1.0, false
		for _, r := range tick.Readings {
			if !r.IsValid {
				continue
			}
			any = true
			if r.Confidence < minConf {
				minConf = r.Confidence
			}
			for domain, comp := range r.ComponentBreakdown {
				key := r.ProviderName + "/" + domain
				if _, ok := domainValues[key]; !ok {
					domainValues[key] = make([]float64, len(buffer))
				}
				domainValues[key][i] = float64(comp.EnergyJoules)
			}
		}
		if any {
			s.confidence[i] = minConf
		}
	}

	for key, values := range domainValues {
		s.domains[key] = cumulativeSeries{ts: s.ts, values: values}
	}
	return s
}

// medianIntervalNS derives the expected sampler cadence from the
// buffer's own spacing, used when the caller doesn't supply a
// configured interval.
func (s sampleSeries) medianIntervalNS() uint64 {
	if s.n < 2 {
		return 0
	}
	deltas := make([]uint64, 0, s.n-1)
	for i := 1; i < s.n; i++ {
		deltas = append(deltas, s.ts[i]-s.ts[i-1])
	}
	sort.Slice(deltas, func(i, j int) bool { return deltas[i] < deltas[j] })
	return deltas[len(deltas)/2]
}

// countInInterval returns how many samples fall within [enterNS,
// exitNS], the minimum per-tick provider confidence over that span, and
// whether the interval straddles any misaligned tick.
func (s sampleSeries) countInInterval(enterNS, exitNS uint64) (count int, minConfidence float64, straddlesMisaligned bool) {
	minConfidence = 1.0
	found := false
	for i := 0; i < s.n; i++ {
		if s.ts[i] < enterNS || s.ts[i] > exitNS {
			continue
		}
		count++
		found = true
		if s.confidence[i] < minConfidence {
			minConfidence = s.confidence[i]
		}
		if !s.aligned[i] {
			straddlesMisaligned = true
		}
	}
	if !found {
		minConfidence = 0
	}
	return count, minConfidence, straddlesMisaligned
}
