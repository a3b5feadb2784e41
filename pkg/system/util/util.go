//go:build linux

// Package util collects the small numeric and host-introspection helpers
// shared by the proc-based power model and the CLI: EMA smoothing, safe
// arithmetic, PID-list parsing for the --pids flag, and a one-line host
// summary for session logs.
package util

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Smoother is a single-pole exponential moving average. alpha=1 disables
// smoothing (each Update returns its input); alpha=0 freezes at the first
// sample.
type Smoother struct {
	alpha, prev float64
	ok          bool
}

func NewSmoother(alpha float64) *Smoother { return &Smoother{alpha: alpha} }

func (s *Smoother) Update(v float64) float64 {
	if !s.ok {
		s.prev, s.ok = v, true
		return v
	}
	s.prev = s.alpha*v + (1-s.alpha)*s.prev
	return s.prev
}

// DeltaU64 returns now-prev, clamped to 0 when the counter wrapped or prev
// was never seeded. Callers needing genuine wraparound accounting (e.g. a
// RAPL energy counter) should use pkg/wrap instead; this is for monotonic
// /proc jiffy counters where a backward step only ever means "first read".
func DeltaU64(now, prev uint64) uint64 {
	if now >= prev {
		return now - prev
	}
	return 0
}

// SafeDiv returns n/d, or 0 when d is within eps of zero.
func SafeDiv(n, d float64) float64 {
	const eps = 1e-12
	if d > eps || d < -eps {
		return n / d
	}
	return 0
}

// Clamp01 clamps x to [0,1], mapping NaN to 0.
func Clamp01(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// Pow computes a**b via exp(b*log(a)), returning 0 for a<=0 so a noisy
// near-zero utilization share never produces a NaN or complex result in
// the power model's curve.
func Pow(a, b float64) float64 {
	if a <= 0 {
		return 0
	}
	return math.Exp(b * math.Log(a))
}

// ParsePIDs expands a list of CLI tokens into a PID slice, preserving
// input order. Each token is either a bare PID ("123") or an inclusive
// range ("100..104"); blank tokens (after trimming) are ignored.
func ParsePIDs(args []string) ([]int, error) {
	var out []int
	for _, raw := range args {
		tok := strings.TrimSpace(raw)
		if tok == "" {
			continue
		}
		if strings.Contains(tok, "..") {
			lo, hi, err := parsePIDRange(tok)
			if err != nil {
				return nil, err
			}
			for pid := lo; pid <= hi; pid++ {
				out = append(out, pid)
			}
			continue
		}
		pid, err := strconv.Atoi(tok)
		if err != nil {
			return nil, fmt.Errorf("bad pid: %q", tok)
		}
		out = append(out, pid)
	}
	return out, nil
}

func parsePIDRange(tok string) (lo, hi int, err error) {
	parts := strings.SplitN(tok, "..", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return 0, 0, fmt.Errorf("bad range: %q", tok)
	}
	lo, errLo := strconv.Atoi(parts[0])
	hi, errHi := strconv.Atoi(parts[1])
	if errLo != nil || errHi != nil || lo > hi {
		return 0, 0, fmt.Errorf("bad range: %q", tok)
	}
	return lo, hi, nil
}

// FmtFloat renders v to three decimal places, snapping anything within
// 0.0005 of zero to a clean "0.000" rather than risking a signed "-0.000".
func FmtFloat(v float64) string {
	if math.Abs(v) < 0.0005 {
		v = 0
	}
	s := fmt.Sprintf("%.3f", v)
	if s == "-0.000" {
		s = "0.000"
	}
	return s
}

// charsToString converts a NUL-terminated byte array (the shape
// unix.Utsname fields and similar fixed-size C buffers come in) to a Go
// string, stopping at the first zero byte.
func charsToString(b []byte) string {
	if n := bytes.IndexByte(b, 0); n >= 0 {
		return string(b[:n])
	}
	return string(b)
}

// SystemSummary reports hostname, kernel release, an online/possible CPU
// ratio, and current memory utilization, for a single log line at session
// start (spec's ambient logging, not part of any measurement invariant).
func SystemSummary() (host, kernel, cpus, mem string) {
	host, _ = os.Hostname()

	var uts unix.Utsname
	if err := unix.Uname(&uts); err == nil {
		kernel = charsToString(uts.Release[:])
	}

	online := cpuSetSize("/sys/devices/system/cpu/online")
	possible := cpuSetSize("/sys/devices/system/cpu/possible")
	if possible == 0 {
		possible = runtime.NumCPU()
	}
	if online == 0 {
		online = runtime.NumCPU()
	}
	cpus = fmt.Sprintf("%.2f", float64(online)/float64(possible))

	mem = memUsagePercent()
	return
}

// cpuSetSize counts the CPUs named by a sysfs cpu-list file such as
// /sys/devices/system/cpu/online ("0-3,6-7").
func cpuSetSize(path string) int {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	count := 0
	for _, part := range strings.Split(strings.TrimSpace(string(b)), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, ok := strings.Cut(part, "-")
		if !ok {
			if _, err := strconv.Atoi(part); err == nil {
				count++
			}
			continue
		}
		loN, errLo := strconv.Atoi(lo)
		hiN, errHi := strconv.Atoi(hi)
		if errLo == nil && errHi == nil && hiN >= loN {
			count += hiN - loN + 1
		}
	}
	return count
}

func memUsagePercent() string {
	b, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return "0.00%"
	}
	var total, available float64
	for _, line := range strings.Split(string(b), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			continue
		}
		switch strings.TrimSuffix(fields[0], ":") {
		case "MemTotal":
			total = v
		case "MemAvailable":
			available = v
		}
	}
	if total <= 0 {
		return "0.00%"
	}
	used := SafeDiv(total-available, total) * 100
	return fmt.Sprintf("%.2f%%", used)
}
