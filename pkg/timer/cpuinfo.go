//go:build linux

package timer

import (
	"bufio"
	"os"
	"strings"
	"sync"
)

var (
	tscOnce sync.Once
	tscOK   bool
)

// hasInvariantTSC reports whether /proc/cpuinfo advertises "constant_tsc"
// and "nonstop_tsc" on every logical CPU, the two flags Linux itself uses
// to decide whether TSC is safe to use as a clocksource across frequency
// transitions and idle states.
func hasInvariantTSC() bool {
	tscOnce.Do(func() {
		tscOK = scanCPUInfoFlags()
	})
	return tscOK
}

func scanCPUInfoFlags() bool {
	f, err := os.Open("/proc/cpuinfo")
	if err != nil {
		return false
	}
	defer f.Close()

	seenFlags := false
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "flags") && !strings.HasPrefix(line, "Features") {
			continue
		}
		seenFlags = true
		if !strings.Contains(line, "constant_tsc") || !strings.Contains(line, "nonstop_tsc") {
			return false
		}
	}
	return seenFlags
}
