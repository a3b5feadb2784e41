//go:build linux

package rapl

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

// cpuID identifies the CPU generation this RAPL provider is bound to,
// used both for the "Identify CPU" detection step (spec §4.E step 1) and
// as the sensor capability cache key (spec §6).
type cpuID struct {
	Vendor   string
	Family   int
	Model    int
	Stepping int
}

// String renders a stable cache key, e.g. "GenuineIntel-6-151-2".
func (c cpuID) String() string {
	return c.Vendor + "-" + strconv.Itoa(c.Family) + "-" + strconv.Itoa(c.Model) + "-" + strconv.Itoa(c.Stepping)
}

// IsIntel reports whether this CPU is a candidate for RAPL at all; AMD
// and ARM parts are rejected by Initialize before any file is opened.
func (c cpuID) IsIntel() bool {
	return c.Vendor == "GenuineIntel"
}

func detectCPU() (cpuID, error) {
	f, err := os.Open("/proc/cpuinfo")
	if err != nil {
		return cpuID{}, err
	}
	defer f.Close()

	var id cpuID
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		switch key {
		case "vendor_id":
			id.Vendor = val
		case "cpu family":
			id.Family, _ = strconv.Atoi(val)
		case "model":
			id.Model, _ = strconv.Atoi(val)
		case "stepping":
			id.Stepping, _ = strconv.Atoi(val)
			return id, nil // first processor entry is enough
		}
	}
	return id, sc.Err()
}
