//go:build linux

// Package cgroup detects which cgroup hierarchy the host runs, so
// pkg/system/proc can pick between its v1 (/proc-only) and v2
// (cpu.stat/memory.stat) sampling backends before the power estimator in
// pkg/provider/model ever takes a reading.
package cgroup

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

type Version int

const (
	Unsupported Version = iota // non-Linux or no cgroup mounts
	V1                         // legacy multi-hierarchy cgroup v1
	V2                         // unified cgroup v2
	Hybrid                     // both v1 and v2 present
)

func (v Version) String() string {
	switch v {
	case V1:
		return "cgroup v1"
	case V2:
		return "cgroup v2"
	case Hybrid:
		return "cgroup hybrid"
	default:
		return "unsupported"
	}
}

// mount is one cgroup filesystem entry parsed out of mountinfo.
type mount struct {
	fstype string
	point  string
}

// Detect returns the detected cgroup version and a human-readable detail
// string, by parsing /proc/self/mountinfo for cgroup/cgroup2 entries.
func Detect() (Version, string, error) {
	mounts, err := cgroupMounts("/proc/self/mountinfo")
	if err != nil {
		return Unsupported, "", err
	}

	var v1Pts, v2Pts []string
	for _, m := range mounts {
		switch m.fstype {
		case "cgroup2":
			v2Pts = append(v2Pts, m.point)
		case "cgroup":
			v1Pts = append(v1Pts, m.point)
		}
	}

	switch {
	case len(v1Pts) > 0 && len(v2Pts) > 0:
		return Hybrid, fmt.Sprintf("cgroup2 on %v; cgroup v1 on %v",
			strings.Join(v2Pts, ","), strings.Join(v1Pts, ",")), nil
	case len(v2Pts) > 0:
		return V2, fmt.Sprintf("cgroup2 on %v", strings.Join(v2Pts, ",")), nil
	case len(v1Pts) > 0:
		return V1, fmt.Sprintf("cgroup v1 on %v", strings.Join(v1Pts, ",")), nil
	default:
		return Unsupported, "no cgroup mounts found", nil
	}
}

// cgroupMounts scans a mountinfo file for cgroup/cgroup2 entries. The
// mountinfo line format is "<fields> - <fstype> <source> <superopts>";
// the mount point is field 5 of the pre-separator part (man 5 proc).
func cgroupMounts(mountinfoPath string) ([]mount, error) {
	f, err := os.Open(mountinfoPath)
	if err != nil {
		return nil, fmt.Errorf("open mountinfo: %w", err)
	}
	defer f.Close()

	const sep = " - "
	var out []mount
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		i := strings.LastIndex(line, sep)
		if i < 0 {
			continue
		}
		tail := strings.Fields(line[i+len(sep):])
		if len(tail) < 1 {
			continue
		}
		fstype := tail[0]
		if fstype != "cgroup" && fstype != "cgroup2" {
			continue
		}
		pre := strings.Fields(line[:i])
		if len(pre) < 5 {
			continue
		}
		out = append(out, mount{fstype: fstype, point: pre[4]})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan mountinfo: %w", err)
	}
	return out, nil
}

// MustDetect is a convenience that panics on error.
func MustDetect() Version {
	v, _, err := Detect()
	if err != nil {
		panic(err)
	}
	return v
}
