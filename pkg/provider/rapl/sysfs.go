//go:build linux

package rapl

import (
	"fmt"

	"github.com/ja7ad/nemb/pkg/wrap"
	"github.com/prometheus/procfs/sysfs"
)

// defaultSysfsPath is the powercap mount spec §6 names.
const defaultSysfsPath = "/sys"

// sysfsReader implements zoneReader over the kernel's powercap sysfs
// interface (spec §6 "sysfs powercap"). Grounded on the same
// prometheus/procfs/sysfs.GetRaplZones call mahendrapaipuri-ceems's own
// RAPL collector and sustainable-computing-io-kepler's powercap reader
// both use to read this exact file format.
type sysfsReader struct {
	path  string
	fs    sysfs.FS
	zones []Zone
}

func newSysfsReader(path string) *sysfsReader {
	if path == "" {
		path = defaultSysfsPath
	}
	return &sysfsReader{path: path}
}

func (r *sysfsReader) Name() string { return "sysfs-powercap" }

func (r *sysfsReader) Available() bool {
	fs, err := sysfs.NewFS(r.path)
	if err != nil {
		return false
	}
	_, err = sysfs.GetRaplZones(fs)
	return err == nil
}

func (r *sysfsReader) Init() error {
	fs, err := sysfs.NewFS(r.path)
	if err != nil {
		return fmt.Errorf("rapl: sysfs: %w", err)
	}
	r.fs = fs

	raw, err := sysfs.GetRaplZones(fs)
	if err != nil {
		return fmt.Errorf("rapl: sysfs: no powercap zones: %w", err)
	}
	if len(raw) == 0 {
		return fmt.Errorf("rapl: sysfs: no powercap zones found")
	}

	r.zones = r.zones[:0]
	for _, z := range raw {
		domain := canonicalDomain(z.Name)
		if domain == "" {
			continue
		}
		if _, err := z.GetEnergyMicrojoules(); err != nil {
			continue
		}
		r.zones = append(r.zones, &sysfsZone{zone: z, domain: domain})
	}
	if len(r.zones) == 0 {
		return fmt.Errorf("rapl: sysfs: no readable zone")
	}
	return nil
}

func (r *sysfsReader) Zones() ([]Zone, error) {
	if len(r.zones) == 0 {
		return nil, fmt.Errorf("rapl: sysfs: not initialized")
	}
	out := make([]Zone, len(r.zones))
	copy(out, r.zones)
	return out, nil
}

func (r *sysfsReader) Close() error {
	r.zones = nil
	return nil
}

// sysfsZone adapts sysfs.RaplZone to the Zone interface. sysfs
// energy_uj counters are 64-bit and, per spec §4.E step 5, effectively
// non-wrapping over realistic sessions — still routed through the same
// wraparound counter as MSR for uniformity.
type sysfsZone struct {
	zone   sysfs.RaplZone
	domain string
}

func (z *sysfsZone) Domain() string { return z.domain }

func (z *sysfsZone) ReadRaw() (uint64, error) {
	return z.zone.GetEnergyMicrojoules()
}

func (z *sysfsZone) MaxValue() uint64 {
	if z.zone.MaxMicrojoules > 0 {
		return z.zone.MaxMicrojoules
	}
	return 1<<64 - 1
}

func (z *sysfsZone) BitWidth() wrap.Width    { return wrap.Width64 }
func (z *sysfsZone) ConversionFactor() float64 { return 1e-6 } // microjoules -> joules
func (z *sysfsZone) Unit() string            { return "joules" }
