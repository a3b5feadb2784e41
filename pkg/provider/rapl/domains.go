package rapl

// Domain names, matching the set spec §4.E step 4 enumerates.
const (
	DomainPackage = "package"
	DomainPP0     = "pp0"
	DomainPP1     = "pp1"
	DomainDRAM    = "dram"
	DomainPSYS    = "psys"
)

// MSR addresses, spec §6 "Hardware sources / MSR device".
const (
	msrRAPLPowerUnit uint32 = 0x606
	msrPKGEnergy     uint32 = 0x611
	msrPP0Energy     uint32 = 0x639
	msrPP1Energy     uint32 = 0x641
	msrDRAMEnergy    uint32 = 0x619
	msrPSYSEnergy    uint32 = 0x64D
)

// msrDomainOffsets maps a domain name to its MSR_*_ENERGY_STATUS address.
var msrDomainOffsets = map[string]uint32{
	DomainPackage: msrPKGEnergy,
	DomainPP0:     msrPP0Energy,
	DomainPP1:     msrPP1Energy,
	DomainDRAM:    msrDRAMEnergy,
	DomainPSYS:    msrPSYSEnergy,
}

// sysfsZoneAliases maps the free-form names the kernel assigns powercap
// zones (seen in the wild as "package-N", "core", "uncore", "dram",
// "psys") onto the domain constants above.
var sysfsZoneAliases = map[string]string{
	"package": DomainPackage,
	"core":    DomainPP0,
	"uncore":  DomainPP1,
	"dram":    DomainDRAM,
	"psys":    DomainPSYS,
}

// canonicalDomain resolves a raw zone name (e.g. "package-0") to one of
// the five canonical domain constants, or "" if unrecognized.
func canonicalDomain(rawName string) string {
	name := rawName
	if i := indexByte(name, '-'); i >= 0 {
		name = name[:i]
	}
	if d, ok := sysfsZoneAliases[name]; ok {
		return d
	}
	if _, ok := msrDomainOffsets[name]; ok {
		return name
	}
	return ""
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}
