package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// CacheVersion is bumped whenever Cache's shape changes incompatibly; a
// version mismatch on load is treated as a cold start.
const CacheVersion = 1

// DomainCache records which RAPL domains were available on a previous
// run and via which access path, keyed by a CPU identifier string
// (vendor/family/model/stepping), so a restart can skip re-enumeration
// (spec §6 "sensor capability cache"). A miss, version mismatch, or
// parse error is never an error to the caller — just a cold start.
type DomainCache struct {
	Version    int               `yaml:"version"`
	CPUID      string            `yaml:"cpu_id"`
	AccessPath map[string]string `yaml:"access_path"` // domain name -> "sysfs" | "msr"
}

// LoadDomainCache reads path and returns the cache only if its version
// and CPUID match; any mismatch, missing file, or parse failure returns
// ok=false with no error.
func LoadDomainCache(path, cpuID string) (DomainCache, bool) {
	b, err := os.ReadFile(path)
	if err != nil {
		return DomainCache{}, false
	}
	var c DomainCache
	if err := yaml.Unmarshal(b, &c); err != nil {
		return DomainCache{}, false
	}
	if c.Version != CacheVersion || c.CPUID != cpuID {
		return DomainCache{}, false
	}
	return c, true
}

// SaveDomainCache writes c to path, overwriting any prior content.
// Failures are silently ignored: the cache is an optimization, not a
// durability requirement.
func SaveDomainCache(path string, c DomainCache) {
	c.Version = CacheVersion
	b, err := yaml.Marshal(c)
	if err != nil {
		return
	}
	_ = os.WriteFile(path, b, 0o644)
}
