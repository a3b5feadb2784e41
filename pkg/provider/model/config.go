package model

import "github.com/ja7ad/nemb/pkg/types"

// Config holds the coefficients of the proc-based power model: a
// nonlinear CPU curve plus per-byte disk/RAM proxies, the same shape
// spec §4.D's "model-based estimator" provider is expected to expose as
// a second, cross-validatable energy source alongside intel_rapl.
type Config struct {
	// IdlePower and PeakPower bound the CPU domain's dynamic range.
	IdlePower types.Watts
	PeakPower types.Watts

	// CPUExponent shapes the utilization->power curve; >1 models the
	// superlinear draw real CPUs show as they approach saturation.
	CPUExponent float64

	// DiskReadJoulesPerByte and DiskWriteJoulesPerByte convert I/O byte
	// counts into an energy proxy for the disk domain.
	DiskReadJoulesPerByte  float64
	DiskWriteJoulesPerByte float64

	// MemRefaultJoulesPerByte and MemRSSJoulesPerByte convert page-cache
	// refault and RSS churn byte counts into an energy proxy for the ram
	// domain.
	MemRefaultJoulesPerByte float64
	MemRSSJoulesPerByte     float64

	// BaselineShare, in [0,1], is the fraction of IdlePower charged to
	// the tracked processes in proportion to their share of host CPU
	// utilization. Zero means the tracked set is never charged for idle
	// draw it didn't cause.
	BaselineShare float64
}

// defaultConfig returns coefficients calibrated against typical x86
// server hardware; callers measuring a different platform should
// override them from a capability probe or a config file.
func defaultConfig() *Config {
	return &Config{
		IdlePower:               5.0,
		PeakPower:               20.0,
		CPUExponent:             1.3,
		DiskReadJoulesPerByte:   4.8e-8,
		DiskWriteJoulesPerByte:  9.5e-8,
		MemRefaultJoulesPerByte: 7e-10,
		MemRSSJoulesPerByte:     3e-10,
		BaselineShare:           0,
	}
}

// PowerSplit is the instantaneous per-domain power estimate for one
// snapshot.
type PowerSplit struct {
	CPU   types.Watts
	Disk  types.Watts
	RAM   types.Watts
	Total types.Watts
}
