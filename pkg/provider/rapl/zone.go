package rapl

import "github.com/ja7ad/nemb/pkg/wrap"

// Zone is one readable hardware energy counter: one RAPL domain on one
// package (or, for MSR, one CPU), abstracted over its access path.
type Zone interface {
	Domain() string
	ReadRaw() (uint64, error)
	MaxValue() uint64
	BitWidth() wrap.Width
	ConversionFactor() float64
	Unit() string
}

// zoneReader is the access-path abstraction (MSR device vs. sysfs
// powercap) behind Provider's detection logic (spec §4.E step 2).
type zoneReader interface {
	Name() string
	Available() bool
	Init() error
	Zones() ([]Zone, error)
	Close() error
}
