package types

import "fmt"

// Joules is a float64 wrapper representing an amount of energy.
type Joules float64

// Watts is a float64 wrapper representing an amount of power.
type Watts float64

// String renders j with three decimal digits, e.g. "12.345 J".
func (j Joules) String() string {
	return fmt.Sprintf("%.3f J", float64(j))
}

// String renders w with three decimal digits, e.g. "4.200 W".
func (w Watts) String() string {
	return fmt.Sprintf("%.3f W", float64(w))
}

// OverInterval converts an energy delta spanning dtSec seconds into average
// power. Returns 0 when dtSec is not strictly positive.
func (j Joules) OverInterval(dtSec float64) Watts {
	if dtSec <= 0 {
		return 0
	}
	return Watts(float64(j) / dtSec)
}
