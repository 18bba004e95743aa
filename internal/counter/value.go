package counter

import "math"

// Raw is the stored counter value. Every actuation of the reed switch moves
// it by one, so two consecutive raw values make one counted unit; the low bit
// tells which half of the actuation comes next.
type Raw uint32

// Real is the presentation value of a Raw counter.
type Real float64

// MaxRaw is the largest raw value. Incrementing past it wraps to 0.
const MaxRaw Raw = math.MaxUint32

const (
	realScale = 0.01
	oddOffset = 0.30

	// stepTolerance absorbs float error just below a whole hundredth.
	stepTolerance = 0.05
)

// MaxReal is RealOf(MaxRaw). RawOf clamps at or above it.
var MaxReal = RealOf(MaxRaw)

// RealOf converts a raw value: 0.01 per whole unit, odd values sit 0.003
// past the even value below them.
func RealOf(v Raw) Real {
	half := Real(v / 2)
	if v&1 == 0 {
		return realScale * half
	}
	return realScale * (half + oddOffset)
}

// RawOf is the inverse of RealOf. Values at or below zero (and NaN) give 0,
// values at or above MaxReal give MaxRaw.
func RawOf(r Real) Raw {
	if !(r > 0) {
		return 0
	}
	if !(r < MaxReal) {
		return MaxRaw
	}
	s := float64(r) * 100
	whole := math.Floor(s + stepTolerance)
	frac := math.Round((s-whole)*100) / 100

	raw := 2 * uint64(whole)
	if frac >= oddOffset {
		raw++
	}
	if raw > uint64(MaxRaw) {
		return MaxRaw
	}
	return Raw(raw)
}
