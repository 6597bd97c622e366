package market

// MaxJumpFactor bounds how far a new close may move from the last known good close.
const MaxJumpFactor = 12.0

// IsPlausible reports whether newClose is an acceptable successor of lastKnown.
// A non-positive lastKnown means there is no baseline and any positive close is accepted.
func IsPlausible(newClose, lastKnown float64) bool {
	if _, ok := PositiveFloat(newClose); !ok {
		return false
	}
	if _, ok := PositiveFloat(lastKnown); !ok {
		return true
	}
	ratio := newClose / lastKnown
	return ratio >= 1/MaxJumpFactor && ratio <= MaxJumpFactor
}
