// Package display derives cosmetic, deterministic values from identifiers.
// Nothing here is used for matching or access control.
package display

import "unicode/utf16"

const (
	compatibilityFloor = 70
	compatibilitySpan  = 31
)

// Hash accumulates h = h*31 + unit over the UTF-16 code units of seed, wrapping to int32.
func Hash(seed string) int32 {
	var hash int32
	for _, unit := range utf16.Encode([]rune(seed)) {
		hash = hash*31 + int32(unit)
	}
	return hash
}

// Compatibility returns a display percentage in [70, 100] for seed.
func Compatibility(seed string) int {
	return compatibilityFloor + int(magnitude(Hash(seed))%compatibilitySpan)
}

// Online returns the cosmetic online flag for seed.
func Online(seed string) bool {
	return magnitude(Hash(seed))%2 == 1
}

// PairSeed builds the compatibility seed for two users as seen by the first.
func PairSeed(viewerID, otherID string) string {
	return viewerID + "-" + otherID
}

func magnitude(hash int32) int64 {
	value := int64(hash)
	if value < 0 {
		return -value
	}
	return value
}
