package tcp

// Value represents a point in the 32-bit modular sequence number space.
// Comparisons between Values are only meaningful modulo 2**32, see [LessThan].
type Value uint32

// Size is an offset or amount of octets in the sequence number space.
type Size uint32

// Add adds a size to a sequence number with sequence space wraparound.
func Add(v Value, s Size) Value {
	return v + Value(s)
}

// Sizeof returns the number of octets from v up to higher in the sequence space.
func Sizeof(v, higher Value) Size {
	return Size(higher - v)
}

// LessThan checks if v is before w (modulo 2**32) as per RFC 1982.
func LessThan(v, w Value) bool {
	return int32(v-w) < 0
}

// LessThanEq returns true if v==w or v is before w. See [LessThan].
func LessThanEq(v, w Value) bool {
	return v == w || LessThan(v, w)
}

// InRange checks if v is in range [a,b) in the sequence space.
func InRange(v, a, b Value) bool {
	return v-a < b-a
}

// InWindow checks if v is in the window that starts at first and spans size
// octets, i.e. in range [first, first+size).
func InWindow(v, first Value, size Size) bool {
	return InRange(v, first, Add(first, size))
}

// Max returns the later of the two sequence numbers.
func Max(v, w Value) Value {
	if LessThan(v, w) {
		return w
	}
	return v
}
