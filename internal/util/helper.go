package util

// CloneSlice clones slice with cloneSize.
// This function will use src length as the clone size if cloneSize is 0.
func CloneSlice[T any](src []T, cloneSize int) []T {
	if cloneSize == 0 {
		cloneSize = len(src)
	}
	clone := make([]T, cloneSize)
	copy(clone, src)

	return clone
}

var reverseTable [256]byte

func init() {
	for i := range reverseTable {
		var r byte
		for b := 0; b < 8; b++ {
			if i&(1<<b) != 0 {
				r |= 0x80 >> b
			}
		}
		reverseTable[i] = r
	}
}

// ReverseBits returns b with its bit order reversed, so bit 0 becomes bit 7.
func ReverseBits(b byte) byte {
	return reverseTable[b]
}
