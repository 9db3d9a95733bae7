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

// HexString renders b as space separated upper-case hex pairs, e.g. "02 05 2A".
func HexString(b []byte) string {
	if len(b) == 0 {
		return ""
	}

	out := make([]byte, 0, len(b)*3-1)
	for i, v := range b {
		if i > 0 {
			out = append(out, ' ')
		}
		out = append(out, hexUpper[v>>4], hexUpper[v&0x0F])
	}

	return string(out)
}

const hexUpper = "0123456789ABCDEF"
