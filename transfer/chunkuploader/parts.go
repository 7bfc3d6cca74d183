package chunkuploader

// PartSpec is the byte range [Start, End) of part Number (1-based).
type PartSpec struct {
	Number int
	Start  int64
	End    int64
}

// Len returns the size of the part.
func (p PartSpec) Len() int64 {
	return p.End - p.Start
}

// Parts splits a file into parts of partSize. The last part holds the remainder.
func Parts(fileSize, partSize int64) []PartSpec {
	if fileSize <= 0 || partSize <= 0 {
		return nil
	}

	parts := make([]PartSpec, 0, (fileSize+partSize-1)/partSize)
	for start := int64(0); start < fileSize; start += partSize {
		parts = append(parts, PartSpec{
			Number: len(parts) + 1,
			Start:  start,
			End:    min(start+partSize, fileSize),
		})
	}
	return parts
}

// Groups slices parts into runs of perGroup contiguous parts. The last group may be shorter.
func Groups(parts []PartSpec, perGroup int) [][]PartSpec {
	if perGroup < 1 {
		perGroup = 1
	}

	groups := make([][]PartSpec, 0, (len(parts)+perGroup-1)/perGroup)
	for i := 0; i < len(parts); i += perGroup {
		groups = append(groups, parts[i:min(i+perGroup, len(parts))])
	}
	return groups
}
