package distributor

// Chunk is a contiguous range [Start, End) of the prime table assigned to one worker.
type Chunk struct {
	Index int
	Start int
	End   int
}

// Len returns the number of primes the chunk covers.
func (c Chunk) Len() int {
	return max(0, c.End-c.Start)
}

// Slice returns the chunk's read-only view of table. A chunk lying past the end of the
// table yields an empty view rather than indexing out of bounds.
func (c Chunk) Slice(table []int) []int {
	start := min(max(c.Start, 0), len(table))
	end := min(max(c.End, start), len(table))
	return table[start:end:end]
}

// Partition splits numPrimes primes into ceil(numPrimes/size) chunks of at most size primes.
// The chunks are pairwise disjoint and cover [0, numPrimes) exactly.
func Partition(numPrimes, size int) []Chunk {
	if numPrimes <= 0 || size <= 0 {
		return []Chunk{}
	}

	chunks := make([]Chunk, (numPrimes+size-1)/size)
	for i := range chunks {
		start := i * size
		chunks[i] = Chunk{
			Index: i,
			Start: start,
			End:   min(start+size, numPrimes),
		}
	}
	return chunks
}
