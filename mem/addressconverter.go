package mem

// InterleavingConverter maps the addresses that one memory serves onto a
// dense range starting at zero. The interleaving bits select the memory and
// are dropped from the internal address.
type InterleavingConverter struct {
	// LowBit is the lowest interleaving bit.
	LowBit uint

	// NumBits is the number of interleaving bits.
	NumBits uint

	// Index is the value of the interleaving bits for this memory.
	Index uint64
}

// ConvertExternalToInternal converts a system address to a memory address.
func (c InterleavingConverter) ConvertExternalToInternal(external uint64) uint64 {
	low := external & (1<<c.LowBit - 1)
	high := external >> (c.LowBit + c.NumBits)

	return high<<c.LowBit | low
}

// ConvertInternalToExternal converts a memory address back to a system
// address.
func (c InterleavingConverter) ConvertInternalToExternal(internal uint64) uint64 {
	low := internal & (1<<c.LowBit - 1)
	high := internal >> c.LowBit

	return high<<(c.LowBit+c.NumBits) | c.Index<<c.LowBit | low
}
