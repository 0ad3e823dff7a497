package coherence

import (
	"math/bits"
	"strconv"
	"strings"
)

// SharerSet is a set of controller IDs. Iteration is always in ascending ID
// order.
type SharerSet struct {
	words []uint64
}

// NewSharerSet creates a set holding the given IDs.
func NewSharerSet(ids ...ControllerID) SharerSet {
	s := SharerSet{}
	for _, id := range ids {
		s.Add(id)
	}

	return s
}

// Add inserts id into the set.
func (s *SharerSet) Add(id ControllerID) {
	if id < 0 {
		panic("negative controller id")
	}

	w := int(id) / 64
	for len(s.words) <= w {
		s.words = append(s.words, 0)
	}

	s.words[w] |= 1 << (uint(id) % 64)
}

// Remove deletes id from the set.
func (s *SharerSet) Remove(id ControllerID) {
	w := int(id) / 64
	if id < 0 || w >= len(s.words) {
		return
	}

	s.words[w] &^= 1 << (uint(id) % 64)
}

// Contains tells if id is in the set.
func (s SharerSet) Contains(id ControllerID) bool {
	w := int(id) / 64
	if id < 0 || w >= len(s.words) {
		return false
	}

	return s.words[w]&(1<<(uint(id)%64)) != 0
}

// Len returns the number of IDs in the set.
func (s SharerSet) Len() int {
	n := 0
	for _, w := range s.words {
		n += bits.OnesCount64(w)
	}

	return n
}

// Empty tells if the set has no member.
func (s SharerSet) Empty() bool {
	return s.Len() == 0
}

// IDs returns the members in ascending order.
func (s SharerSet) IDs() []ControllerID {
	ids := make([]ControllerID, 0, s.Len())

	for i, w := range s.words {
		for w != 0 {
			b := bits.TrailingZeros64(w)
			ids = append(ids, ControllerID(i*64+b))
			w &^= 1 << uint(b)
		}
	}

	return ids
}

// Clear removes every member.
func (s *SharerSet) Clear() {
	s.words = nil
}

// Clone returns an independent copy.
func (s SharerSet) Clone() SharerSet {
	return SharerSet{words: append([]uint64(nil), s.words...)}
}

func (s SharerSet) String() string {
	parts := make([]string, 0, s.Len())
	for _, id := range s.IDs() {
		parts = append(parts, strconv.Itoa(int(id)))
	}

	return "{" + strings.Join(parts, ",") + "}"
}

// CacheLine is the coherence metadata a directory keeps for one line.
//
// At most one controller holds M or E at a time. The sharer set is empty
// unless the line is shared.
type CacheLine struct {
	Addr    uint64
	State   State
	Sharers SharerSet
	Owner   ControllerID
	Pending bool
}

// HasOwner tells if a controller holds the line with write permission.
func (l CacheLine) HasOwner() bool {
	return l.Owner != NoController
}

// Clone returns a deep copy of the line.
func (l CacheLine) Clone() CacheLine {
	l.Sharers = l.Sharers.Clone()
	return l
}
