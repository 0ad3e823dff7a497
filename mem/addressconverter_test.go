package mem

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("InterleavingConverter", func() {
	It("should drop the interleaving bits", func() {
		c := InterleavingConverter{LowBit: 6, NumBits: 2, Index: 2}

		Expect(c.ConvertExternalToInternal(0x0080)).To(Equal(uint64(0x00)))
		Expect(c.ConvertExternalToInternal(0x0184)).To(Equal(uint64(0x44)))
	})

	It("should convert back to the system address", func() {
		c := InterleavingConverter{LowBit: 6, NumBits: 2, Index: 2}

		for _, addr := range []uint64{0x80, 0x84, 0x180, 0x1bf, 0x12380} {
			internal := c.ConvertExternalToInternal(addr)
			Expect(c.ConvertInternalToExternal(internal)).To(Equal(addr))
		}
	})

	It("should keep addresses as they are without interleaving", func() {
		c := InterleavingConverter{LowBit: 6}

		Expect(c.ConvertExternalToInternal(0x1234)).To(Equal(uint64(0x1234)))
		Expect(c.ConvertInternalToExternal(0x1234)).To(Equal(uint64(0x1234)))
	})
})
