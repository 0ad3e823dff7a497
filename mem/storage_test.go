package mem

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Storage", func() {
	It("should read and write in single unit", func() {
		storage := NewStorage(4096)
		Expect(storage.Write(0, []byte{1, 2, 3, 4})).To(Succeed())

		res, err := storage.Read(0, 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(res).To(Equal([]byte{1, 2}))

		res, _ = storage.Read(1, 2)
		Expect(res).To(Equal([]byte{2, 3}))
	})

	It("should read and write across units", func() {
		storage := NewStorage(8192)
		Expect(storage.Write(4094, []byte{1, 2, 3, 4})).To(Succeed())

		res, _ := storage.Read(4094, 4)
		Expect(res).To(Equal([]byte{1, 2, 3, 4}))
		Expect(storage.TouchedUnits()).To(Equal([]uint64{0, 4096}))
	})

	It("should read zeros from untouched memory", func() {
		storage := NewStorage(1 * GB)

		res, err := storage.Read(512*MB, 8)

		Expect(err).NotTo(HaveOccurred())
		Expect(res).To(Equal(make([]byte, 8)))
	})

	It("should return error if accessing over the capacity", func() {
		storage := NewStorage(4096)

		err := storage.Write(4097, []byte{1})
		Expect(err).To(MatchError(ErrBeyondCapacity))

		_, err = storage.Read(4095, 2)
		Expect(err).To(MatchError(ErrBeyondCapacity))
	})
})
