package tester

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rubysim/mem"
	"github.com/sarchlab/rubysim/noc"
	"github.com/sarchlab/rubysim/ruby"
)

func build(o ruby.Options) *ruby.System {
	s, err := ruby.CreateSystem(o, ruby.DefaultProtocolRegistry(),
		mem.DefaultRegistry())
	Expect(err).NotTo(HaveOccurred())

	return s
}

func smallOptions() ruby.Options {
	o := ruby.DefaultOptions()
	o.NumCPUs = 4
	o.PhysMem = []ruby.AddrRange{{Start: 0, Size: 1 << 20}}

	return o
}

var _ = Describe("Tester", func() {
	DescribeTable("random workloads",
		func(modify func(o *ruby.Options)) {
			o := smallOptions()
			modify(&o)
			s := build(o)

			t, err := New(s, DefaultConfig())
			Expect(err).NotTo(HaveOccurred())

			report, err := t.Run()

			Expect(err).NotTo(HaveOccurred())
			Expect(report.Loads + report.Stores + report.Atomics).
				To(Equal(uint64(4 * DefaultConfig().OpsPerCore)))
			Expect(report.Checked).To(BeNumerically(">", 0))
			Expect(s.Quiescent()).To(BeTrue())
		},
		Entry("MSI on a crossbar", func(o *ruby.Options) {}),
		Entry("MESI on a crossbar", func(o *ruby.Options) {
			o.Protocol = "MESI"
		}),
		Entry("MSI on a mesh with four directories", func(o *ruby.Options) {
			o.NumDirs = 4
			o.Topology = noc.TopologyMesh
			o.MeshRows = 2
			o.NetworkClass = noc.NetworkGarnetFixed
		}),
		Entry("point to point with banked memory", func(o *ruby.Options) {
			o.Topology = noc.TopologyPt2Pt
			o.MemType = "banked"
			o.NumDirs = 2
		}),
		Entry("narrow links", func(o *ruby.Options) {
			o.LinkCapacity = 1
			o.LinkLatency = 3
		}),
		Entry("a tiny cache", func(o *ruby.Options) {
			o.L1Lines = 2
		}),
		Entry("two ports", func(o *ruby.Options) {
			o.Ports = 2
		}),
		Entry("faulty links", func(o *ruby.Options) {
			o.NetworkClass = noc.NetworkGarnetFixed
			o.FaultModel = true
			o.FaultProbability = 0.2
		}),
	)

	It("should be deterministic", func() {
		run := func() (RunReport, ruby.Stats) {
			s := build(smallOptions())
			t, err := New(s, DefaultConfig())
			Expect(err).NotTo(HaveOccurred())

			report, err := t.Run()
			Expect(err).NotTo(HaveOccurred())

			return report, s.Stats()
		}

		report1, stats1 := run()
		report2, stats2 := run()

		Expect(report1).To(Equal(report2))
		Expect(stats1.Cycles).To(Equal(stats2.Cycles))
		Expect(stats1.Network.Sent).To(Equal(stats2.Network.Sent))
		Expect(stats1.Caches).To(Equal(stats2.Caches))
	})

	It("should refuse more cores than a line has words", func() {
		o := smallOptions()
		o.NumCPUs = 8

		_, err := New(build(o), DefaultConfig())

		Expect(err).To(HaveOccurred())
	})

	It("should refuse a region outside the memory", func() {
		cfg := DefaultConfig()
		cfg.BaseAddr = 1 << 20

		_, err := New(build(smallOptions()), cfg)

		Expect(err).To(HaveOccurred())
	})
})
