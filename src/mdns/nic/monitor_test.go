package nic

import (
	"net"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Monitor", func() {
	Describe("Interfaces", func() {
		It("enumerates without error", func() {
			m := &Monitor{}

			_, err := m.Interfaces()
			Expect(err).ShouldNot(HaveOccurred())
		})

		It("applies the filter to the snapshot", func() {
			var seen []net.Interface

			m := &Monitor{
				IncludeLoopback: true,
				Filter: func(ifaces []net.Interface) []net.Interface {
					seen = ifaces
					return nil
				},
			}

			ifaces, err := m.Interfaces()
			Expect(err).ShouldNot(HaveOccurred())
			Expect(ifaces).To(BeEmpty())

			for _, iface := range seen {
				Expect(iface.Flags & net.FlagUp).NotTo(BeZero())
				Expect(iface.Flags & net.FlagMulticast).NotTo(BeZero())
			}
		})
	})

	Describe("Refresh", func() {
		It("reports the entire usable set as added on first use", func() {
			m := &Monitor{IncludeLoopback: true}

			snapshot, err := m.Interfaces()
			Expect(err).ShouldNot(HaveOccurred())

			added, removed, err := m.Refresh()
			Expect(err).ShouldNot(HaveOccurred())
			Expect(added).To(HaveLen(len(snapshot)))
			Expect(removed).To(BeEmpty())
		})

		It("reports nothing when the set is unchanged", func() {
			m := &Monitor{IncludeLoopback: true}

			_, _, err := m.Refresh()
			Expect(err).ShouldNot(HaveOccurred())

			added, removed, err := m.Refresh()
			Expect(err).ShouldNot(HaveOccurred())
			Expect(added).To(BeEmpty())
			Expect(removed).To(BeEmpty())
		})
	})
})

var _ = Describe("diff", func() {
	iface := func(idx int) net.Interface {
		return net.Interface{Index: idx, Name: "test"}
	}

	asMap := func(ifaces ...net.Interface) map[int]net.Interface {
		m := map[int]net.Interface{}
		for _, i := range ifaces {
			m[i.Index] = i
		}
		return m
	}

	It("reports interfaces present only in the new snapshot as added", func() {
		added, removed := diff(
			asMap(iface(1)),
			asMap(iface(1), iface(2)),
		)

		Expect(added).To(ConsistOf(iface(2)))
		Expect(removed).To(BeEmpty())
	})

	It("reports interfaces present only in the old snapshot as removed", func() {
		added, removed := diff(
			asMap(iface(1), iface(2)),
			asMap(iface(2)),
		)

		Expect(added).To(BeEmpty())
		Expect(removed).To(ConsistOf(iface(1)))
	})

	It("matches interfaces by index, not by value", func() {
		a := net.Interface{Index: 7, Name: "before"}
		b := net.Interface{Index: 7, Name: "after"}

		added, removed := diff(asMap(a), asMap(b))

		Expect(added).To(BeEmpty())
		Expect(removed).To(BeEmpty())
	})
})
