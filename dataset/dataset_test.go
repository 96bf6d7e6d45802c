package dataset_test

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/nspyre-org/nspyre-sub001/dataset"
	"github.com/nspyre-org/nspyre-sub001/proto"
)

var _ = Describe("Registry", func() {
	It("lazily creates a dataset on first reference", func() {
		r := dataset.NewRegistry()
		Expect(r.ListNames()).To(BeEmpty())

		ds := r.GetOrCreate("alpha")
		Expect(ds.Name).To(Equal("alpha"))
		Expect(r.ListNames()).To(ConsistOf("alpha"))
	})

	It("returns the same Dataset for repeated lookups of the same name", func() {
		r := dataset.NewRegistry()
		a := r.GetOrCreate("alpha")
		b := r.GetOrCreate("alpha")
		Expect(a).To(BeIdenticalTo(b))
	})
})

var _ = Describe("Dataset source slot", func() {
	It("rejects a second concurrent source", func() {
		r := dataset.NewRegistry()
		ds := r.GetOrCreate("alpha")

		Expect(ds.AcquireSource()).To(Succeed())
		Expect(ds.AcquireSource()).To(HaveOccurred())

		ds.ReleaseSource()
		Expect(ds.AcquireSource()).To(Succeed())
	})
})

var _ = Describe("Dataset sink slots and fan-out", func() {
	It("delivers a fanned-out payload to every sink's queue", func() {
		r := dataset.NewRegistry()
		ds := r.GetOrCreate("alpha")

		s1 := ds.AddSink(dataset.SinkKey{Host: "10.0.0.1", Port: 1}, proto.DataPickle)
		s2 := ds.AddSink(dataset.SinkKey{Host: "10.0.0.2", Port: 2}, proto.DataPickle)
		Expect(ds.SinkCount()).To(Equal(2))

		ds.FanOut([]byte("snapshot"))

		got1, err := s1.Queue.Get(time.Second)
		Expect(err).NotTo(HaveOccurred())
		got2, err := s2.Queue.Get(time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(got1).To(Equal([]byte("snapshot")))
		Expect(got2).To(Equal([]byte("snapshot")))
	})

	It("removes a sink in O(1) and stops fanning out to it", func() {
		r := dataset.NewRegistry()
		ds := r.GetOrCreate("alpha")
		key := dataset.SinkKey{Host: "10.0.0.1", Port: 1}
		s := ds.AddSink(key, proto.DataPickle)
		Expect(ds.SinkCount()).To(Equal(1))

		ds.RemoveSink(key)
		Expect(ds.SinkCount()).To(Equal(0))

		ds.FanOut([]byte("after removal"))
		Expect(s.Queue.Len()).To(Equal(0))
	})

	It("only allows DELTA once a baseline has been sent", func() {
		ds := dataset.NewRegistry().GetOrCreate("alpha")
		sink := ds.AddSink(dataset.SinkKey{Host: "10.0.0.1", Port: 1}, proto.DataDelta)
		Expect(sink.CanSendDelta()).To(BeFalse())

		sink.MarkSent([]byte("v1"))
		Expect(sink.CanSendDelta()).To(BeTrue())
	})
})
