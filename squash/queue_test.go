package squash_test

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/nspyre-org/nspyre-sub001/proto"
	"github.com/nspyre-org/nspyre-sub001/squash"
)

var _ = Describe("Queue", func() {
	var q *squash.Queue

	BeforeEach(func() {
		q = squash.New()
	})

	It("returns items in FIFO order under capacity", func() {
		q.TryPut([]byte("a"))
		q.TryPut([]byte("b"))

		first, err := q.Get(time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(first).To(Equal([]byte("a")))

		second, err := q.Get(time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(second).To(Equal([]byte("b")))
	})

	It("squashes to the newest item on overflow", func() {
		for i := 0; i < proto.QueueSize; i++ {
			q.TryPut([]byte{byte(i)})
		}
		// one more than capacity: everything pending is dropped except
		// this last item (spec §4.3 "keeps only the newest").
		q.TryPut([]byte{0xFF})

		Expect(q.Len()).To(Equal(1))
		item, err := q.Get(time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(item).To(Equal([]byte{0xFF}))
		Expect(q.Squashed()).To(BeNumerically(">", 0))
	})

	It("times out when nothing is available", func() {
		_, err := q.Get(10 * time.Millisecond)
		Expect(err).To(HaveOccurred())
	})
})
