package cache_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/vproxy-cache/vproxy/cache"
)

var _ = Describe("Boc", func() {
	It("should reject backward state transitions", func() {
		b := cache.NewBoc()
		b.SetState(cache.BosReqDone)
		Expect(func() { b.SetState(cache.BosInvalid) }).To(Panic())
	})

	It("should allow FAILED from any non-terminal state", func() {
		b := cache.NewBoc()
		b.SetState(cache.BosReqDone)
		b.SetState(cache.BosFailed)
		Expect(b.State()).To(Equal(cache.BosFailed))
	})

	It("should not transition out of a terminal state", func() {
		b := cache.NewBoc()
		b.SetState(cache.BosFinished)
		b.SetState(cache.BosReqDone)
		Expect(b.State()).To(Equal(cache.BosFinished))
	})

	It("should wake WaitState once state reaches want", func() {
		b := cache.NewBoc()
		done := make(chan BocState, 1)
		go func() {
			done <- b.WaitState(cache.BosStream)
		}()
		b.SetState(cache.BosReqDone)
		b.SetState(cache.BosPrepStream)
		b.SetState(cache.BosStream)
		Eventually(done).Should(Receive(Equal(cache.BosStream)))
	})

	It("should reject a decreasing fetched_so_far", func() {
		b := cache.NewBoc()
		b.ExtendFetched(10)
		Expect(func() { b.ExtendFetched(5) }).To(Panic())
	})
})

type BocState = cache.BocState
