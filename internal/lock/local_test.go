package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Local", func() {
	var l *Local

	BeforeEach(func() {
		l = NewLocal()
	})

	It("serializes holders of the same key", func() {
		var inside, peak int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				unlock, err := l.Lock(context.Background(), "conv-1")
				Expect(err).NotTo(HaveOccurred())
				n := atomic.AddInt32(&inside, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				unlock()
			}()
		}
		wg.Wait()
		Expect(peak).To(Equal(int32(1)))
		Expect(l.held()).To(BeZero())
	})

	It("does not block other keys", func() {
		unlock, err := l.Lock(context.Background(), "conv-1")
		Expect(err).NotTo(HaveOccurred())
		defer unlock()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		other, err := l.Lock(ctx, "conv-2")
		Expect(err).NotTo(HaveOccurred())
		other()
	})

	It("gives up when the context ends", func() {
		unlock, err := l.Lock(context.Background(), "conv-1")
		Expect(err).NotTo(HaveOccurred())

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err = l.Lock(ctx, "conv-1")
		Expect(err).To(MatchError(context.DeadlineExceeded))

		unlock()
		unlock()
		Expect(l.held()).To(BeZero())
	})
})
