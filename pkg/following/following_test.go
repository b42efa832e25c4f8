package following_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/birdthread/threader-go/pkg/db/models"
	"github.com/birdthread/threader-go/pkg/following"
	"github.com/birdthread/threader-go/pkg/store"
)

// fakeFetcher scripts the live following lookup.
type fakeFetcher struct {
	mu    sync.Mutex
	ids   []string
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (f *fakeFetcher) GetFollowingIDs(ctx context.Context) ([]string, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.ids, nil
}

func (f *fakeFetcher) set(ids []string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = ids
	f.err = err
}

var _ = Describe("Cache", func() {
	var (
		fetcher *fakeFetcher
		mem     *store.MemoryStore
		logger  *logrus.Logger
		ctx     context.Context
	)

	BeforeEach(func() {
		fetcher = &fakeFetcher{ids: []string{"alice", "bob"}}
		logger = logrus.New()
		logger.SetLevel(logrus.ErrorLevel)
		mem = store.NewMemoryStore(logger)
		ctx = context.Background()
	})

	It("fetches once and serves repeat calls from the memo", func() {
		cache := following.NewCache(fetcher, mem, logger, time.Minute)

		ids, err := cache.IDs(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(ids).To(HaveKey("alice"))
		Expect(ids).To(HaveKey("bob"))

		_, err = cache.IDs(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(fetcher.calls.Load()).To(Equal(int32(1)))
	})

	It("fans concurrent misses into a single fetch", func() {
		fetcher.delay = 50 * time.Millisecond
		cache := following.NewCache(fetcher, mem, logger, time.Minute)

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ids, err := cache.IDs(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(ids).To(HaveKey("alice"))
			}()
		}
		wg.Wait()

		Expect(fetcher.calls.Load()).To(Equal(int32(1)))
	})

	It("refetches after the TTL expires", func() {
		cache := following.NewCache(fetcher, mem, logger, 10*time.Millisecond)

		_, err := cache.IDs(ctx)
		Expect(err).NotTo(HaveOccurred())

		time.Sleep(20 * time.Millisecond)

		_, err = cache.IDs(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(fetcher.calls.Load()).To(Equal(int32(2)))
	})

	It("serves the stale memo when the live fetch fails", func() {
		cache := following.NewCache(fetcher, mem, logger, 10*time.Millisecond)

		_, err := cache.IDs(ctx)
		Expect(err).NotTo(HaveOccurred())

		time.Sleep(20 * time.Millisecond)
		fetcher.set(nil, errors.New("rate limited"))

		ids, err := cache.IDs(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(ids).To(HaveKey("alice"))
	})

	It("falls back to the store when there is no memo", func() {
		Expect(mem.SaveUser(&models.User{ID: "carol", Following: true})).To(Succeed())
		Expect(mem.SaveUser(&models.User{ID: "dave", Following: false})).To(Succeed())
		fetcher.set(nil, errors.New("down"))

		cache := following.NewCache(fetcher, mem, logger, time.Minute)

		ids, err := cache.IDs(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(ids).To(HaveKey("carol"))
		Expect(ids).NotTo(HaveKey("dave"))
	})

	It("refetches after Invalidate", func() {
		cache := following.NewCache(fetcher, mem, logger, time.Minute)

		_, err := cache.IDs(ctx)
		Expect(err).NotTo(HaveOccurred())

		cache.Invalidate()

		_, err = cache.IDs(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(fetcher.calls.Load()).To(Equal(int32(2)))
	})
})
