// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0
package queue_test

import (
	"context"
	"fmt"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"github.com/framelift/framelift/pkg/queue"
)

var _ = Describe("queue", func() {

	var (
		ctx context.Context
		mr  *miniredis.Miniredis
		rdb *redis.Client
		q   *queue.Queue
	)

	newQueue := func(opts queue.Options) *queue.Queue {
		return queue.New(rdb, opts, logr.Discard())
	}

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		mr, err = miniredis.Run()
		Expect(err).ToNot(HaveOccurred())
		rdb = redis.NewClient(&redis.Options{Addr: mr.Addr()})

		q = newQueue(queue.Options{BackoffBase: time.Millisecond})
	})

	AfterEach(func() {
		rdb.Close()
		mr.Close()
	})

	Context("enqueue and dequeue", func() {

		It("should hand an enqueued job to a worker", func() {
			Expect(q.Enqueue(ctx, "job-1", "")).To(Succeed())

			task, err := q.Dequeue(ctx, 100*time.Millisecond)
			Expect(err).ToNot(HaveOccurred())
			Expect(task).ToNot(BeNil())
			Expect(task.JobID).To(Equal("job-1"))
			Expect(task.Attempts).To(Equal(1))
			Expect(task.StackID).To(BeEmpty())
		})

		It("should carry the pinned stack id", func() {
			Expect(q.Enqueue(ctx, "job-1", "commercial")).To(Succeed())

			task, err := q.Dequeue(ctx, 100*time.Millisecond)
			Expect(err).ToNot(HaveOccurred())
			Expect(task.StackID).To(Equal("commercial"))
		})

		It("should deduplicate by job id", func() {
			Expect(q.Enqueue(ctx, "job-1", "")).To(Succeed())
			Expect(q.Enqueue(ctx, "job-1", "")).To(Succeed())

			pending, _, _, err := q.Depths(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(pending).To(Equal(int64(1)))
		})

		It("should return nil when no work arrives in time", func() {
			task, err := q.Dequeue(ctx, 50*time.Millisecond)
			Expect(err).ToNot(HaveOccurred())
			Expect(task).To(BeNil())
		})

		It("should dequeue in fifo order", func() {
			Expect(q.Enqueue(ctx, "job-1", "")).To(Succeed())
			Expect(q.Enqueue(ctx, "job-2", "")).To(Succeed())

			first, err := q.Dequeue(ctx, 100*time.Millisecond)
			Expect(err).ToNot(HaveOccurred())
			second, err := q.Dequeue(ctx, 100*time.Millisecond)
			Expect(err).ToNot(HaveOccurred())

			Expect(first.JobID).To(Equal("job-1"))
			Expect(second.JobID).To(Equal("job-2"))
		})
	})

	Context("completion", func() {

		It("should clear the active entry and free the id", func() {
			Expect(q.Enqueue(ctx, "job-1", "")).To(Succeed())
			task, err := q.Dequeue(ctx, 100*time.Millisecond)
			Expect(err).ToNot(HaveOccurred())

			Expect(q.Complete(ctx, task.JobID)).To(Succeed())

			pending, active, delayed, err := q.Depths(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(pending).To(BeZero())
			Expect(active).To(BeZero())
			Expect(delayed).To(BeZero())

			// A completed id may be enqueued again.
			Expect(q.Enqueue(ctx, "job-1", "")).To(Succeed())
			pending, _, _, err = q.Depths(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(pending).To(Equal(int64(1)))
		})
	})

	Context("retries", func() {

		It("should delay a retried job and promote it when due", func() {
			Expect(q.Enqueue(ctx, "job-1", "")).To(Succeed())
			task, err := q.Dequeue(ctx, 100*time.Millisecond)
			Expect(err).ToNot(HaveOccurred())

			retried, err := q.Retry(ctx, task, "store unavailable")
			Expect(err).ToNot(HaveOccurred())
			Expect(retried).To(BeTrue())

			_, active, delayed, err := q.Depths(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(active).To(BeZero())
			Expect(delayed).To(Equal(int64(1)))

			// The millisecond backoff is already due on the second scale.
			promoted, err := q.PromoteDelayed(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(promoted).To(Equal(1))

			next, err := q.Dequeue(ctx, 100*time.Millisecond)
			Expect(err).ToNot(HaveOccurred())
			Expect(next.JobID).To(Equal("job-1"))
			Expect(next.Attempts).To(Equal(2))
		})

		It("should fail the job once the attempts are exhausted", func() {
			Expect(q.Enqueue(ctx, "job-1", "")).To(Succeed())

			var task *queue.Task
			for i := 0; i < 3; i++ {
				var err error
				task, err = q.Dequeue(ctx, 100*time.Millisecond)
				Expect(err).ToNot(HaveOccurred())
				Expect(task).ToNot(BeNil(), fmt.Sprintf("attempt %d", i+1))

				retried, err := q.Retry(ctx, task, "still broken")
				Expect(err).ToNot(HaveOccurred())
				if i < 2 {
					Expect(retried).To(BeTrue())
					promoted, err := q.PromoteDelayed(ctx)
					Expect(err).ToNot(HaveOccurred())
					Expect(promoted).To(Equal(1))
				} else {
					Expect(retried).To(BeFalse())
				}
			}

			pending, active, delayed, err := q.Depths(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(pending).To(BeZero())
			Expect(active).To(BeZero())
			Expect(delayed).To(BeZero())
		})
	})

	Context("stale active jobs", func() {

		It("should re-deliver a job whose worker died mid-run", func() {
			// An expired lease stands in for a worker that never finished.
			q = newQueue(queue.Options{BackoffBase: time.Millisecond, LeaseTimeout: -time.Hour})
			Expect(q.Enqueue(ctx, "job-1", "")).To(Succeed())
			_, err := q.Dequeue(ctx, 100*time.Millisecond)
			Expect(err).ToNot(HaveOccurred())

			recovered, err := q.RecoverStale(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(recovered).To(Equal(1))

			_, active, _, err := q.Depths(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(active).To(BeZero())

			promoted, err := q.PromoteDelayed(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(promoted).To(Equal(1))

			next, err := q.Dequeue(ctx, 100*time.Millisecond)
			Expect(err).ToNot(HaveOccurred())
			Expect(next).ToNot(BeNil())
			Expect(next.JobID).To(Equal("job-1"))
			Expect(next.Attempts).To(Equal(2))
		})

		It("should leave jobs with a live lease alone", func() {
			Expect(q.Enqueue(ctx, "job-1", "")).To(Succeed())
			_, err := q.Dequeue(ctx, 100*time.Millisecond)
			Expect(err).ToNot(HaveOccurred())

			recovered, err := q.RecoverStale(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(recovered).To(BeZero())

			_, active, _, err := q.Depths(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(active).To(Equal(int64(1)))
		})

		It("should fail a stale job that exhausted its attempts", func() {
			q = newQueue(queue.Options{BackoffBase: time.Millisecond, Attempts: 1, LeaseTimeout: -time.Hour})
			Expect(q.Enqueue(ctx, "job-1", "")).To(Succeed())
			_, err := q.Dequeue(ctx, 100*time.Millisecond)
			Expect(err).ToNot(HaveOccurred())

			recovered, err := q.RecoverStale(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(recovered).To(Equal(1))

			pending, active, delayed, err := q.Depths(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(pending).To(BeZero())
			Expect(active).To(BeZero())
			Expect(delayed).To(BeZero())

			// The id is freed again, so the job can be enqueued anew.
			Expect(q.Enqueue(ctx, "job-1", "")).To(Succeed())
			pending, _, _, err = q.Depths(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(pending).To(Equal(int64(1)))
		})
	})

	Context("retention", func() {

		It("should trim completed records over the count cap", func() {
			q = newQueue(queue.Options{
				BackoffBase:    time.Millisecond,
				CompletedCount: 2,
			})

			for i := 1; i <= 4; i++ {
				id := fmt.Sprintf("job-%d", i)
				Expect(q.Enqueue(ctx, id, "")).To(Succeed())
				task, err := q.Dequeue(ctx, 100*time.Millisecond)
				Expect(err).ToNot(HaveOccurred())
				Expect(q.Complete(ctx, task.JobID)).To(Succeed())
			}

			count, err := rdb.ZCard(ctx, "framelift:queue:completed").Result()
			Expect(err).ToNot(HaveOccurred())
			Expect(count).To(Equal(int64(2)))

			// The trimmed records drop their job hashes as well.
			exists, err := rdb.Exists(ctx, "framelift:queue:jobs:job-1").Result()
			Expect(err).ToNot(HaveOccurred())
			Expect(exists).To(BeZero())
		})
	})

	Context("progress", func() {

		It("should round-trip the percentage", func() {
			Expect(q.Enqueue(ctx, "job-1", "")).To(Succeed())
			Expect(q.SetPercentage(ctx, "job-1", 42)).To(Succeed())

			p, err := q.Percentage(ctx, "job-1")
			Expect(err).ToNot(HaveOccurred())
			Expect(p).To(Equal(42))
		})

		It("should report zero for unknown jobs", func() {
			p, err := q.Percentage(ctx, "ghost")
			Expect(err).ToNot(HaveOccurred())
			Expect(p).To(BeZero())
		})
	})
})
