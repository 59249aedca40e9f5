// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0
package jobs_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/framelift/framelift/pkg/jobs"
)

var _ = Describe("job statuses", func() {

	It("should know its terminal states", func() {
		Expect(jobs.StatusCompleted.IsTerminal()).To(BeTrue())
		Expect(jobs.StatusFailed.IsTerminal()).To(BeTrue())
		Expect(jobs.StatusCancelled.IsTerminal()).To(BeTrue())
		Expect(jobs.StatusPending.IsTerminal()).To(BeFalse())
		Expect(jobs.StatusGenerating.IsTerminal()).To(BeFalse())
	})

	It("should allow forward transitions along the processing path", func() {
		path := []jobs.Status{
			jobs.StatusPending,
			jobs.StatusProcessing,
			jobs.StatusExtractingFrames,
			jobs.StatusScoring,
			jobs.StatusClassifying,
			jobs.StatusExtractingProduct,
			jobs.StatusGenerating,
			jobs.StatusCompleted,
		}
		for i := 0; i < len(path)-1; i++ {
			Expect(path[i].CanTransition(path[i+1])).To(BeTrue(), "from %s to %s", path[i], path[i+1])
		}
	})

	It("should allow skipping phases forward", func() {
		Expect(jobs.StatusScoring.CanTransition(jobs.StatusGenerating)).To(BeTrue())
		Expect(jobs.StatusProcessing.CanTransition(jobs.StatusScoring)).To(BeTrue())
	})

	It("should reject backward transitions", func() {
		Expect(jobs.StatusScoring.CanTransition(jobs.StatusProcessing)).To(BeFalse())
		Expect(jobs.StatusGenerating.CanTransition(jobs.StatusExtractingFrames)).To(BeFalse())
	})

	It("should reject any transition out of a terminal state", func() {
		for _, terminal := range []jobs.Status{jobs.StatusCompleted, jobs.StatusFailed, jobs.StatusCancelled} {
			Expect(terminal.CanTransition(jobs.StatusProcessing)).To(BeFalse())
			Expect(terminal.CanTransition(jobs.StatusCompleted)).To(BeFalse())
		}
	})

	It("should allow a repeated status", func() {
		Expect(jobs.StatusScoring.CanTransition(jobs.StatusScoring)).To(BeTrue())
	})
})
