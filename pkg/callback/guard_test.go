// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0
package callback_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/framelift/framelift/pkg/callback"
)

var _ = Describe("callback url guard", func() {

	Context("schemes", func() {

		It("should accept http and https", func() {
			opts := callback.GuardOptions{Development: true}
			Expect(callback.ValidateCallbackURL("https://example.com/hook", opts)).To(Succeed())
			Expect(callback.ValidateCallbackURL("http://example.com/hook", opts)).To(Succeed())
		})

		It("should reject other schemes", func() {
			opts := callback.GuardOptions{Development: true}
			err := callback.ValidateCallbackURL("ftp://example.com/hook", opts)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("http or https"))

			Expect(callback.ValidateCallbackURL("file:///etc/passwd", opts)).ToNot(Succeed())
		})

		It("should reject urls without a host", func() {
			err := callback.ValidateCallbackURL("https:///hook", callback.GuardOptions{Development: true})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("no host"))
		})
	})

	Context("internal addresses", func() {

		It("should reject localhost and loopback addresses", func() {
			for _, raw := range []string{
				"http://localhost/hook",
				"http://localhost:8080/hook",
				"http://127.0.0.1/hook",
				"http://[::1]/hook",
			} {
				err := callback.ValidateCallbackURL(raw, callback.GuardOptions{})
				Expect(err).To(HaveOccurred(), raw)
				Expect(err.Error()).To(ContainSubstring("internal address"), raw)
			}
		})

		It("should reject private and link-local ranges", func() {
			for _, raw := range []string{
				"http://10.0.0.8/hook",
				"http://172.16.44.2/hook",
				"http://192.168.1.1/hook",
				"http://169.254.169.254/latest/meta-data",
				"http://0.0.0.0/hook",
			} {
				err := callback.ValidateCallbackURL(raw, callback.GuardOptions{})
				Expect(err).To(HaveOccurred(), raw)
			}
		})

		It("should accept public addresses", func() {
			Expect(callback.ValidateCallbackURL("https://93.184.216.34/hook", callback.GuardOptions{})).To(Succeed())
		})

		It("should skip the address check in development", func() {
			opts := callback.GuardOptions{Development: true}
			Expect(callback.ValidateCallbackURL("http://localhost:3000/hook", opts)).To(Succeed())
			Expect(callback.ValidateCallbackURL("http://192.168.1.1/hook", opts)).To(Succeed())
		})
	})

	Context("allowed domains", func() {

		opts := func(domains ...string) callback.GuardOptions {
			return callback.GuardOptions{Development: true, AllowedDomains: domains}
		}

		It("should accept exact matches", func() {
			Expect(callback.ValidateCallbackURL("https://example.com/hook", opts("example.com"))).To(Succeed())
		})

		It("should accept subdomains", func() {
			Expect(callback.ValidateCallbackURL("https://api.example.com/hook", opts("example.com"))).To(Succeed())
		})

		It("should reject suffix lookalikes", func() {
			err := callback.ValidateCallbackURL("https://evilexample.com/hook", opts("example.com"))
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("not in the allowed domains"))
		})

		It("should reject hosts outside the list", func() {
			Expect(callback.ValidateCallbackURL("https://other.com/hook", opts("example.com", "partner.io"))).ToNot(Succeed())
			Expect(callback.ValidateCallbackURL("https://hooks.partner.io/x", opts("example.com", "partner.io"))).To(Succeed())
		})

		It("should permit all hosts on an empty list", func() {
			Expect(callback.ValidateCallbackURL("https://anywhere.example.net/hook", opts())).To(Succeed())
		})

		It("should match case-insensitively", func() {
			Expect(callback.ValidateCallbackURL("https://API.Example.COM/hook", opts("example.com"))).To(Succeed())
		})
	})
})
