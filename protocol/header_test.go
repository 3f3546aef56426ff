package protocol_test

import (
	"errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"

	"github.com/luma/bosswave/protocol"
)

var _ = Describe("Header", func() {
	pub := protocol.MustCommand("PUB ")

	Describe("EncodeHeader()", func() {
		It("renders the fixed width text record", func() {
			b, err := protocol.EncodeHeader(protocol.Header{Command: pub, FrameLength: 0, SeqNo: 5})
			Expect(err).To(Succeed())
			Expect(string(b)).To(Equal("PUB  0000000000 0000000005\n"))
			Expect(b).To(HaveLen(protocol.HeaderLen))
		})

		It("renders the largest sequence number without truncation", func() {
			b, err := protocol.EncodeHeader(protocol.Header{Command: pub, FrameLength: 42, SeqNo: 4294967295})
			Expect(err).To(Succeed())
			Expect(string(b)).To(Equal("PUB  0000000042 4294967295\n"))
		})
	})

	Describe("DecodeHeader()", func() {
		It("round trips an encoded header", func() {
			b, err := protocol.EncodeHeader(protocol.Header{Command: pub, FrameLength: 0, SeqNo: 5})
			Expect(err).To(Succeed())

			h, err := protocol.DecodeHeader(b)
			Expect(err).To(Succeed())
			Expect(h.Command).To(Equal(pub))
			Expect(h.Command.String()).To(Equal("PUB "))
			Expect(h.SeqNo).To(Equal(uint32(5)))
			Expect(h.FrameLength).To(Equal(uint32(0)))
		})

		It("keeps the command bytes as they are", func() {
			h, err := protocol.DecodeHeader([]byte("PERS 0000000010 0000000003\n"))
			Expect(err).To(Succeed())
			Expect(h.Command.String()).To(Equal("PERS"))
			Expect(h.FrameLength).To(Equal(uint32(10)))
			Expect(h.SeqNo).To(Equal(uint32(3)))
		})

		DescribeTable("rejects a header with a corrupt separator",
			func(offset int, replacement byte) {
				b := []byte("PUB  0000000000 0000000005\n")
				b[offset] = replacement

				_, err := protocol.DecodeHeader(b)
				Expect(errors.Is(err, protocol.ErrMalformedHeader)).To(BeTrue())
				Expect(protocol.CodeOf(err)).To(Equal(protocol.CodeMalformedHeader))
			},
			Entry("first space", 4, byte('x')),
			Entry("second space", 15, byte('0')),
			Entry("newline", 26, byte(' ')),
		)

		It("rejects a header of the wrong length", func() {
			_, err := protocol.DecodeHeader([]byte("PUB  0000000000 0000000005"))
			Expect(errors.Is(err, protocol.ErrMalformedHeader)).To(BeTrue())

			_, err = protocol.DecodeHeader([]byte("PUB  0000000000 0000000005\n\n"))
			Expect(errors.Is(err, protocol.ErrMalformedHeader)).To(BeTrue())

			_, err = protocol.DecodeHeader(nil)
			Expect(errors.Is(err, protocol.ErrMalformedHeader)).To(BeTrue())
		})

		It("rejects non digits in the numeric fields", func() {
			_, err := protocol.DecodeHeader([]byte("PUB  00000000x0 0000000005\n"))
			Expect(errors.Is(err, protocol.ErrMalformedHeader)).To(BeTrue())

			_, err = protocol.DecodeHeader([]byte("PUB  0000000000 +000000005\n"))
			Expect(errors.Is(err, protocol.ErrMalformedHeader)).To(BeTrue())

			_, err = protocol.DecodeHeader([]byte("PUB  0000000000       5  \n"))
			Expect(errors.Is(err, protocol.ErrMalformedHeader)).To(BeTrue())
		})

		It("rejects numbers that don't fit in 32 bits", func() {
			_, err := protocol.DecodeHeader([]byte("PUB  0000000000 9999999999\n"))
			Expect(errors.Is(err, protocol.ErrMalformedHeader)).To(BeTrue())
		})
	})

	Describe("ParseCommand()", func() {
		It("accepts exactly four bytes", func() {
			cmd, err := protocol.ParseCommand("SUBS")
			Expect(err).To(Succeed())
			Expect(cmd).To(Equal(protocol.CmdSubscribe))
		})

		It("reports a usage error for any other length", func() {
			_, err := protocol.ParseCommand("PUB")
			Expect(errors.Is(err, protocol.ErrUsage)).To(BeTrue())

			_, err = protocol.ParseCommand("PUBLISH")
			Expect(errors.Is(err, protocol.ErrUsage)).To(BeTrue())
		})

		It("panics in MustCommand", func() {
			Expect(func() { protocol.MustCommand("nope!") }).To(Panic())
		})
	})
})
