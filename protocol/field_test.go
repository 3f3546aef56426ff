package protocol_test

import (
	"errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"

	"github.com/luma/bosswave/protocol"
)

var _ = Describe("Field", func() {
	Describe("EncodeField()", func() {
		It("renders the header line, the value and a newline", func() {
			b := protocol.EncodeField(protocol.KV, []byte("foo"), []byte("bar"))
			Expect(string(b)).To(Equal("kv foo 3\nbar\n"))
		})

		It("uses the group token of the field type", func() {
			Expect(string(protocol.EncodeField(protocol.PO, []byte("p"), []byte("xy")))).To(Equal("po p 2\nxy\n"))
			Expect(string(protocol.EncodeField(protocol.RO, []byte("r"), []byte("z")))).To(Equal("ro r 1\nz\n"))
		})

		It("does not escape binary values", func() {
			b := protocol.EncodeField(protocol.PO, []byte("bin"), []byte{0, '\n', 0xff})
			Expect(b).To(Equal([]byte("po bin 3\n\x00\n\xff\n")))
		})
	})

	Describe("EncodeFieldHeader()", func() {
		It("renders only the header line", func() {
			Expect(string(protocol.EncodeFieldHeader(protocol.KV, []byte("foo"), 12))).To(Equal("kv foo 12\n"))
		})
	})

	Describe("ParseFieldHeader()", func() {
		It("parses type, key and length", func() {
			h, err := protocol.ParseFieldHeader([]byte("kv foo 3\n"))
			Expect(err).To(Succeed())
			Expect(h.Type).To(Equal(protocol.KV))
			Expect(h.Key).To(Equal([]byte("foo")))
			Expect(h.Length).To(Equal(3))
			Expect(h.Sentinel).To(BeFalse())
			Expect(h.IsEnd()).To(BeFalse())
		})

		It("parses a multi digit length", func() {
			h, err := protocol.ParseFieldHeader([]byte("po payload 1024\n"))
			Expect(err).To(Succeed())
			Expect(h.Length).To(Equal(1024))
		})

		It("recognises the end sentinel", func() {
			h, err := protocol.ParseFieldHeader([]byte("end\n"))
			Expect(err).To(Succeed())
			Expect(h.Sentinel).To(BeTrue())
			Expect(h.IsEnd()).To(BeTrue())
			Expect(h.Key).To(BeNil())
			Expect(h.Length).To(BeZero())
		})

		It("treats any single token line as sentinel shaped, but only end as the end", func() {
			h, err := protocol.ParseFieldHeader([]byte("foo\n"))
			Expect(err).To(Succeed())
			Expect(h.Sentinel).To(BeTrue())
			Expect(h.IsEnd()).To(BeFalse())
			Expect(string(h.Type)).To(Equal("foo"))
		})

		It("does not treat end followed by a space as the sentinel", func() {
			_, err := protocol.ParseFieldHeader([]byte("end \n"))
			Expect(errors.Is(err, protocol.ErrMalformedFieldHeader)).To(BeTrue())
		})

		DescribeTable("rejects malformed lines",
			func(line string) {
				_, err := protocol.ParseFieldHeader([]byte(line))
				Expect(errors.Is(err, protocol.ErrMalformedFieldHeader)).To(BeTrue())
			},
			Entry("empty", ""),
			Entry("no terminator after the type", "kv"),
			Entry("no length after the key", "kv foo\n"),
			Entry("no trailing newline", "kv foo 3"),
			Entry("bytes after the newline", "kv foo 3\nbar"),
		)

		DescribeTable("rejects invalid lengths",
			func(line string) {
				_, err := protocol.ParseFieldHeader([]byte(line))
				Expect(errors.Is(err, protocol.ErrInvalidFieldLength)).To(BeTrue())
				Expect(protocol.CodeOf(err)).To(Equal(protocol.CodeInvalidFieldLength))
			},
			Entry("zero", "kv foo 0\n"),
			Entry("not a number", "kv foo abc\n"),
			Entry("empty", "kv foo \n"),
			Entry("negative", "kv foo -3\n"),
			Entry("trailing garbage", "kv foo 3x\n"),
			Entry("space inside the length", "kv foo 3 4\n"),
		)
	})

	Describe("FieldType", func() {
		It("knows the three groups", func() {
			Expect(protocol.KV.Valid()).To(BeTrue())
			Expect(protocol.PO.Valid()).To(BeTrue())
			Expect(protocol.RO.Valid()).To(BeTrue())
			Expect(protocol.End.Valid()).To(BeFalse())
			Expect(protocol.FieldType("xx").Valid()).To(BeFalse())
		})
	})
})
