package protocol_test

import (
	"errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/bosswave/protocol"
)

var _ = Describe("Message", func() {
	It("stores fields in their group", func() {
		msg := protocol.NewMessage(protocol.CmdPublish, 1)

		Expect(msg.Set(protocol.KV, []byte("a"), []byte("1"))).To(Succeed())
		Expect(msg.Set(protocol.PO, []byte("a"), []byte("2"))).To(Succeed())
		Expect(msg.Set(protocol.RO, []byte("a"), []byte("3"))).To(Succeed())

		Expect(msg.KV).To(HaveKeyWithValue("a", []byte("1")))
		Expect(msg.PO).To(HaveKeyWithValue("a", []byte("2")))
		Expect(msg.RO).To(HaveKeyWithValue("a", []byte("3")))
	})

	It("replaces a repeated key", func() {
		msg := protocol.NewMessage(protocol.CmdPublish, 1)

		Expect(msg.Set(protocol.KV, []byte("a"), []byte("1"))).To(Succeed())
		Expect(msg.Set(protocol.KV, []byte("a"), []byte("2"))).To(Succeed())
		Expect(msg.KV).To(HaveLen(1))
		Expect(msg.KV).To(HaveKeyWithValue("a", []byte("2")))
	})

	It("rejects unknown groups", func() {
		msg := protocol.NewMessage(protocol.CmdPublish, 1)

		err := msg.Set(protocol.FieldType("xx"), []byte("a"), []byte("1"))
		Expect(errors.Is(err, protocol.ErrMalformedFieldHeader)).To(BeTrue())
		Expect(msg.Group(protocol.FieldType("xx"))).To(BeNil())
	})

	It("works on a zero value message", func() {
		var msg protocol.Message

		Expect(msg.Set(protocol.RO, []byte("r"), []byte("1"))).To(Succeed())
		Expect(msg.RO).To(HaveLen(1))
		Expect(msg.KV).NotTo(BeNil())
	})

	It("lists fields in a stable order", func() {
		msg := protocol.NewMessage(protocol.CmdPublish, 1)
		msg.RO["r"] = []byte("3")
		msg.KV["b"] = []byte("2")
		msg.KV["a"] = []byte("1")

		fields := msg.Fields()
		Expect(fields).To(HaveLen(3))
		Expect(fields[0]).To(Equal(protocol.Field{Type: protocol.KV, Key: []byte("a"), Value: []byte("1")}))
		Expect(fields[1].Key).To(Equal([]byte("b")))
		Expect(fields[2].Type).To(Equal(protocol.RO))
	})
})
