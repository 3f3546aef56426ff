package engine_test

import (
	"errors"
	"io"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/bosswave/engine"
	"github.com/luma/bosswave/internal/sockettest"
	"github.com/luma/bosswave/protocol"
)

type fieldResult struct {
	calls int
	field protocol.Field
	err   error
}

func (r *fieldResult) done(field protocol.Field, err error) {
	r.calls++
	r.field = field
	r.err = err
}

var _ = Describe("ReadValue()", func() {
	var (
		sock   *sockettest.Socket
		result *fieldResult
	)

	header := func(line string) protocol.FieldHeader {
		h, err := protocol.ParseFieldHeader([]byte(line))
		Expect(err).To(Succeed())
		return h
	}

	BeforeEach(func() {
		sock = sockettest.New()
		result = &fieldResult{}
	})

	It("reads the value and strips the trailing newline", func() {
		sock.Feed("bar\n")

		engine.ReadValue(sock, header("kv foo 3\n"), result.done)

		Expect(result.calls).To(Equal(1))
		Expect(result.err).To(Succeed())
		Expect(result.field).To(Equal(protocol.Field{
			Type:  protocol.KV,
			Key:   []byte("foo"),
			Value: []byte("bar"),
		}))
		Expect(sock.ReadSizes).To(Equal([]int{4}))
	})

	It("keeps newlines inside a value", func() {
		sock.Feed("a\nb\n")

		engine.ReadValue(sock, header("po blob 3\n"), result.done)

		Expect(result.field.Value).To(Equal([]byte("a\nb")))
	})

	It("completes the end sentinel without reading", func() {
		engine.ReadValue(sock, header("end\n"), result.done)

		Expect(result.calls).To(Equal(1))
		Expect(result.err).To(Succeed())
		Expect(result.field.IsEnd()).To(BeTrue())
		Expect(sock.Reads).To(Equal(0))
	})

	It("rejects any other single token header", func() {
		engine.ReadValue(sock, header("stop\n"), result.done)

		Expect(errors.Is(result.err, protocol.ErrMalformedFieldHeader)).To(BeTrue())
		Expect(sock.Reads).To(Equal(0))
	})

	It("rejects a non positive length without reading", func() {
		engine.ReadValue(sock, protocol.FieldHeader{Type: protocol.KV, Key: []byte("a")}, result.done)

		Expect(errors.Is(result.err, protocol.ErrInvalidFieldLength)).To(BeTrue())
		Expect(sock.Reads).To(Equal(0))
	})

	It("reports a short read as a length mismatch", func() {
		engine.ReadValue(sock, header("kv a 5\n"), result.done)
		Expect(result.calls).To(Equal(0))

		sock.Feed("ab")
		sock.ShortRead()

		Expect(result.calls).To(Equal(1))
		Expect(errors.Is(result.err, protocol.ErrValueLengthMismatch)).To(BeTrue())
	})

	It("reports a transport failure", func() {
		engine.ReadValue(sock, header("kv a 5\n"), result.done)

		sock.Fail(io.EOF)

		Expect(protocol.CodeOf(result.err)).To(Equal(protocol.CodeTransport))
		Expect(errors.Is(result.err, io.EOF)).To(BeTrue())
	})
})
