package transport_test

import (
	"bufio"
	"context"
	"errors"
	"net"
	"os"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/luma/bosswave/protocol"
	"github.com/luma/bosswave/storage"
	"github.com/luma/bosswave/transport"
)

var _ = Describe("transport / TCP", func() {
	var (
		store *storage.InmemoryStore
		tcp   *transport.TCP
	)

	BeforeEach(func() {
		store = storage.NewInmemoryStore()
		tcp = makeTCPServer(store)
	})

	AfterEach(func() {
		Expect(tcp.Close()).To(Succeed())
		Expect(store.Close()).To(Succeed())
	})

	dial := func() net.Conn {
		conn, err := net.Dial("tcp", tcp.Addr().String())
		Expect(err).To(Succeed())
		return conn
	}

	It("listens on the bound address", func() {
		conn := dial()
		defer conn.Close()

		Eventually(tcp.Conns).Should(Equal(1))
	})

	It("forwards a message to every other device", func() {
		publisher := dial()
		defer publisher.Close()

		subscriber := dial()
		defer subscriber.Close()

		Eventually(tcp.Conns).Should(Equal(2))

		msg := protocol.NewMessage(protocol.CmdPublish, 1)
		msg.KV["a"] = []byte("1")
		msg.PO["p"] = []byte("payload\nwith newline")

		Expect(protocol.WriteMessage(publisher, msg)).To(Succeed())

		Expect(subscriber.SetReadDeadline(time.Now().Add(2 * time.Second))).To(Succeed())
		got, err := protocol.ReadMessage(bufio.NewReader(subscriber), protocol.DefaultLimits())
		Expect(err).To(Succeed())
		Expect(got).To(Equal(msg))

		// The publisher doesn't hear its own message
		Expect(publisher.SetReadDeadline(time.Now().Add(100 * time.Millisecond))).To(Succeed())
		_, err = publisher.Read(make([]byte, 1))
		Expect(errors.Is(err, os.ErrDeadlineExceeded)).To(BeTrue())
	})

	It("records published messages in the store", func() {
		publisher := dial()
		defer publisher.Close()

		Expect(protocol.WriteMessage(publisher, protocol.NewMessage(protocol.CmdPersist, 42))).To(Succeed())

		Eventually(func() (string, error) {
			backup, err := store.Backup()
			return string(backup), err
		}).Should(ContainSubstring(`"seqno":42`))
	})

	It("drops a device that sends a malformed message", func() {
		good := dial()
		defer good.Close()

		bad := dial()
		defer bad.Close()

		Eventually(tcp.Conns).Should(Equal(2))

		_, err := bad.Write([]byte("PUB  0000000000 0000000001\nkv a 0\n\nend\n"))
		Expect(err).To(Succeed())

		Eventually(tcp.Conns).Should(Equal(1))
	})

	It("forgets devices that disconnect", func() {
		conn := dial()
		Eventually(tcp.Conns).Should(Equal(1))

		conn.Close()
		Eventually(tcp.Conns).Should(Equal(0))
	})

	It("closes device connections when stopped", func() {
		conn := dial()
		defer conn.Close()

		Eventually(tcp.Conns).Should(Equal(1))
		Expect(tcp.Close()).To(Succeed())

		Expect(conn.SetReadDeadline(time.Now().Add(2 * time.Second))).To(Succeed())
		_, err := conn.Read(make([]byte, 1))
		Expect(err).To(HaveOccurred())
		Expect(errors.Is(err, os.ErrDeadlineExceeded)).To(BeFalse())
	})
})

var _ = Describe("transport / TCP with reuseport", func() {
	It("binds every listener to the port picked for the first", func() {
		store := storage.NewInmemoryStore()
		defer store.Close()

		tcp := transport.NewTCP(transport.Options{
			Host:         "127.0.0.1",
			Port:         0,
			Reuseport:    true,
			NumListeners: 3,
			Store:        store,
		})

		Expect(tcp.Start(context.Background())).To(Succeed())
		defer tcp.Close()

		addrs := tcp.Addrs()
		Expect(addrs).To(HaveLen(3))

		for _, addr := range addrs {
			Expect(addr.String()).To(Equal(tcp.Addr().String()))
		}

		conn, err := net.Dial("tcp", tcp.Addr().String())
		Expect(err).To(Succeed())
		conn.Close()
	})
})

func makeTCPServer(store storage.Store) *transport.TCP {
	log, err := zap.NewDevelopment()
	Expect(err).To(Succeed())

	tcp := transport.NewTCP(transport.Options{
		Host:  "127.0.0.1",
		Port:  0,
		Store: store,
		Log:   log,
	})

	Expect(tcp.Start(context.Background())).To(Succeed())
	Expect(tcp.Addr()).NotTo(BeNil())

	return tcp
}
