package storage_test

import (
	"context"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/tidwall/gjson"

	"github.com/luma/bosswave/protocol"
	"github.com/luma/bosswave/storage"
)

var _ = Describe("storage / messages", func() {
	var msg *protocol.Message

	BeforeEach(func() {
		msg = protocol.NewMessage(protocol.CmdPublish, 7)
		msg.KV["a"] = []byte("1")
		msg.PO["blob"] = []byte{0, 255, '\n'}
		msg.RO["uri"] = []byte("devices/a")
	})

	It("marshals messages as JSON with base64 values", func() {
		raw, err := storage.MarshalMessage(msg)
		Expect(err).To(Succeed())

		doc := gjson.ParseBytes(raw)
		Expect(doc.Get("command").String()).To(Equal("PUB "))
		Expect(doc.Get("seqno").Uint()).To(Equal(uint64(7)))
		Expect(doc.Get("kv.0.key").String()).To(Equal("YQ=="))
		Expect(doc.Get("kv.0.value").String()).To(Equal("MQ=="))
		Expect(doc.Get("po.#").Int()).To(Equal(int64(1)))
	})

	It("unmarshals what it marshals", func() {
		raw, err := storage.MarshalMessage(msg)
		Expect(err).To(Succeed())

		got, err := storage.UnmarshalMessage(raw)
		Expect(err).To(Succeed())
		Expect(got).To(Equal(msg))
	})

	It("keeps keys that aren't valid UTF-8", func() {
		binary := protocol.NewMessage(protocol.CmdPublish, 8)
		Expect(binary.Set(protocol.KV, []byte{0xff, 'a'}, []byte("1"))).To(Succeed())
		Expect(binary.Set(protocol.RO, []byte{0, 0xc3}, []byte{0xfe})).To(Succeed())

		raw, err := storage.MarshalMessage(binary)
		Expect(err).To(Succeed())

		got, err := storage.UnmarshalMessage(raw)
		Expect(err).To(Succeed())
		Expect(got.KV).To(Equal(map[string][]byte{"\xffa": []byte("1")}))
		Expect(got.RO).To(HaveKeyWithValue("\x00\xc3", []byte{0xfe}))
		Expect(got).To(Equal(binary))
	})

	It("rejects documents that aren't messages", func() {
		_, err := storage.UnmarshalMessage([]byte(`{"command":"TOOLONG"}`))
		Expect(err).To(HaveOccurred())

		_, err = storage.UnmarshalMessage([]byte(`not json`))
		Expect(err).To(HaveOccurred())

		_, err = storage.UnmarshalMessage([]byte(`{"command":"PUB ","kv":[{"key":"YQ==","value":"%%%"}]}`))
		Expect(err).To(HaveOccurred())

		_, err = storage.UnmarshalMessage([]byte(`{"command":"PUB ","kv":[{"key":"%%%","value":"MQ=="}]}`))
		Expect(err).To(HaveOccurred())
	})

	Describe("SaveMessage()", func() {
		var store *storage.InmemoryStore

		BeforeEach(func() {
			store = storage.NewInmemoryStore()
		})

		AfterEach(func() {
			store.Close()
		})

		It("stores the message under its origin and sequence number", func() {
			updates := store.ListenToUpdates()

			key, err := storage.SaveMessage(context.Background(), store, "dev-1", msg)
			Expect(err).To(Succeed())
			Expect(key).To(Equal(storage.MessageKey("dev-1", 7)))

			raw, err := store.Get(context.Background(), key)
			Expect(err).To(Succeed())

			got, err := storage.UnmarshalMessage(raw)
			Expect(err).To(Succeed())
			Expect(got).To(Equal(msg))

			var update *storage.Update
			Eventually(updates).Should(Receive(&update))
			Expect(update.Origin).To(Equal("dev-1"))
		})

		It("keeps messages flat rather than nesting by origin", func() {
			_, err := storage.SaveMessage(context.Background(), store, "dev-1", msg)
			Expect(err).To(Succeed())

			backup, err := store.Backup()
			Expect(err).To(Succeed())
			Expect(gjson.GetBytes(backup, `dev-1\.7.seqno`).Uint()).To(Equal(uint64(7)))
			Expect(gjson.GetBytes(backup, "dev-1").Exists()).To(BeFalse())
		})
	})
})
