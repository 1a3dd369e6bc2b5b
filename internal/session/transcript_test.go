package session_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"papertalk.app/relay/internal/model"
	"papertalk.app/relay/internal/session"
)

var _ = Describe("Transcript", func() {
	var transcript *session.Transcript

	BeforeEach(func() {
		transcript = session.NewTranscript()
	})

	Describe("AppendMessage", func() {
		It("assigns strictly increasing ids when absent", func() {
			first, err := transcript.AppendMessage(model.Message{Sender: model.SenderUser, Text: "one"})
			Expect(err).NotTo(HaveOccurred())
			second, err := transcript.AppendMessage(model.Message{Sender: model.SenderUser, Text: "two"})
			Expect(err).NotTo(HaveOccurred())

			Expect(second.ID).To(BeNumerically(">", first.ID))
		})

		It("rejects a duplicate id instead of overwriting", func() {
			msg, err := transcript.AppendMessage(model.Message{Sender: model.SenderUser, Text: "one"})
			Expect(err).NotTo(HaveOccurred())

			_, err = transcript.AppendMessage(model.Message{ID: msg.ID, Sender: model.SenderUser, Text: "clobber"})
			Expect(err).To(HaveOccurred())

			log := transcript.DisplayLog()
			Expect(log).To(HaveLen(1))
			Expect(log[0].Text).To(Equal("one"))
		})

		It("preserves append order", func() {
			for _, text := range []string{"a", "b", "c"} {
				_, err := transcript.AppendMessage(model.Message{Sender: model.SenderUser, Text: text})
				Expect(err).NotTo(HaveOccurred())
			}

			log := transcript.DisplayLog()
			Expect(log[0].Text).To(Equal("a"))
			Expect(log[1].Text).To(Equal("b"))
			Expect(log[2].Text).To(Equal("c"))
		})
	})

	Describe("streaming lifecycle", func() {
		It("accumulates deltas into the placeholder", func() {
			Expect(transcript.BeginStreaming(42)).To(Succeed())

			Expect(transcript.AppendStreamText(42, "Hel")).To(BeTrue())
			Expect(transcript.AppendStreamText(42, "lo")).To(BeTrue())

			log := transcript.DisplayLog()
			Expect(log).To(HaveLen(1))
			Expect(log[0].Text).To(Equal("Hello"))
			Expect(log[0].IsStreaming).To(BeTrue())
		})

		It("finalizes with the server text and commits the assistant turn", func() {
			Expect(transcript.BeginStreaming(42)).To(Succeed())
			transcript.AppendStreamText(42, "partial")

			Expect(transcript.FinishStreaming(42, "final text")).To(BeTrue())

			log := transcript.DisplayLog()
			Expect(log[0].Text).To(Equal("final text"))
			Expect(log[0].IsStreaming).To(BeFalse())

			api := transcript.APILog()
			Expect(api).To(HaveLen(1))
			Expect(api[0].Role).To(Equal(model.RoleAssistant))
			Expect(api[0].Content).To(Equal("final text"))
		})

		It("treats updates for an absent id as no-ops", func() {
			Expect(transcript.AppendStreamText(99, "ghost")).To(BeFalse())
			Expect(transcript.FinishStreaming(99, "ghost")).To(BeFalse())

			Expect(transcript.DisplayLog()).To(BeEmpty())
			Expect(transcript.APILog()).To(BeEmpty())
		})

		It("drops trailing deltas after a reset", func() {
			Expect(transcript.BeginStreaming(42)).To(Succeed())
			transcript.Reset()

			Expect(transcript.AppendStreamText(42, "late")).To(BeFalse())
			Expect(transcript.DisplayLog()).To(BeEmpty())
		})

		It("does not commit an assistant turn when finalize races a reset", func() {
			Expect(transcript.BeginStreaming(42)).To(Succeed())
			transcript.Reset()

			Expect(transcript.FinishStreaming(42, "late")).To(BeFalse())
			Expect(transcript.APILog()).To(BeEmpty())
		})
	})

	Describe("AbortStreaming", func() {
		It("removes the placeholder without recording an error turn", func() {
			Expect(transcript.BeginStreaming(42)).To(Succeed())
			transcript.AppendStreamText(42, "partial")

			Expect(transcript.AbortStreaming(42)).To(BeTrue())

			Expect(transcript.DisplayLog()).To(BeEmpty())
			Expect(transcript.APILog()).To(BeEmpty())
			Expect(transcript.AppendStreamText(42, "trailing")).To(BeFalse())
		})

		It("leaves finalized messages untouched", func() {
			Expect(transcript.BeginStreaming(42)).To(Succeed())
			Expect(transcript.FinishStreaming(42, "answer")).To(BeTrue())

			Expect(transcript.AbortStreaming(42)).To(BeFalse())
			Expect(transcript.DisplayLog()).To(HaveLen(1))
		})

		It("is a no-op for an absent id", func() {
			Expect(transcript.AbortStreaming(99)).To(BeFalse())
		})
	})

	Describe("FailStreaming", func() {
		It("replaces the placeholder with matching error turns in both logs", func() {
			Expect(transcript.BeginStreaming(42)).To(Succeed())
			transcript.AppendStreamText(42, "partial")

			Expect(transcript.FailStreaming(42, "something broke")).To(BeTrue())

			log := transcript.DisplayLog()
			Expect(log).To(HaveLen(1))
			Expect(log[0].IsError).To(BeTrue())
			Expect(log[0].Text).To(Equal("something broke"))
			Expect(log[0].ID).NotTo(Equal(int64(42)))

			api := transcript.APILog()
			Expect(api).To(HaveLen(1))
			Expect(api[0].Content).To(Equal("something broke"))
			Expect(api[0].ID).To(Equal(log[0].ID))
		})

		It("is a no-op for an absent id", func() {
			Expect(transcript.FailStreaming(99, "nope")).To(BeFalse())
			Expect(transcript.DisplayLog()).To(BeEmpty())
			Expect(transcript.APILog()).To(BeEmpty())
		})
	})

	It("keeps log parity across completed turns", func() {
		for i, streamID := range []int64{101, 102, 103} {
			msg, err := transcript.AppendMessage(model.Message{Sender: model.SenderUser, Text: "question"})
			Expect(err).NotTo(HaveOccurred())
			transcript.AppendTurn(model.Turn{ID: msg.ID, Role: model.RoleUser, Content: "question"})

			Expect(transcript.BeginStreaming(streamID)).To(Succeed())
			if i == 1 {
				Expect(transcript.FailStreaming(streamID, "error turn")).To(BeTrue())
			} else {
				Expect(transcript.FinishStreaming(streamID, "answer")).To(BeTrue())
			}
		}

		Expect(transcript.DisplayLog()).To(HaveLen(6))
		Expect(transcript.APILog()).To(HaveLen(6))
	})
})
