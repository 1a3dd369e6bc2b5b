package stream_test

import (
	"context"
	"io"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"papertalk.app/relay/internal/model"
	"papertalk.app/relay/internal/session"
	"papertalk.app/relay/internal/stream"
)

const consumerErrorText = "Sorry, there was an error processing your request. Please try again."

func readySession() *session.Session {
	s := session.New()
	s.BeginLoad("2301.00001")
	s.FinishLoad("\\documentclass{article}")
	_, err := s.SubmitTurn("What is the main result?")
	Expect(err).NotTo(HaveOccurred())
	return s
}

var _ = Describe("Consumer", func() {
	var sess *session.Session

	BeforeEach(func() {
		sess = readySession()
	})

	It("applies open, chunks, and the authoritative final text", func() {
		input := frame(`{"id":"77","sender":"assistant","text":"","isComplete":false}`) +
			frame(`{"id":"77","sender":"assistant","text":"The main ","isComplete":false,"isChunk":true}`) +
			frame(`{"id":"77","sender":"assistant","text":"result is X.","isComplete":false,"isChunk":true}`) +
			frame(`{"id":"77","sender":"assistant","text":"The main result is X. (revised)","isComplete":true}`)

		var deltas []string
		consumer := stream.NewConsumer(sess)
		consumer.OnDelta = func(d string) { deltas = append(deltas, d) }

		text, err := consumer.Run(context.Background(), strings.NewReader(input))
		Expect(err).NotTo(HaveOccurred())
		Expect(deltas).To(Equal([]string{"The main ", "result is X."}))

		// The server's finalized text wins even when it differs from the
		// concatenated deltas.
		Expect(text).To(Equal("The main result is X. (revised)"))

		display := sess.Transcript().DisplayLog()
		Expect(display).To(HaveLen(2))
		Expect(display[1].ID).To(Equal(int64(77)))
		Expect(display[1].Text).To(Equal("The main result is X. (revised)"))
		Expect(display[1].IsStreaming).To(BeFalse())

		api := sess.Transcript().APILog()
		Expect(api).To(HaveLen(2))
		Expect(api[1].Role).To(Equal(model.RoleAssistant))
		Expect(api[1].Content).To(Equal("The main result is X. (revised)"))
	})

	It("replaces the placeholder with an error turn on a terminal error event", func() {
		input := frame(`{"id":"77","sender":"assistant","text":"","isComplete":false}`) +
			frame(`{"id":"77","sender":"assistant","text":"partial","isComplete":false,"isChunk":true}`) +
			frame(`{"error":"Failed to get streaming response from AI","isComplete":true}`)

		_, err := stream.NewConsumer(sess).Run(context.Background(), strings.NewReader(input))
		Expect(err).To(MatchError("Failed to get streaming response from AI"))

		display := sess.Transcript().DisplayLog()
		Expect(display).To(HaveLen(2))
		Expect(display[1].IsError).To(BeTrue())
		Expect(display[1].Text).To(Equal(consumerErrorText))

		api := sess.Transcript().APILog()
		Expect(api).To(HaveLen(2))
		Expect(api[1].Content).To(Equal(consumerErrorText))
		Expect(api[1].ID).To(Equal(display[1].ID))
	})

	It("records an error turn when the stream ends with no terminal event", func() {
		input := frame(`{"id":"77","sender":"assistant","text":"","isComplete":false}`) +
			frame(`{"id":"77","sender":"assistant","text":"half a rep","isComplete":false,"isChunk":true}`)

		_, err := stream.NewConsumer(sess).Run(context.Background(), strings.NewReader(input))
		Expect(err).To(MatchError(stream.ErrNoTerminalEvent))

		display := sess.Transcript().DisplayLog()
		Expect(display).To(HaveLen(2))
		Expect(display[1].IsError).To(BeTrue())
		Expect(display[1].IsStreaming).To(BeFalse())
		Expect(sess.Transcript().APILog()).To(HaveLen(2))
	})

	It("records an error turn when the transport fails before any event", func() {
		_, err := stream.NewConsumer(sess).Run(context.Background(), failingReader{err: io.ErrUnexpectedEOF})
		Expect(err).To(HaveOccurred())
		Expect(err).NotTo(MatchError(stream.ErrNoTerminalEvent))

		display := sess.Transcript().DisplayLog()
		Expect(display).To(HaveLen(2))
		Expect(display[1].IsError).To(BeTrue())
		Expect(sess.Transcript().APILog()).To(HaveLen(2))
	})

	It("drops trailing chunks after the session was reset", func() {
		input := frame(`{"id":"77","sender":"assistant","text":"","isComplete":false}`) +
			frame(`{"id":"77","sender":"assistant","text":"stale","isComplete":false,"isChunk":true}`) +
			frame(`{"id":"77","sender":"assistant","text":"stale","isComplete":true}`)

		pr, pw := io.Pipe()
		var deltas []string
		consumer := stream.NewConsumer(sess)
		consumer.OnDelta = func(d string) { deltas = append(deltas, d) }

		done := make(chan error, 1)
		go func() {
			_, err := consumer.Run(context.Background(), pr)
			done <- err
		}()

		_, err := pw.Write([]byte(frame(`{"id":"77","sender":"assistant","text":"","isComplete":false}`)))
		Expect(err).NotTo(HaveOccurred())
		Eventually(sess.ActiveStreamID).Should(Equal(int64(77)))

		// Loading a different paper mid-stream clears the transcript.
		sess.BeginLoad("2302.99999")
		sess.FinishLoad("new paper")

		_, err = pw.Write([]byte(input[strings.Index(input, "\n\n")+2:]))
		Expect(err).NotTo(HaveOccurred())
		Expect(pw.Close()).To(Succeed())

		Eventually(done).Should(Receive())
		Expect(deltas).To(BeEmpty())
		Expect(sess.Transcript().DisplayLog()).To(BeEmpty())
		Expect(sess.Transcript().APILog()).To(BeEmpty())
	})

	It("drops trailing chunks after a new turn superseded the stream", func() {
		pr, pw := io.Pipe()
		var deltas []string
		consumer := stream.NewConsumer(sess)
		consumer.OnDelta = func(d string) { deltas = append(deltas, d) }

		done := make(chan error, 1)
		go func() {
			_, err := consumer.Run(context.Background(), pr)
			done <- err
		}()

		_, err := pw.Write([]byte(frame(`{"id":"42","sender":"assistant","text":"","isComplete":false}`)))
		Expect(err).NotTo(HaveOccurred())
		Eventually(sess.ActiveStreamID).Should(Equal(int64(42)))

		_, err = sess.SubmitTurn("second question")
		Expect(err).NotTo(HaveOccurred())

		_, err = pw.Write([]byte(frame(`{"id":"42","sender":"assistant","text":"stale","isComplete":false,"isChunk":true}`) +
			frame(`{"id":"42","sender":"assistant","text":"stale","isComplete":true}`)))
		Expect(err).NotTo(HaveOccurred())
		Expect(pw.Close()).To(Succeed())

		Eventually(done).Should(Receive())
		Expect(deltas).To(BeEmpty())

		display := sess.Transcript().DisplayLog()
		Expect(display).To(HaveLen(2))
		for _, msg := range display {
			Expect(msg.Sender).To(Equal(model.SenderUser))
			Expect(msg.IsStreaming).To(BeFalse())
		}
		Expect(sess.Transcript().APILog()).To(HaveLen(len(display)))
	})

	It("returns promptly when the context is cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		pr, pw := io.Pipe()
		defer pw.Close()

		done := make(chan error, 1)
		go func() {
			_, err := stream.NewConsumer(sess).Run(ctx, pr)
			done <- err
		}()

		_, err := pw.Write([]byte(frame(`{"id":"5","sender":"assistant","text":"","isComplete":false}`)))
		Expect(err).NotTo(HaveOccurred())
		cancel()
		// Unblock the pending read so the loop observes cancellation.
		_, err = pw.Write([]byte(frame(`{"id":"5","sender":"assistant","text":"x","isComplete":false,"isChunk":true}`)))
		Expect(err).NotTo(HaveOccurred())

		Eventually(done).Should(Receive(MatchError(context.Canceled)))
	})
})
