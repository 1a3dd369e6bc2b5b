package httpapi_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"papertalk.app/relay/internal/http/dto"
	"papertalk.app/relay/internal/httpapi"
	"papertalk.app/relay/internal/model"
)

var _ = Describe("Client", func() {
	Describe("FetchSource", func() {
		It("returns the body on success", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.URL.Path).To(Equal("/api/source"))
				Expect(r.URL.Query().Get("arxivId")).To(Equal("2301.00001"))
				_, _ = io.WriteString(w, "\\documentclass{article}")
			}))
			defer server.Close()

			text, err := httpapi.New(server.URL).FetchSource(context.Background(), "2301.00001")
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("\\documentclass{article}"))
		})

		It("treats a non-2xx status as an error", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "Error fetching LaTeX source", http.StatusBadGateway)
			}))
			defer server.Close()

			_, err := httpapi.New(server.URL).FetchSource(context.Background(), "2301.00001")
			Expect(err).To(MatchError(ContainSubstring("status 502")))
		})
	})

	Describe("Chat", func() {
		turns := []model.Turn{{ID: 7, Role: model.RoleUser, Content: "hi"}}

		It("posts the full turn list and decodes the reply", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.URL.Path).To(Equal("/api/chat"))

				var req dto.ChatRequest
				Expect(json.NewDecoder(r.Body).Decode(&req)).To(Succeed())
				Expect(req.Stream).To(BeFalse())
				Expect(req.Messages).To(HaveLen(1))
				Expect(req.Messages[0].Content).To(Equal("hi"))

				_ = json.NewEncoder(w).Encode(dto.ChatResponse{ID: 42, Text: "hello", Sender: "assistant"})
			}))
			defer server.Close()

			msg, err := httpapi.New(server.URL).Chat(context.Background(), turns)
			Expect(err).NotTo(HaveOccurred())
			Expect(msg.ID).To(Equal(int64(42)))
			Expect(msg.Text).To(Equal("hello"))
			Expect(msg.Sender).To(Equal("assistant"))
		})

		It("surfaces the server's error message", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = io.WriteString(w, `{"error":"Failed to get response from AI"}`)
			}))
			defer server.Close()

			_, err := httpapi.New(server.URL).Chat(context.Background(), turns)
			Expect(err).To(MatchError(ContainSubstring("Failed to get response from AI")))
		})
	})

	Describe("ChatStream", func() {
		It("hands back the raw event stream", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var req dto.ChatRequest
				Expect(json.NewDecoder(r.Body).Decode(&req)).To(Succeed())
				Expect(req.Stream).To(BeTrue())

				w.Header().Set("Content-Type", "text/event-stream")
				_, _ = io.WriteString(w, "data: {\"id\":\"1\",\"sender\":\"ai\",\"text\":\"\",\"isComplete\":false}\n\n")
			}))
			defer server.Close()

			body, err := httpapi.New(server.URL).ChatStream(context.Background(), nil)
			Expect(err).NotTo(HaveOccurred())
			defer body.Close()

			data, err := io.ReadAll(body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(HavePrefix("data: "))
		})

		It("closes the body and errors on a non-200 status", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = io.WriteString(w, `{"error":"Messages array is required"}`)
			}))
			defer server.Close()

			_, err := httpapi.New(server.URL).ChatStream(context.Background(), nil)
			Expect(err).To(MatchError(ContainSubstring("Messages array is required")))
		})
	})
})
