package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/brain/ollama"
)

var _ = Describe("Thinker", func() {
	It("returns the chat message content", func() {
		var stream any
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			stream = body["stream"]
			json.NewEncoder(w).Encode(map[string]any{
				"message": map[string]string{"role": "assistant", "content": "summary"},
				"done":    true,
			})
		}))
		defer server.Close()

		out, err := ollama.New(ollama.Config{BaseURL: server.URL}).Think(context.Background(), "p", "s")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("summary"))
		Expect(stream).To(BeFalse())
	})

	It("surfaces ollama errors", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{"error": "model not loaded"})
		}))
		defer server.Close()

		_, err := ollama.New(ollama.Config{BaseURL: server.URL}).Think(context.Background(), "p", "")
		Expect(err).To(MatchError(ContainSubstring("model not loaded")))
	})
})
