package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/brain"
	"github.com/papercomputeco/mnemo/pkg/brain/openai"
)

var _ = Describe("Thinker", func() {
	It("requires an API key", func() {
		_, err := openai.New(openai.Config{})
		Expect(err).To(MatchError(brain.ErrNotConfigured))
	})

	It("sends system and user messages", func() {
		var path string
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path = r.URL.Path
			_ = json.NewDecoder(r.Body).Decode(&req)
			json.NewEncoder(w).Encode(map[string]any{
				"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": "NONE"}}},
			})
		}))
		defer server.Close()

		t, err := openai.New(openai.Config{APIKey: "k", BaseURL: server.URL})
		Expect(err).NotTo(HaveOccurred())

		out, err := t.Think(context.Background(), "prompt", "system")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("NONE"))
		Expect(path).To(Equal("/v1/chat/completions"))
		Expect(req.Model).To(Equal(openai.DefaultModel))
		Expect(req.Messages).To(HaveLen(2))
		Expect(req.Messages[0].Role).To(Equal("system"))
		Expect(req.Messages[1].Content).To(Equal("prompt"))
	})

	It("surfaces API errors", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, `{"error":{"message":"bad key"}}`, http.StatusUnauthorized)
		}))
		defer server.Close()

		t, _ := openai.New(openai.Config{APIKey: "k", BaseURL: server.URL})
		_, err := t.Think(context.Background(), "prompt", "")
		Expect(err).To(MatchError(ContainSubstring("401")))
	})
})
