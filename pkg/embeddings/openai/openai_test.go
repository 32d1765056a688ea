package openai_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/embeddings/openai"
	"github.com/papercomputeco/mnemo/pkg/vector"
)

var _ = Describe("Embedder", func() {
	It("requires an API key", func() {
		_, err := openai.NewEmbedder(openai.EmbedderConfig{})
		Expect(err).To(MatchError(ContainSubstring("API key is required")))
	})

	DescribeTable("provider default models",
		func(provider, model string) {
			e, err := openai.NewEmbedder(openai.EmbedderConfig{Provider: provider, APIKey: "k"})
			Expect(err).NotTo(HaveOccurred())
			Expect(e.Model()).To(Equal(model))
		},
		Entry("openai", "openai", "text-embedding-3-small"),
		Entry("dashscope", "dashscope", "text-embedding-v3"),
		Entry("unset", "", "text-embedding-3-small"),
	)

	It("sends a bearer token and decodes the first vector", func() {
		var (
			auth string
			body map[string]any
		)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v1/embeddings" {
				http.NotFound(w, r)
				return
			}
			auth = r.Header.Get("Authorization")
			_ = json.NewDecoder(r.Body).Decode(&body)
			json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]any{{"index": 0, "embedding": []float32{0.1, 0.9}}},
			})
		}))
		defer server.Close()

		e, err := openai.NewEmbedder(openai.EmbedderConfig{
			BaseURL:    server.URL + "/v1/",
			APIKey:     "sk-test",
			Dimensions: 2,
		})
		Expect(err).NotTo(HaveOccurred())

		vec, err := e.Embed(context.Background(), "hello")
		Expect(err).NotTo(HaveOccurred())
		Expect(vec).To(Equal([]float32{0.1, 0.9}))
		Expect(auth).To(Equal("Bearer sk-test"))
		Expect(body).To(HaveKeyWithValue("model", "text-embedding-3-small"))
		Expect(body).To(HaveKeyWithValue("dimensions", BeNumerically("==", 2)))
	})

	It("fails on an empty data array", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
		}))
		defer server.Close()

		e, _ := openai.NewEmbedder(openai.EmbedderConfig{BaseURL: server.URL, APIKey: "k"})
		_, err := e.Embed(context.Background(), "hello")
		Expect(errors.Is(err, vector.ErrEmbedding)).To(BeTrue())
	})
})
