package ollama_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/embeddings"
	"github.com/papercomputeco/mnemo/pkg/embeddings/ollama"
	"github.com/papercomputeco/mnemo/pkg/vector"
)

var _ = Describe("Embedder", func() {
	It("uses defaults when unconfigured", func() {
		e, err := ollama.NewEmbedder(ollama.EmbedderConfig{})
		Expect(err).NotTo(HaveOccurred())
		Expect(e.Model()).To(Equal(ollama.DefaultEmbeddingModel))
	})

	It("posts to /api/embed and returns the first embedding", func() {
		var got map[string]any
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/embed" {
				http.NotFound(w, r)
				return
			}
			_ = json.NewDecoder(r.Body).Decode(&got)
			json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{{0.5, 0.25}}})
		}))
		defer server.Close()

		e, err := ollama.NewEmbedder(ollama.EmbedderConfig{BaseURL: server.URL, Model: "all-minilm"})
		Expect(err).NotTo(HaveOccurred())

		vec, err := e.Embed(context.Background(), "hello")
		Expect(err).NotTo(HaveOccurred())
		Expect(vec).To(Equal([]float32{0.5, 0.25}))
		Expect(got).To(HaveKeyWithValue("model", "all-minilm"))
		Expect(got).To(HaveKeyWithValue("input", "hello"))
		Expect(got).To(HaveKeyWithValue("truncate", true))
		Expect(got).NotTo(HaveKey("dimensions"))
	})

	It("requests the configured dimensions", func() {
		var got map[string]any
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewDecoder(r.Body).Decode(&got)
			json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{{1, 0, 0}}})
		}))
		defer server.Close()

		e, err := ollama.NewEmbedder(ollama.EmbedderConfig{BaseURL: server.URL + "/", Dimensions: 3})
		Expect(err).NotTo(HaveOccurred())

		vec, err := e.Embed(context.Background(), "hello")
		Expect(err).NotTo(HaveOccurred())
		Expect(vec).To(HaveLen(3))
		Expect(got).To(HaveKeyWithValue("dimensions", BeNumerically("==", 3)))
	})

	It("fails when the server returns no vectors", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{}})
		}))
		defer server.Close()

		e, _ := ollama.NewEmbedder(ollama.EmbedderConfig{BaseURL: server.URL})
		_, err := e.Embed(context.Background(), "hello")
		Expect(err).To(MatchError(vector.ErrEmbedding))
	})

	It("wraps HTTP errors as embedding failures", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "model not found", http.StatusNotFound)
		}))
		defer server.Close()

		e, _ := ollama.NewEmbedder(ollama.EmbedderConfig{BaseURL: server.URL})
		_, err := e.Embed(context.Background(), "hello")
		Expect(errors.Is(err, vector.ErrEmbedding)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("model not found"))
	})

	It("rejects blank text", func() {
		e, _ := ollama.NewEmbedder(ollama.EmbedderConfig{BaseURL: "http://127.0.0.1:1"})
		_, err := e.Embed(context.Background(), " ")
		Expect(err).To(MatchError(embeddings.ErrEmptyText))
	})
})
