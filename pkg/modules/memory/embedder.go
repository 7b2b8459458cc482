// Copyright 2026 © The Tom Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"hash/fnv"

	"github.com/tom-assistant/tom/pkg/llm"
)

// OllamaEmbedder embeds text through an Ollama embeddings endpoint.
type OllamaEmbedder struct {
	provider *llm.OllamaProvider
	model    string
}

// NewOllamaEmbedder builds an embedder over the given Ollama provider.
func NewOllamaEmbedder(provider *llm.OllamaProvider, model string) *OllamaEmbedder {
	return &OllamaEmbedder{provider: provider, model: model}
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.provider.Embed(ctx, e.model, text)
}

// HashEmbedder is a deterministic embedder with no model behind it: each
// token hashes into a fixed-size bag-of-words vector. Identical texts get
// identical vectors, which is all the tests need.
type HashEmbedder struct {
	Dim int
}

func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	dim := e.Dim
	if dim <= 0 {
		dim = 64
	}
	vec := make([]float32, dim)
	start := 0
	for i := 0; i <= len(text); i++ {
		if i == len(text) || text[i] == ' ' {
			if i > start {
				h := fnv.New32a()
				h.Write([]byte(text[start:i]))
				vec[h.Sum32()%uint32(dim)]++
			}
			start = i + 1
		}
	}
	return vec, nil
}

var (
	_ Embedder = (*OllamaEmbedder)(nil)
	_ Embedder = (*HashEmbedder)(nil)
)
