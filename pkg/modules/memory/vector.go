// Copyright 2026 © The Tom Authors
// SPDX-License-Identifier: Apache-2.0

// Package memory gives Tom a long-term memory: free-text facts embedded
// into vectors and recalled by semantic similarity.
package memory

import "context"

// VectorStore is the interface to a vector database.
type VectorStore interface {
	// Upsert adds or updates points in the store.
	Upsert(ctx context.Context, collection string, points []Point) error
	// Search returns the nearest points to the given vector.
	Search(ctx context.Context, collection string, vector []float32, limit int, scoreThreshold float32) ([]SearchResult, error)
	// CreateCollection creates a collection if it doesn't exist.
	CreateCollection(ctx context.Context, name string, vectorSize uint64) error
}

// Point is one stored memory with its embedding.
type Point struct {
	ID        string                 `json:"id"`
	Vector    []float32              `json:"vector"`
	Payload   map[string]interface{} `json:"payload"`
	Timestamp int64                  `json:"timestamp"`
}

// SearchResult is one recalled memory with its similarity score.
type SearchResult struct {
	ID    string  `json:"id"`
	Score float32 `json:"score"`
	Point Point   `json:"point"`
}

// Embedder converts text to a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
