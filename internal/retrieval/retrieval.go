// Package retrieval defines the port for an external knowledge-base search
// used to answer out-of-band questions (fees, schedules, school policies).
// The registration engine never calls it; implementations live outside this
// module and are injected by the embedding application.
package retrieval

import "context"

// Document is one knowledge-base hit.
type Document struct {
	ID      string            `json:"id"`
	Title   string            `json:"title"`
	Content string            `json:"content"`
	Score   float64           `json:"score"`
	Meta    map[string]string `json:"meta,omitempty"`
}

// Searcher answers free-text queries against a knowledge base. Filters
// narrow the search (for example {"tingkatan": "SD"}); an implementation may
// ignore filters it does not understand.
type Searcher interface {
	Search(ctx context.Context, query string, filters map[string]string) ([]Document, error)
}
