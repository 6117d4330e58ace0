// Package search provides full-text search over field comments, backed by
// Meilisearch with an in-memory blob scan as fallback.
package search

// CommentRecord is the data indexed for one comment.
type CommentRecord struct {
	ID      string `json:"id"`
	Explore string `json:"explore"`
	Field   string `json:"field"`
	PK      string `json:"pk"`
	Content string `json:"content"`
	Author  string `json:"author"`
}

// Query describes a comment search request.
type Query struct {
	Text          string
	FilterExplore string
	Limit         int
	Offset        int
}

// Result is a single search hit returned to the caller.
type Result struct {
	Explore string `json:"explore"`
	Field   string `json:"field"`
	PK      string `json:"pk"`
	Snippet string `json:"snippet"`
	Author  string `json:"author"`
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search over comments.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}
