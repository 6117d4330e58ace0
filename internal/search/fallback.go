package search

import (
	"strings"

	"fieldnotes/api/internal/comments"
)

// BlobScan implements Searcher by linearly scanning the current in-memory
// blob snapshot. It is the fallback when Meilisearch is not configured or
// unhealthy; comment volumes are small enough that a scan is acceptable.
type BlobScan struct {
	snapshot func() *comments.Blob
}

// NewBlobScan creates a scanner over whatever blob the provider returns at
// query time.
func NewBlobScan(snapshot func() *comments.Blob) *BlobScan {
	return &BlobScan{snapshot: snapshot}
}

// Healthy always returns true; the snapshot lives in memory.
func (b *BlobScan) Healthy() bool {
	return true
}

// Search matches case-insensitively on comment content, in blob traversal
// order, applying offset and limit after the full match pass.
func (b *BlobScan) Search(q Query) ([]Result, int, error) {
	text := strings.ToLower(strings.TrimSpace(q.Text))
	if text == "" {
		return nil, 0, nil
	}

	blob := b.snapshot()
	if blob == nil {
		return nil, 0, nil
	}

	var matches []Result
	for _, explore := range blob.Explores() {
		if q.FilterExplore != "" && explore != q.FilterExplore {
			continue
		}
		ec, ok := blob.Explore(explore)
		if !ok {
			continue
		}
		for _, field := range ec.Fields() {
			for _, c := range ec.Comments(field) {
				if !strings.Contains(strings.ToLower(c.Content), text) {
					continue
				}
				matches = append(matches, Result{
					Explore: explore,
					Field:   field,
					PK:      c.PK,
					Snippet: c.Content,
					Author:  string(c.Author),
				})
			}
		}
	}

	total := len(matches)
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []Result{}, total, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matches[offset:end], total, nil
}
