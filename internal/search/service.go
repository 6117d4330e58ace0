package search

import (
	"log"

	"fieldnotes/api/internal/comments"
)

// Service is the facade that tries Meilisearch first and falls back to a
// blob scan.
type Service struct {
	meili    *Meili
	fallback *BlobScan
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured.
func NewService(meili *Meili, fallback *BlobScan) *Service {
	return &Service{meili: meili, fallback: fallback}
}

// Search tries Meilisearch if healthy, otherwise scans the blob.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to blob scan: %v", err)
	}

	results, total, err := s.fallback.Search(q)
	if err != nil {
		log.Printf("search: blob scan error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexComment indexes one comment (fire-and-forget to Meilisearch).
func (s *Service) IndexComment(record CommentRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexComment(record); err != nil {
			log.Printf("search: index comment %s: %v", record.ID, err)
		}
	}()
}

// DeleteComment removes a comment from the index (fire-and-forget).
func (s *Service) DeleteComment(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteComment(id); err != nil {
			log.Printf("search: delete comment %s: %v", id, err)
		}
	}()
}

// ReindexBlob pushes every comment in the blob into Meilisearch. It runs
// whenever the instance (re)connects so the index reflects the persisted
// blob, not just post-boot mutations.
func (s *Service) ReindexBlob(blob *comments.Blob) {
	if s.meili == nil || !s.meili.Healthy() || blob == nil {
		return
	}
	records := CollectRecords(blob)
	if len(records) == 0 {
		return
	}
	if err := s.meili.IndexComments(records); err != nil {
		log.Printf("search: reindex blob: %v", err)
	}
}

// CollectRecords flattens a blob into index records in traversal order.
func CollectRecords(blob *comments.Blob) []CommentRecord {
	var records []CommentRecord
	for _, explore := range blob.Explores() {
		ec, ok := blob.Explore(explore)
		if !ok {
			continue
		}
		for _, field := range ec.Fields() {
			for _, c := range ec.Comments(field) {
				records = append(records, CommentRecord{
					ID:      RecordID(explore, field, c.PK),
					Explore: explore,
					Field:   field,
					PK:      c.PK,
					Content: c.Content,
					Author:  string(c.Author),
				})
			}
		}
	}
	return records
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
