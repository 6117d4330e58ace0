package search

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const idxComments = "fieldnotes_comments"

// Meili implements Searcher via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}

	hookMu    sync.Mutex
	onHealthy func()
}

// NewMeili creates a Meilisearch client and configures the comment index.
// The caller should proceed without search if the instance stays unhealthy;
// a background loop keeps probing and reconfigures on recovery.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxComments,
		PrimaryKey: "id",
	}); err != nil {
		log.Printf("search: create index %s (may already exist): %v", idxComments, err)
	}

	index := m.client.Index(idxComments)
	filterable := []interface{}{"explore", "field", "author"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("search: update filterable attrs: %v", err)
	}
	searchable := []string{"content"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("search: update searchable attrs: %v", err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			m.observeHealth(err)
		}
	}
}

func (m *Meili) observeHealth(err error) {
	wasHealthy := m.healthy.Load()
	m.healthy.Store(err == nil)
	if err == nil && !wasHealthy {
		log.Println("search: meilisearch recovered, reconfiguring index")
		m.configureIndex()
		m.notifyHealthy()
	}
}

// OnHealthy registers a callback invoked whenever Meilisearch becomes
// reachable, including immediately when it already is. Callers use it to
// rebuild the index from persisted truth, so documents saved while the
// instance was down (or before this process started) become findable.
func (m *Meili) OnHealthy(fn func()) {
	m.hookMu.Lock()
	m.onHealthy = fn
	m.hookMu.Unlock()
	if m.healthy.Load() {
		go fn()
	}
}

func (m *Meili) notifyHealthy() {
	m.hookMu.Lock()
	fn := m.onHealthy
	m.hookMu.Unlock()
	if fn != nil {
		go fn()
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries the comment index.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	request := &meili.SearchRequest{
		Limit:                 limit,
		Offset:                int64(q.Offset),
		AttributesToHighlight: []string{"content"},
		HighlightPreTag:       "<mark>",
		HighlightPostTag:      "</mark>",
	}
	if q.FilterExplore != "" {
		request.Filter = fmt.Sprintf("explore = %q", q.FilterExplore)
	}

	resp, err := m.client.Index(idxComments).Search(q.Text, request)
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	results := make([]Result, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		results = append(results, hitToResult(hit))
	}
	return results, int(resp.EstimatedTotalHits), nil
}

func hitToResult(hit meili.Hit) Result {
	r := Result{
		Explore: decodeString(hit, "explore"),
		Field:   decodeString(hit, "field"),
		PK:      decodeString(hit, "pk"),
		Author:  decodeString(hit, "author"),
	}
	r.Snippet = decodeFormattedString(hit, "content")
	if r.Snippet == "" {
		r.Snippet = decodeString(hit, "content")
	}
	return r
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]string
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	return strings.TrimSpace(formatted[key])
}

// IndexComment adds or updates one comment in the index.
func (m *Meili) IndexComment(record CommentRecord) error {
	_, err := m.client.Index(idxComments).AddDocuments([]CommentRecord{record}, nil)
	return err
}

// IndexComments bulk-indexes comments, used for reindexing a whole blob.
func (m *Meili) IndexComments(records []CommentRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxComments).AddDocuments(records, nil)
	return err
}

// DeleteComment removes one comment from the index.
func (m *Meili) DeleteComment(id string) error {
	_, err := m.client.Index(idxComments).DeleteDocument(id, nil)
	return err
}

// RecordID derives a stable index document id. Meilisearch ids only allow
// alphanumerics, hyphens, and underscores, which the pk's "::" violates.
func RecordID(explore, field, pk string) string {
	sum := sha1.Sum([]byte(explore + "\x00" + field + "\x00" + pk))
	return hex.EncodeToString(sum[:])
}
