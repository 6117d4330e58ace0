package comments

import (
	"context"
	"errors"
	"log"
	"time"

	"fieldnotes/api/internal/perms"
)

// ErrPermissionDenied reports a mutation attempted without write permission.
// The in-memory blob is untouched and the gateway is never called.
var ErrPermissionDenied = errors.New("comment write not permitted")

// Gateway is the persistence boundary for the serialized blob. Load returns
// "{}" when nothing has been saved yet; Save unconditionally replaces the
// previous value. Last writer wins across sessions.
type Gateway interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, blob string) error
}

// Store owns one session's in-memory blob snapshot and re-persists the whole
// blob after every permitted mutation. It is not safe for concurrent use;
// each session gets its own Store.
type Store struct {
	blob   *Blob
	record perms.Record
	gw     Gateway
	now    func() int64
}

func NewStore(blob *Blob, record perms.Record, gw Gateway) *Store {
	if blob == nil {
		blob = NewBlob()
	}
	return &Store{
		blob:   blob,
		record: record,
		gw:     gw,
		now:    func() int64 { return time.Now().UnixMilli() },
	}
}

// Blob exposes the current snapshot for read paths (author extraction,
// search fallback, export).
func (s *Store) Blob() *Blob {
	return s.blob
}

// Permissions returns the record the store enforces.
func (s *Store) Permissions() perms.Record {
	return s.record
}

// Snapshot returns the serialized form of the current in-memory blob.
func (s *Store) Snapshot() (string, error) {
	return s.blob.Serialize()
}

// Add appends a fresh comment to the field's list, creating the explore and
// field entries on first use. The timestamp is read at call time and the
// primary key derived from it.
func (s *Store) Add(ctx context.Context, explore, field string, author AuthorID, content string) (Comment, error) {
	if !s.record.CanWrite() {
		return Comment{}, ErrPermissionDenied
	}
	ts := s.now()
	c := Comment{
		Author:    author,
		Timestamp: ts,
		Content:   content,
		PK:        PrimaryKey(ts, author),
	}
	s.blob.Ensure(explore).Append(field, c)
	s.persist(ctx)
	return c, nil
}

// Edit replaces the entry whose primary key matches, preserving the original
// timestamp and key and marking the comment edited. The field list keeps its
// length when the key exists; callers must not edit keys that do not.
func (s *Store) Edit(ctx context.Context, explore, field string, modified Comment) error {
	if !s.record.CanWrite() {
		return ErrPermissionDenied
	}
	ec := s.blob.Ensure(explore)
	list := ec.Comments(field)
	next := make([]Comment, 0, len(list))
	for _, c := range list {
		if c.PK == modified.PK {
			modified.Timestamp = c.Timestamp
			continue
		}
		next = append(next, c)
	}
	modified.Edited = true
	modified.Deleted = false
	ec.SetComments(field, append(next, modified))
	s.persist(ctx)
	return nil
}

// Delete drops the entry whose primary key matches. No tombstone is kept;
// deleting a key that is not present leaves the list unchanged.
func (s *Store) Delete(ctx context.Context, explore, field, pk string) error {
	if !s.record.CanWrite() {
		return ErrPermissionDenied
	}
	ec := s.blob.Ensure(explore)
	list := ec.Comments(field)
	next := make([]Comment, 0, len(list))
	for _, c := range list {
		if c.PK == pk {
			continue
		}
		next = append(next, c)
	}
	ec.SetComments(field, next)
	s.persist(ctx)
	return nil
}

// persist serializes the entire blob and writes it through the gateway. A
// failed save is logged and swallowed: the in-memory snapshot stays mutated
// and diverges from persisted truth until the next reload. There is no
// concurrency token, so concurrent sessions race and the last save wins.
func (s *Store) persist(ctx context.Context) {
	text, err := s.blob.Serialize()
	if err != nil {
		log.Printf("comments: serialize blob: %v", err)
		return
	}
	if err := s.gw.Save(ctx, text); err != nil {
		log.Printf("comments: save blob: %v", err)
	}
}
