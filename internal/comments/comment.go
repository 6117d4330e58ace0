// Package comments owns the nested comment blob (explore → field → comment
// list), the author extraction over it, and the session-scoped store that
// mutates and re-persists it.
package comments

import (
	"encoding/json"
	"fmt"
)

// AuthorID is the canonical string form of a comment author identifier.
// Persisted blobs written by older clients carry authors as JSON numbers;
// both representations collapse to the same AuthorID.
type AuthorID string

func (a *AuthorID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = AuthorID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*a = AuthorID(n.String())
		return nil
	}
	return fmt.Errorf("author must be a string or a number")
}

// Comment is a single free-text comment on one field of an explore.
type Comment struct {
	Author    AuthorID `json:"author"`
	Timestamp int64    `json:"timestamp"`
	Content   string   `json:"content"`
	Edited    bool     `json:"edited"`
	PK        string   `json:"pk"`
	Deleted   bool     `json:"deleted,omitempty"`
}

// PrimaryKey builds the identity key of a comment within its field list.
// It is immutable once created: edits carry the original timestamp forward.
func PrimaryKey(timestampMillis int64, author AuthorID) string {
	return fmt.Sprintf("%d::%s", timestampMillis, author)
}
