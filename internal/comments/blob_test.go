package comments

import (
	"errors"
	"strings"
	"testing"
)

func TestParseSerializeRoundTripPreservesOrder(t *testing.T) {
	legacy := `{"foo":{"foo.bar":[{"author":1,"timestamp":10,"content":"a","edited":false,"pk":"10::1"}],"foo.baz":[{"author":2,"timestamp":20,"content":"b","edited":false,"pk":"20::2"}]},"book":{"book.caw":[{"author":9,"timestamp":30,"content":"c","edited":true,"pk":"30::9"}]}}`

	blob, err := Parse(legacy)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	text, err := blob.Serialize()
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	if !strings.HasPrefix(text, `{"version":1,`) {
		t.Fatalf("expected versioned envelope, got %s", text)
	}

	again, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse(round trip) error = %v", err)
	}

	wantExplores := []string{"foo", "book"}
	if got := again.Explores(); !equalStrings(got, wantExplores) {
		t.Fatalf("explore order = %v, want %v", got, wantExplores)
	}
	foo, _ := again.Explore("foo")
	if got := foo.Fields(); !equalStrings(got, []string{"foo.bar", "foo.baz"}) {
		t.Fatalf("field order = %v", got)
	}
	caw, _ := again.Explore("book")
	list := caw.Comments("book.caw")
	if len(list) != 1 || list[0].PK != "30::9" || !list[0].Edited {
		t.Fatalf("unexpected comment list: %+v", list)
	}
}

func TestParseAcceptsEmptyAndBlankText(t *testing.T) {
	for _, text := range []string{"", "   ", "{}"} {
		blob, err := Parse(text)
		if err != nil {
			t.Fatalf("Parse(%q) error = %v", text, err)
		}
		if len(blob.Explores()) != 0 {
			t.Fatalf("Parse(%q) expected empty blob", text)
		}
	}
}

func TestParseMigratesLegacyBareForm(t *testing.T) {
	blob, err := Parse(`{"orders":{"orders.total":[{"author":"4","timestamp":5,"content":"x","edited":false,"pk":"5::4"}]}}`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	ec, ok := blob.Explore("orders")
	if !ok {
		t.Fatal("expected orders explore")
	}
	if got := ec.Comments("orders.total"); len(got) != 1 || got[0].Author != "4" {
		t.Fatalf("unexpected comments: %+v", got)
	}
}

func TestParseRejectsMalformedBlob(t *testing.T) {
	for _, text := range []string{`[]`, `{"a":`, `"not an object"`, `{"version":1}`} {
		_, err := Parse(text)
		if !errors.Is(err, ErrMalformedBlob) {
			t.Fatalf("Parse(%q) error = %v, want ErrMalformedBlob", text, err)
		}
	}
}

func TestParseTreatsVersionNamedExploreAsLegacy(t *testing.T) {
	// A legacy blob whose explore happens to be called "version" must not be
	// mistaken for the envelope form.
	blob, err := Parse(`{"version":{"version.tag":[{"author":1,"timestamp":2,"content":"v","edited":false,"pk":"2::1"}]}}`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if _, ok := blob.Explore("version"); !ok {
		t.Fatal("expected explore named version")
	}
}

func TestSerializeKeepsEmptyFieldLists(t *testing.T) {
	blob := NewBlob()
	blob.Ensure("foo").SetComments("foo.bar", nil)
	text, err := blob.Serialize()
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	if !strings.Contains(text, `"foo.bar":[]`) {
		t.Fatalf("expected empty list to serialize as [], got %s", text)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
