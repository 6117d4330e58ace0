package comments

import (
	"reflect"
	"testing"
)

func TestAuthorIDs(t *testing.T) {
	cases := []struct {
		name string
		blob string
		want []string
	}{
		{"no explores", `{}`, []string{}},
		{"one explore, no fields", `{"foo":{}}`, []string{}},
		{"one field, no comments", `{"foo":{"foo.bar":[]}}`, []string{}},
		{"one comment", `{"foo":{"foo.bar":[{"author":1}]}}`, []string{"1"}},
		{
			"repeated author collapses",
			`{"foo":{"foo.bar":[{"author":1},{"author":1}]}}`,
			[]string{"1"},
		},
		{
			"distinct authors keep list order",
			`{"foo":{"foo.bar":[{"author":1},{"author":5}]}}`,
			[]string{"1", "5"},
		},
		{
			"two fields traverse in field order",
			`{"foo":{"foo.bar":[{"author":1},{"author":5}],"foo.baz":[{"author":3},{"author":2}]}}`,
			[]string{"1", "5", "3", "2"},
		},
		{
			"repeats across fields collapse",
			`{"foo":{"foo.bar":[{"author":1},{"author":1}],"foo.baz":[{"author":1},{"author":1}]}}`,
			[]string{"1"},
		},
		{
			"two explores traverse in explore order",
			`{"foo":{"foo.bar":[{"author":1},{"author":5}],"foo.baz":[{"author":3},{"author":2}]},"book":{"book.caw":[{"author":9},{"author":8}]}}`,
			[]string{"1", "5", "3", "2", "9", "8"},
		},
		{
			"numeric and string forms are one author",
			`{"foo":{"foo.bar":[{"author":7},{"author":"7"}]}}`,
			[]string{"7"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseAuthorIDs(tc.blob)
			if err != nil {
				t.Fatalf("ParseAuthorIDs() error = %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("ParseAuthorIDs() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestParseAuthorIDsRejectsMalformedText(t *testing.T) {
	if _, err := ParseAuthorIDs(`{"foo":`); err == nil {
		t.Fatal("expected error for truncated blob")
	}
}
