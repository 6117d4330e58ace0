package archive

import "testing"

func TestRecordAndLastGood(t *testing.T) {
	svc := New(t.TempDir())

	hash, err := svc.Record("dictionary", `{"version":1,"explores":{}}`, "Avery")
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if hash == "" {
		t.Fatal("expected commit hash")
	}

	got, err := svc.LastGood("dictionary")
	if err != nil {
		t.Fatalf("LastGood() error = %v", err)
	}
	if got != `{"version":1,"explores":{}}` {
		t.Fatalf("LastGood() = %q", got)
	}
}

func TestRecordSkipsUnchangedBlob(t *testing.T) {
	svc := New(t.TempDir())

	first, err := svc.Record("dictionary", "blob", "Avery")
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	second, err := svc.Record("dictionary", "blob", "Avery")
	if err != nil {
		t.Fatalf("Record(unchanged) error = %v", err)
	}
	if first != second {
		t.Fatalf("unchanged blob created a new snapshot: %s vs %s", first, second)
	}
}

func TestHistoryNewestFirstWithLimit(t *testing.T) {
	svc := New(t.TempDir())

	if _, err := svc.Record("dictionary", "one", "Avery"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if _, err := svc.Record("dictionary", "two", "Blake"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	newest, err := svc.Record("dictionary", "three", "Avery")
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	items, err := svc.History("dictionary", 2)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d snapshots, want 2", len(items))
	}
	if items[0].Hash != newest {
		t.Fatalf("expected newest first, got %s", items[0].Hash)
	}
}

func TestSnapshotByHash(t *testing.T) {
	svc := New(t.TempDir())

	old, err := svc.Record("dictionary", "old blob", "Avery")
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if _, err := svc.Record("dictionary", "new blob", "Avery"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	got, err := svc.SnapshotByHash("dictionary", old)
	if err != nil {
		t.Fatalf("SnapshotByHash() error = %v", err)
	}
	if got != "old blob" {
		t.Fatalf("SnapshotByHash() = %q", got)
	}
}

func TestContextsGetSeparateArchives(t *testing.T) {
	svc := New(t.TempDir())

	if _, err := svc.Record("alpha", "alpha blob", "Avery"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if _, err := svc.LastGood("beta"); err == nil {
		t.Fatal("expected error for archive that was never written")
	}
}
