package viewmodel

import (
	"testing"

	"github.com/beajinsu/investment/internal/domain/models"
)

func fp(v float64) *float64 { return &v }

func testColumns() []Column {
	return []Column{
		{Key: "name", Title: "Name", Kind: KindText, InitialDir: Asc},
		{Key: "price", Title: "Price", Kind: KindNumber, InitialDir: Desc},
	}
}

func rec(id, name string, price *float64) models.CanonicalRecord {
	return models.CanonicalRecord{
		EntityID:    id,
		DisplayName: name,
		Fields:      map[string]*float64{"price": price},
	}
}

func names(records []models.CanonicalRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.DisplayName
	}
	return out
}

func assertOrder(t *testing.T, got []models.CanonicalRecord, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d records, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].DisplayName != w {
			t.Fatalf("position %d: got %v, want %v", i, names(got), want)
		}
	}
}

func TestSortByTogglesDirection(t *testing.T) {
	vm := NewTable(testColumns())
	vm.SetData([]models.CanonicalRecord{
		rec("a", "A", fp(10)),
		rec("b", "B", fp(30)),
		rec("c", "C", fp(20)),
	})

	// First click uses the column's declared direction.
	snap := vm.SortBy("price")
	assertOrder(t, snap.Records, "B", "C", "A")
	if snap.SortKey != "price" || snap.SortDir != Desc {
		t.Fatalf("got sort %s/%s, want price/desc", snap.SortKey, snap.SortDir)
	}

	// Second click flips it.
	snap = vm.SortBy("price")
	assertOrder(t, snap.Records, "A", "C", "B")
	if snap.SortDir != Asc {
		t.Fatalf("got dir %s, want asc", snap.SortDir)
	}

	// Third click flips back.
	snap = vm.SortBy("price")
	assertOrder(t, snap.Records, "B", "C", "A")
}

func TestEachColumnRemembersItsDirection(t *testing.T) {
	vm := NewTable(testColumns())
	vm.SetData([]models.CanonicalRecord{
		rec("a", "A", fp(10)),
		rec("b", "B", fp(30)),
	})

	vm.SortBy("price") // desc, price now remembers asc
	vm.SortBy("name")  // asc
	snap := vm.SortBy("price")
	// Back on price: its own memory applies, not name's.
	assertOrder(t, snap.Records, "A", "B")
	if snap.SortDir != Asc {
		t.Fatalf("got dir %s, want asc", snap.SortDir)
	}
}

func TestNilValuesSortLastBothDirections(t *testing.T) {
	data := []models.CanonicalRecord{
		rec("a", "A", nil),
		rec("b", "B", fp(30)),
		rec("c", "C", fp(10)),
	}

	vm := NewTable(testColumns())
	vm.SetData(data)

	snap := vm.SortBy("price") // desc
	assertOrder(t, snap.Records, "B", "C", "A")

	snap = vm.SortBy("price") // asc
	assertOrder(t, snap.Records, "C", "B", "A")
}

func TestTiesKeepPriorOrder(t *testing.T) {
	vm := NewTable(testColumns())
	vm.SetData([]models.CanonicalRecord{
		rec("a", "A", fp(10)),
		rec("b", "B", fp(10)),
		rec("c", "C", fp(10)),
	})

	snap := vm.SortBy("price")
	assertOrder(t, snap.Records, "A", "B", "C")
	snap = vm.SortBy("price")
	assertOrder(t, snap.Records, "A", "B", "C")
}

func TestKoreanCollation(t *testing.T) {
	vm := NewTable(testColumns())
	vm.SetData([]models.CanonicalRecord{
		rec("eth", "이더리움", fp(1)),
		rec("btc", "비트코인", fp(2)),
		rec("xrp", "리플", fp(3)),
	})

	snap := vm.SortBy("name")
	assertOrder(t, snap.Records, "리플", "비트코인", "이더리움")
}

func TestToggleColumnIsProjectionOnly(t *testing.T) {
	vm := NewTable(testColumns())
	vm.SetData([]models.CanonicalRecord{
		rec("a", "A", fp(10)),
		rec("b", "B", fp(30)),
	})
	vm.SortBy("price")

	snap := vm.ToggleColumn("price", false)
	if snap.Visibility["price"] {
		t.Fatal("price should be hidden")
	}
	// Records and sort untouched, hidden column's values still there.
	assertOrder(t, snap.Records, "B", "A")
	if snap.Records[0].Field("price") == nil {
		t.Fatal("hidden column value must survive in the record")
	}

	snap = vm.ToggleColumn("price", true)
	if !snap.Visibility["price"] {
		t.Fatal("price should be visible again")
	}
}

func TestUnknownKeysAreSilentNoOps(t *testing.T) {
	vm := NewTable(testColumns())
	vm.SetData([]models.CanonicalRecord{
		rec("a", "A", fp(10)),
		rec("b", "B", fp(30)),
	})

	notified := 0
	vm.Subscribe(func(Snapshot) { notified++ })

	before := vm.Snapshot()
	snap := vm.SortBy("bogus")
	assertOrder(t, snap.Records, names(before.Records)...)
	if snap.SortKey != before.SortKey {
		t.Fatalf("sort key changed to %q", snap.SortKey)
	}

	vm.ToggleColumn("bogus", false)
	if notified != 0 {
		t.Fatalf("no-ops notified %d times", notified)
	}
}

func TestSortSurvivesSetData(t *testing.T) {
	vm := NewTable(testColumns())
	vm.SetData([]models.CanonicalRecord{
		rec("a", "A", fp(10)),
		rec("b", "B", fp(30)),
	})
	vm.SortBy("price") // desc

	snap := vm.SetData([]models.CanonicalRecord{
		rec("c", "C", fp(5)),
		rec("d", "D", fp(50)),
	})
	assertOrder(t, snap.Records, "D", "C")
	if snap.SortKey != "price" || snap.SortDir != Desc {
		t.Fatalf("sort not sticky: %s/%s", snap.SortKey, snap.SortDir)
	}
}

func TestDefaultSortAppliesAndConsumesFirstClick(t *testing.T) {
	vm := NewTable(testColumns(), WithDefaultSort("price", Desc))
	snap := vm.SetData([]models.CanonicalRecord{
		rec("a", "A", fp(10)),
		rec("b", "B", fp(30)),
	})
	assertOrder(t, snap.Records, "B", "A")

	// The first click on the default column flips, it does not repeat.
	snap = vm.SortBy("price")
	assertOrder(t, snap.Records, "A", "B")
}

func TestSetErrorKeepsRecords(t *testing.T) {
	vm := NewTable(testColumns())
	vm.SetData([]models.CanonicalRecord{rec("a", "A", fp(10))})

	snap := vm.SetError("upstream down")
	if len(snap.Records) != 1 {
		t.Fatalf("records dropped on error: %d", len(snap.Records))
	}
	if !snap.Stale || snap.LastError != "upstream down" {
		t.Fatalf("stale=%v lastError=%q", snap.Stale, snap.LastError)
	}

	// A successful refresh clears the marker.
	snap = vm.SetData([]models.CanonicalRecord{rec("a", "A", fp(11))})
	if snap.Stale || snap.LastError != "" {
		t.Fatalf("error marker not cleared: stale=%v lastError=%q", snap.Stale, snap.LastError)
	}
}

func TestObserverNotifiedOncePerOperation(t *testing.T) {
	vm := NewTable(testColumns())
	notified := 0
	vm.Subscribe(func(Snapshot) { notified++ })

	vm.SetData([]models.CanonicalRecord{rec("a", "A", fp(10))})
	vm.SortBy("price")
	vm.ToggleColumn("price", false)
	vm.SetError("boom")

	if notified != 4 {
		t.Fatalf("got %d notifications, want 4", notified)
	}
}
