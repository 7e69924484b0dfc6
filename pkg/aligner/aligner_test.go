package aligner

import (
	"testing"

	"github.com/David-Botos/nhs-ingress/internal/fixture"
	"github.com/David-Botos/nhs-ingress/pkg/model"
)

func table(id string, rows [][]string) *model.RawTable {
	t := model.NewRawTable(model.TableID(id), id, rows)
	t.HeaderRow = 2
	return t
}

func TestAlignPositional(t *testing.T) {
	tables := map[model.TableID]*model.RawTable{
		"Table 4": table("Table 4", fixture.CommunitySheet("Table 4",
			fixture.RegionRow("Y56", "London", "999"),
			fixture.ProviderRow("RXX", "Trust X", "10", "20"),
			fixture.ProviderRow("ryy", "Trust Y", "30"),
		)),
		"Table 4a": table("Table 4a", fixture.CommunitySheet("Table 4a",
			fixture.RegionRow("Y56", "London", "1"),
			fixture.ProviderRow("RXX", "Trust X", "4", "5"),
			fixture.ProviderRow("RZZ", "Trust Z", "6"),
		)),
	}

	layout := DefaultLayout()
	layout.VerifyIdentity = true
	a := Align(tables, "Table 4", NewOrgFilter(nil), layout)

	if a.PrimaryMissing {
		t.Fatal("primary table should be present")
	}
	if len(a.Organisations) != 2 {
		t.Fatalf("expected 2 organisations, got %+v", a.Organisations)
	}
	if a.Organisations[0].Code != "RXX" || a.Organisations[1].Code != "RYY" {
		t.Errorf("organisation order = %+v", a.Organisations)
	}
	if a.Organisations[0].Name != "Trust X" || a.Organisations[0].RowIndex != 1 {
		t.Errorf("organisation row = %+v", a.Organisations[0])
	}

	if v := a.Vector("RXX", "Table 4a"); len(v) != 2 || v[0] != "4" || v[1] != "5" {
		t.Errorf("RXX Table 4a vector = %v", v)
	}

	// RYY's position in Table 4a holds RZZ: used anyway, reported as mismatch
	if v := a.Vector("RYY", "Table 4a"); len(v) != 1 || v[0] != "6" {
		t.Errorf("RYY Table 4a vector = %v", v)
	}
	if len(a.Mismatches) != 1 || a.Mismatches[0].Found != "RZZ" || a.Mismatches[0].Table != "Table 4a" {
		t.Errorf("mismatches = %+v", a.Mismatches)
	}
}

func TestAlignMissingTablesAndShortRows(t *testing.T) {
	tables := map[model.TableID]*model.RawTable{
		"Table 4": table("Table 4", fixture.CommunitySheet("Table 4",
			fixture.ProviderRow("RXX", "Trust X", "10"),
			fixture.ProviderRow("RYY", "Trust Y", "30"),
		)),
		"Table 4g": table("Table 4g", fixture.CommunitySheet("Table 4g",
			[]string{"Provider", "RXX"},
		)),
	}

	a := Align(tables, "Table 4", nil, DefaultLayout())

	if v := a.Vector("RXX", "Table 4g"); len(v) != 0 {
		t.Errorf("short row should give empty vector, got %v", v)
	}
	if v := a.Vector("RYY", "Table 4g"); len(v) != 0 {
		t.Errorf("row beyond table should give empty vector, got %v", v)
	}
	if v := a.Vector("RXX", "Table 4b"); len(v) != 0 {
		t.Errorf("absent table should give empty vector, got %v", v)
	}
	if len(a.Mismatches) != 0 {
		t.Errorf("identity checks are off by default, got %+v", a.Mismatches)
	}
}

func TestAlignFilterAndDuplicates(t *testing.T) {
	tables := map[model.TableID]*model.RawTable{
		"Table 4": table("Table 4", fixture.CommunitySheet("Table 4",
			fixture.ProviderRow("RXX", "Trust X", "10"),
			fixture.ProviderRow("RYY", "Trust Y", "30"),
			fixture.ProviderRow("RXX", "Trust X again", "99"),
		)),
	}

	a := Align(tables, "Table 4", NewOrgFilter([]string{" rxx "}), DefaultLayout())
	if len(a.Organisations) != 1 || a.Organisations[0].Code != "RXX" {
		t.Fatalf("filter should admit only RXX, got %+v", a.Organisations)
	}
	if v := a.Vector("RXX", "Table 4"); v[0] != "10" {
		t.Errorf("first occurrence should win, got %v", v)
	}
	if len(a.Duplicates) != 1 || a.Duplicates[0].FirstRow != 0 || a.Duplicates[0].RowIndex != 2 {
		t.Errorf("duplicates = %+v", a.Duplicates)
	}
}

func TestAlignPrimaryMissing(t *testing.T) {
	a := Align(map[model.TableID]*model.RawTable{}, "Table 4", nil, DefaultLayout())
	if !a.PrimaryMissing || len(a.Organisations) != 0 {
		t.Errorf("expected empty alignment with PrimaryMissing, got %+v", a)
	}
}
